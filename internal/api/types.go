// Package api defines the JSON payloads of the HTTP interface.
package api

import (
	"github.com/fractal-lba/scorelens/internal/bundle"
	"github.com/fractal-lba/scorelens/internal/explain"
	"github.com/fractal-lba/scorelens/internal/predictor"
	"github.com/fractal-lba/scorelens/internal/schema"
)

// ServiceVersion is reported by the root endpoint.
const ServiceVersion = "1.0.0"

// AnalyzeResponse is returned by the analyze endpoint.
type AnalyzeResponse struct {
	CreditScore int             `json:"credit_score"`
	Category    string          `json:"category"`
	Explanation *explain.Result `json:"explanation"`
}

// PredictResponse is the lightweight single-record result.
type PredictResponse struct {
	Score    int    `json:"score"`
	Category string `json:"category"`
}

// BatchRequest carries the records of a batch prediction.
type BatchRequest struct {
	Users []schema.Record `json:"users" binding:"required"`
}

// BatchResponse holds per-record outcomes in input order. Scores is null
// at the index of a record that failed.
type BatchResponse struct {
	Scores     []*int                `json:"scores"`
	Categories []string              `json:"categories"`
	Results    []predictor.BatchItem `json:"results"`
}

// NewBatchResponse flattens predictor items into the parallel arrays.
func NewBatchResponse(items []predictor.BatchItem) BatchResponse {
	resp := BatchResponse{
		Scores:     make([]*int, len(items)),
		Categories: make([]string, len(items)),
		Results:    items,
	}
	for i := range items {
		if items[i].Error != "" {
			continue
		}
		score := items[i].Score
		resp.Scores[i] = &score
		resp.Categories[i] = items[i].Category
	}
	return resp
}

// HealthResponse reports whether a model is being served.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Version     string `json:"model_version,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RootResponse describes the service.
type RootResponse struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// ModelResponse describes the served bundle.
type ModelResponse struct {
	Metadata bundle.Metadata `json:"metadata"`
	Baseline float64         `json:"base_score"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}
