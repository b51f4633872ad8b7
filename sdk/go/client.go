// Package scorelens is a Go client for the credit score HTTP API.
package scorelens

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "scorelens-go-sdk/1.0.0"

// ErrUnavailable is returned when the service has no model loaded (503).
var ErrUnavailable = errors.New("scorelens: model unavailable")

// ErrRateLimited is returned on 429 responses.
var ErrRateLimited = errors.New("scorelens: rate limit exceeded")

// APIError carries a non-2xx response.
type APIError struct {
	StatusCode int
	Detail     string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("scorelens: API error (%d, request %s): %s", e.StatusCode, e.RequestID, e.Detail)
	}
	return fmt.Sprintf("scorelens: API error (%d): %s", e.StatusCode, e.Detail)
}

// Record maps feature names to numbers, strings or nil.
type Record map[string]any

// Factor is one feature's contribution to a prediction.
type Factor struct {
	Feature     string  `json:"feature"`
	Description string  `json:"description"`
	Impact      float64 `json:"impact"`
	Value       any     `json:"value"`
}

// Recommendation is a suggested action derived from the negative factors.
type Recommendation struct {
	Priority string `json:"priority"`
	Action   string `json:"action"`
	Reason   string `json:"reason"`
	Impact   string `json:"impact"`
}

// FeatureAttribution is one feature's Shapley value.
type FeatureAttribution struct {
	Feature     string  `json:"feature"`
	Description string  `json:"description"`
	Attribution float64 `json:"shap_value"`
	Value       any     `json:"value"`
}

// Explanation is the structured explanation of one score.
type Explanation struct {
	Score               int                  `json:"predicted_score"`
	Category            string               `json:"category"`
	Baseline            *float64             `json:"base_score"`
	PositiveFactors     []Factor             `json:"positive_factors"`
	NegativeFactors     []Factor             `json:"negative_factors"`
	TotalPositiveImpact float64              `json:"total_positive_impact"`
	TotalNegativeImpact float64              `json:"total_negative_impact"`
	Recommendations     []Recommendation     `json:"recommendations"`
	Narrative           string               `json:"explanation_text"`
	Features            []FeatureAttribution `json:"all_features"`
}

// Analysis is the response of Analyze.
type Analysis struct {
	CreditScore int          `json:"credit_score"`
	Category    string       `json:"category"`
	Explanation *Explanation `json:"explanation"`
}

// Prediction is a score without explanation.
type Prediction struct {
	Score    int    `json:"score"`
	Category string `json:"category"`
}

// BatchResult holds per-record outcomes in input order. A nil score marks
// a record that failed; its reason is in Results[i].Error.
type BatchResult struct {
	Scores     []*int   `json:"scores"`
	Categories []string `json:"categories"`
	Results    []struct {
		Score    int    `json:"credit_score,omitempty"`
		Category string `json:"category,omitempty"`
		Error    string `json:"error,omitempty"`
	} `json:"results"`
}

// Health is the response of the health endpoint.
type Health struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	ModelVersion string `json:"model_version,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Client calls the API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze scores rec and explains the result.
func (c *Client) Analyze(ctx context.Context, rec Record) (*Analysis, error) {
	var out Analysis
	if err := c.do(ctx, http.MethodPost, "/api/credit-score/analyze", rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Predict scores rec without an explanation.
func (c *Client) Predict(ctx context.Context, rec Record) (*Prediction, error) {
	var out Prediction
	if err := c.do(ctx, http.MethodPost, "/api/credit-score/predict", rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictBatch scores many records in one call.
func (c *Client) PredictBatch(ctx context.Context, recs []Record) (*BatchResult, error) {
	if len(recs) == 0 {
		return nil, errors.New("scorelens: empty batch")
	}
	var out BatchResult
	body := struct {
		Users []Record `json:"users"`
	}{recs}
	if err := c.do(ctx, http.MethodPost, "/api/credit-score/predict/batch", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports whether the service has a model loaded.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return nil
	case http.StatusServiceUnavailable:
		return ErrUnavailable
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		apiErr := &APIError{StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(respBody))}
		var e struct {
			Detail    string `json:"detail"`
			RequestID string `json:"request_id"`
		}
		if json.Unmarshal(respBody, &e) == nil && e.Detail != "" {
			apiErr.Detail = e.Detail
			apiErr.RequestID = e.RequestID
		}
		return apiErr
	}
}
