package scorelens

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractal-lba/scorelens/internal/metrics"
	"github.com/fractal-lba/scorelens/internal/predictor"
	"github.com/fractal-lba/scorelens/internal/server"
	"github.com/fractal-lba/scorelens/internal/training/trainingtest"
)

func newService(t *testing.T, loaded bool) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p := predictor.New(nil)
	if loaded {
		p.Publish(trainingtest.Bundle(t))
	}
	reg := prometheus.NewRegistry()
	srv := server.New(p, server.Options{MaxBatch: 3, Metrics: metrics.New(reg), Gatherer: reg})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestClientAgainstService(t *testing.T) {
	ts := newService(t, true)
	c := NewClient(ts.URL+"/", WithHTTPClient(ts.Client()))
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.NotEmpty(t, h.ModelVersion)

	a, err := c.Analyze(ctx, Record{"INCOME": 45000, "CAT_GAMBLING": "Low", "UNRELATED": true})
	require.NoError(t, err)
	require.NotNil(t, a.Explanation)
	assert.Equal(t, a.CreditScore, a.Explanation.Score)
	assert.NotEmpty(t, a.Explanation.Narrative)
	assert.Len(t, a.Explanation.Features, len(trainingtest.Features))

	p, err := c.Predict(ctx, Record{"INCOME": 45000})
	require.NoError(t, err)
	assert.NotEmpty(t, p.Category)
	assert.GreaterOrEqual(t, p.Score, 300)

	b, err := c.PredictBatch(ctx, []Record{{"INCOME": 20000}, {"DEBT": nil}})
	require.NoError(t, err)
	require.Len(t, b.Scores, 2)
	assert.NotNil(t, b.Scores[0])
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()

	empty := newService(t, false)
	c := NewClient(empty.URL)
	_, err := c.Analyze(ctx, Record{})
	assert.ErrorIs(t, err, ErrUnavailable)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "unhealthy", h.Status)

	loaded := newService(t, true)
	c = NewClient(loaded.URL)
	_, err = c.PredictBatch(ctx, []Record{{}, {}, {}, {}})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusRequestEntityTooLarge, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.RequestID)

	_, err = c.PredictBatch(ctx, nil)
	assert.Error(t, err)
}
