package forecastsolar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(30, 0, zap.NewNop())
	c.BaseURL = srv.URL
	return c
}

func TestGetEstimates(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/estimate/40.4000/-3.7000/30/0/5.000", r.URL.Path)
		w.Write([]byte(`{"result":{"watt_hours_day":{"2025-06-15":21500,"2025-06-16":4300}}}`))
	}))

	est, err := c.GetEstimates(context.Background(), 40.4, -3.7, 5.0)
	require.NoError(t, err)
	assert.Equal(t, 21.5, est["2025-06-15"])
	assert.Equal(t, 4.3, est["2025-06-16"])
}

func TestGetEstimatesRateLimitIsTemporary(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":{"text":"rate limit reached"}}`))
	}))

	_, err := c.GetEstimates(context.Background(), 40.4, -3.7, 5.0)
	require.Error(t, err)
	var fsErr *Error
	require.ErrorAs(t, err, &fsErr)
	assert.True(t, fsErr.Temporary())
	assert.Contains(t, fsErr.Message, "rate limit")
}

func TestGetEstimatesBadRequestIsPermanent(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":{"text":"invalid plane declination"}}`))
	}))

	_, err := c.GetEstimates(context.Background(), 40.4, -3.7, 5.0)
	require.Error(t, err)
	var fsErr *Error
	require.ErrorAs(t, err, &fsErr)
	assert.False(t, fsErr.Temporary())
}
