package mempool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendedFees(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/fees/recommended", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"fastestFee":25,"halfHourFee":18,"hourFee":12,"economyFee":5,"minimumFee":2}`))
	}))
	defer server.Close()

	rates, err := NewClient(server.URL).RecommendedFees(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(25), rates.FastestFee)
	assert.Equal(t, uint64(18), rates.HalfHourFee)
	assert.Equal(t, uint64(12), rates.HourFee)
	assert.Equal(t, uint64(5), rates.EconomyFee)
	assert.Equal(t, uint64(2), rates.MinimumFee)
}

func TestRecommendedFeesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).RecommendedFees(context.Background())
	require.Error(t, err)
}

func TestRecommendedFeesMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).RecommendedFees(context.Background())
	require.Error(t, err)
}

func TestRecommendedFeesContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := NewClient(server.URL).RecommendedFees(ctx)
	require.Error(t, err)
}

func TestNewClientDefaultURL(t *testing.T) {
	c := NewClient("")
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}
