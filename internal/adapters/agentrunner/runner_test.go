package agentrunner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/domain"
	"cryptotrader/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func TestRunCyclePostsLevelAndPortfolio(t *testing.T) {
	var gotRequest cycleRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		json.NewEncoder(w).Encode(cycleResponse{Instructions: []domain.TradeInstruction{
			{Symbol: "BTCUSDT", Side: domain.Buy, Amount: 500, Rationale: "momentum"},
		}})
	}))
	defer server.Close()

	client, err := New(Config{Endpoint: server.URL, Logger: &mockLogger{}})
	require.NoError(t, err)

	instructions, err := client.RunCycle(context.Background(), domain.LevelMedium, &domain.PortfolioSummary{TotalValue: 10000})
	require.NoError(t, err)

	assert.Equal(t, "medium", gotRequest.Level)
	require.NotNil(t, gotRequest.Portfolio)
	assert.InDelta(t, 10000, gotRequest.Portfolio.TotalValue, 1e-9)

	require.Len(t, instructions, 1)
	assert.Equal(t, "BTCUSDT", instructions[0].Symbol)
	assert.Equal(t, domain.Buy, instructions[0].Side)
	assert.InDelta(t, 500, instructions[0].Amount, 1e-9)
}

func TestRunCycleMapsStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"server error is retryable", http.StatusInternalServerError, ports.ErrExchangeUnavailable},
		{"rate limit is retryable", http.StatusTooManyRequests, ports.ErrRateLimited},
		{"bad request is fatal", http.StatusBadRequest, ports.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			client, err := New(Config{Endpoint: server.URL, Logger: &mockLogger{}})
			require.NoError(t, err)

			_, err = client.RunCycle(context.Background(), domain.LevelFull, &domain.PortfolioSummary{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRunCycleConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // Refuse all connections

	client, err := New(Config{Endpoint: server.URL, Logger: &mockLogger{}})
	require.NoError(t, err)

	_, err = client.RunCycle(context.Background(), domain.LevelQuick, &domain.PortfolioSummary{})
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	require.Error(t, err)
}

func TestNoopReturnsNothing(t *testing.T) {
	runner := NewNoop(&mockLogger{})
	instructions, err := runner.RunCycle(context.Background(), domain.LevelFull, &domain.PortfolioSummary{})
	require.NoError(t, err)
	assert.Empty(t, instructions)
}
