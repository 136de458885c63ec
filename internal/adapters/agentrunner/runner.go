// Package agentrunner bridges the scheduler to the external LLM analysis
// pipeline over HTTP. The pipeline receives the requested analysis level and
// a portfolio summary, and answers with zero or more trade instructions.
package agentrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cryptotrader/internal/domain"
	"cryptotrader/internal/ports"
)

const defaultTimeout = 120 * time.Second

// Client implements ports.AnalysisRunner against an HTTP endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     ports.Logger
}

// Config holds configuration for the HTTP analysis runner.
type Config struct {
	Endpoint string        // Analysis pipeline URL, e.g. http://localhost:8090/analyze
	Timeout  time.Duration // Per-cycle request timeout; defaults to 120s
	Logger   ports.Logger
}

// cycleRequest is the wire format sent to the analysis pipeline.
type cycleRequest struct {
	Level     string                   `json:"level"`
	Portfolio *domain.PortfolioSummary `json:"portfolio"`
}

// cycleResponse is the wire format returned by the analysis pipeline.
type cycleResponse struct {
	Instructions []domain.TradeInstruction `json:"instructions"`
}

// New creates an HTTP analysis runner.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for analysis runner")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for analysis runner")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}, nil
}

// RunCycle posts the level and portfolio to the pipeline and decodes the
// returned instructions.
func (c *Client) RunCycle(ctx context.Context, level domain.AnalysisLevel, portfolio *domain.PortfolioSummary) ([]domain.TradeInstruction, error) {
	op := "RunCycle"
	body, err := json.Marshal(cycleRequest{Level: level.String(), Portfolio: portfolio})
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%s: pipeline returned status %d: %s", op, resp.StatusCode, payload)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			err = fmt.Errorf("%w: %w", ports.ErrRateLimited, err)
		case resp.StatusCode >= 500:
			err = fmt.Errorf("%w: %w", ports.ErrExchangeUnavailable, err)
		default:
			err = fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
		}
		c.logger.Error(ctx, err, "Analysis pipeline request failed", map[string]interface{}{"status": resp.StatusCode})
		return nil, err
	}

	var decoded cycleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}

	c.logger.Debug(ctx, "Analysis cycle completed", map[string]interface{}{
		"level":        level.String(),
		"instructions": len(decoded.Instructions),
	})
	return decoded.Instructions, nil
}

// handleError translates transport failures into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	}
	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), map[string]interface{}{"endpoint": c.endpoint})
	return finalErr
}

// Noop is the runner used when no analysis endpoint is configured. Cycles
// complete successfully with no instructions, so the scheduler and ledger
// can run standalone.
type Noop struct {
	logger ports.Logger
}

// NewNoop creates a runner that never produces instructions.
func NewNoop(logger ports.Logger) *Noop {
	return &Noop{logger: logger}
}

// RunCycle logs the invocation and returns no instructions.
func (n *Noop) RunCycle(ctx context.Context, level domain.AnalysisLevel, portfolio *domain.PortfolioSummary) ([]domain.TradeInstruction, error) {
	if n.logger != nil {
		n.logger.Info(ctx, "Analysis cycle skipped, no pipeline configured", map[string]interface{}{"level": level.String()})
	}
	return nil, nil
}
