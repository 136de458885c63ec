// Package binanceclient implements ports.MarketDataSource against the
// Binance spot API using the go-binance library.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"cryptotrader/internal/domain"
	"cryptotrader/internal/ports"
)

const (
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	// Only quote-stable pairs are sampled; thinner pairs produce noisy
	// volatility numbers.
	quoteSuffix           = "USDT"
	defaultMinQuoteVolume = 1_000_000 // Minimum 24h quote volume in USD
)

// Client implements the ports.MarketDataSource interface.
type Client struct {
	spotClient     *binance.Client
	logger         ports.Logger
	minQuoteVolume float64
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey         string
	SecretKey      string
	UseTestnet     bool
	MinQuoteVolume float64 // Liquidity floor for GetTopSymbols; defaults to $1M
	Logger         ports.Logger
}

// New creates a new Binance market data adapter. API keys are optional:
// all consumed endpoints are public.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	minVolume := cfg.MinQuoteVolume
	if minVolume <= 0 {
		minVolume = defaultMinQuoteVolume
	}

	return &Client{
		spotClient:     client,
		logger:         cfg.Logger,
		minQuoteVolume: minVolume,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -2014, -2015: // API-key format invalid / bad key, IP or permissions
			mappedErr = ports.ErrInvalidAPIKeys
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1121: // Parameter/request format errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetTopSymbols returns up to limit USDT pairs above the liquidity floor,
// ordered by 24h quote volume descending.
func (c *Client) GetTopSymbols(ctx context.Context, limit int) ([]domain.SymbolStats, error) {
	op := "GetTopSymbols"
	tickers, err := c.spotClient.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	stats := make([]domain.SymbolStats, 0, limit)
	for _, ticker := range tickers {
		if !strings.HasSuffix(ticker.Symbol, quoteSuffix) {
			continue
		}
		quoteVolume, err := strconv.ParseFloat(ticker.QuoteVolume, 64)
		if err != nil || quoteVolume < c.minQuoteVolume {
			continue
		}
		lastPrice, err := strconv.ParseFloat(ticker.LastPrice, 64)
		if err != nil {
			continue
		}
		changePct, err := strconv.ParseFloat(ticker.PriceChangePercent, 64)
		if err != nil {
			continue
		}
		stats = append(stats, domain.SymbolStats{
			Symbol:           ticker.Symbol,
			LastPrice:        lastPrice,
			ChangePercent24h: changePct,
			QuoteVolume24h:   quoteVolume,
			TradeCount24h:    ticker.Count,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].QuoteVolume24h > stats[j].QuoteVolume24h
	})
	if len(stats) > limit {
		stats = stats[:limit]
	}

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbols": len(stats)})
	return stats, nil
}

// GetTickerPrice retrieves the last traded price for a given symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetTickerPrice"
	tickers, err := c.spotClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("no ticker data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(tickers[0].LastPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", tickers[0].LastPrice, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}
