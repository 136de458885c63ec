package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Market Data / Exchange Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")

	// Ledger Errors
	ErrInsufficientFunds    = errors.New("insufficient cash balance for order")
	ErrNoPosition           = errors.New("no open position for symbol")
	ErrInsufficientQuantity = errors.New("position quantity smaller than requested")

	// Persistence Errors
	ErrStoreUnavailable = errors.New("ledger store unavailable")
	ErrQueryFailed      = errors.New("store query failed")
	ErrUpdateFailed     = errors.New("store update failed")
)
