package portfolio

import (
	"errors"
	"fmt"
)

// ErrorCode classifies every failure the trading core can produce.
type ErrorCode string

const (
	CodeInsufficientCash ErrorCode = "insufficient_cash"
	CodeInvalidPrice     ErrorCode = "invalid_price"
	CodeMarketClosed     ErrorCode = "market_closed"
	CodePositionLimit    ErrorCode = "position_limit"
	CodeStorageFull      ErrorCode = "storage_full"
	CodeDataCorruption   ErrorCode = "data_corruption"
	CodeUpstreamAPI      ErrorCode = "upstream_api"
	CodeStalePrice       ErrorCode = "stale_price"
	CodeInvalidShares    ErrorCode = "invalid_shares"
	CodePositionNotFound ErrorCode = "position_not_found"
	CodeDuplicateTrade   ErrorCode = "duplicate_trade"
	CodeCorporateAction  ErrorCode = "corporate_action_failed"
)

// recoverableByCode marks which failures a caller may retry after the
// condition clears (more cash, fresher price, freed storage). Structural
// failures are terminal for the submitted operation.
var recoverableByCode = map[ErrorCode]bool{
	CodeInsufficientCash: true,
	CodeInvalidPrice:     true,
	CodeMarketClosed:     true,
	CodePositionLimit:    true,
	CodeStorageFull:      true,
	CodeDataCorruption:   false,
	CodeUpstreamAPI:      true,
	CodeStalePrice:       true,
	CodeInvalidShares:    false,
	CodePositionNotFound: false,
	CodeDuplicateTrade:   true,
	CodeCorporateAction:  false,
}

// TradeError is the typed error surfaced by the ledger, journal and
// validation layers.
type TradeError struct {
	Code        ErrorCode
	Message     string
	Recoverable bool
}

func (e *TradeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a TradeError with the code's default recoverable flag.
func Errorf(code ErrorCode, format string, args ...any) *TradeError {
	return &TradeError{
		Code:        code,
		Message:     fmt.Sprintf(format, args...),
		Recoverable: recoverableByCode[code],
	}
}

// DefaultRecoverable reports the code's default recoverable flag.
func DefaultRecoverable(code ErrorCode) bool {
	return recoverableByCode[code]
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
func CodeOf(err error) (ErrorCode, bool) {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Code, true
	}
	return "", false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// Recoverable reports whether err is marked retryable. Unknown errors are
// treated as non-recoverable.
func Recoverable(err error) bool {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Recoverable
	}
	return false
}
