package types

import "errors"

var (
	// ErrInvalidInput marks a contract violation by the caller (non-positive size,
	// negative fee, malformed book). Fatal to the call that made it only.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStaleData means a snapshot is older than the caller's freshness bound.
	ErrStaleData = errors.New("stale data")

	// ErrNotFound means no snapshot has been stored for the key yet.
	ErrNotFound = errors.New("no data")

	// ErrTransient covers unreachable or rate-limited venues.
	ErrTransient = errors.New("transient connector failure")

	// ErrUnsupportedSymbol means the venue does not list the symbol.
	ErrUnsupportedSymbol = errors.New("unsupported symbol")
)
