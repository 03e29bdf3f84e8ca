package domain

import "errors"

var (
	// ErrInsufficientBalance rejects an open whose stake exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPriceUnavailable means no usable price exists for a symbol, neither
	// from a fresh fetch nor from the cache.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrPositionNotActive is returned by a settlement attempt that lost the
	// race: the position already left the ACTIVE state. Callers treat it as
	// a no-op, never as a double credit.
	ErrPositionNotActive = errors.New("position is not active")

	ErrPositionNotFound = errors.New("position not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidStake     = errors.New("stake must be positive")
	ErrInvalidDuration  = errors.New("unknown position duration")
)
