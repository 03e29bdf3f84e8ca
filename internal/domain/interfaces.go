package domain

import (
	"context"
	"time"
)

// PriceSource fetches a quote from an external provider. Implementations
// return ErrPriceUnavailable (possibly wrapped) when the symbol has no quote.
type PriceSource interface {
	FetchPrice(ctx context.Context, symbol, category string) (float64, error)
}

// PositionRepository defines storage operations for positions.
//
// OpenPosition and SettlePosition carry an economic side effect and must be
// atomic: the balance mutation and the position write both apply or neither
// does.
type PositionRepository interface {
	// OpenPosition debits pos.Stake from the user's balance and inserts the
	// position in a single transaction, returning the assigned ID.
	// Returns ErrInsufficientBalance when the balance cannot cover the stake;
	// nothing is written in that case.
	OpenPosition(ctx context.Context, pos *Position) (int64, error)

	// UpdateCurrentPrice stores a new observed price on an ACTIVE position.
	// Terminal positions are left untouched.
	UpdateCurrentPrice(ctx context.Context, id int64, price float64) error

	// SettlePosition transitions an ACTIVE position to the given terminal
	// status, fixes profitLoss and the settlement price, and credits
	// stake+profitLoss (clamped at zero) to the owner's balance, all in a
	// single transaction guarded by a compare-and-set on status.
	// Returns ErrPositionNotActive when the position already settled.
	SettlePosition(ctx context.Context, id int64, status Status, profitLoss int64, settledPrice float64, settledAt time.Time) error

	GetPosition(ctx context.Context, id int64) (*Position, error)

	// ListByUser returns the user's positions, optionally filtered by status.
	ListByUser(ctx context.Context, userID int64, status *Status) ([]*Position, error)
}

// UserRepository defines storage operations for users and balances.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) (int64, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	UpdateBalance(ctx context.Context, id int64, balance int64) error
}
