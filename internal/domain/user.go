package domain

import "time"

// User owns a points balance. Balance is debited once at position open and
// credited once at settlement; it never goes negative.
type User struct {
	ID        int64
	Name      string
	Balance   int64
	CreatedAt time.Time
}
