package domain

import "time"

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusWon    Status = "WON"
	StatusLost   Status = "LOST"
	StatusClosed Status = "CLOSED"
)

// Duration is the enumerated term of a position. Each term maps to a fixed
// number of hours.
type Duration string

const (
	DurationHour Duration = "1H"
	Duration4H   Duration = "4H"
	DurationDay  Duration = "24H"
	DurationWeek Duration = "1W"
)

// Hours returns the term length in hours, 0 for an unknown term.
func (d Duration) Hours() int {
	switch d {
	case DurationHour:
		return 1
	case Duration4H:
		return 4
	case DurationDay:
		return 24
	case DurationWeek:
		return 168
	}
	return 0
}

// Asset identifies a quotable instrument on the quote source.
type Asset struct {
	Symbol   string `yaml:"symbol" json:"symbol"`
	Category string `yaml:"category" json:"category"`
}

// Position is a single leveraged bet held by a user.
//
// While Status is ACTIVE only CurrentPrice may change. Exactly one terminal
// transition is allowed (WON/LOST on expiry, CLOSED on early close); after it
// ProfitLoss is fixed and the position is never mutated again.
type Position struct {
	ID           int64
	UserID       int64
	Symbol       string
	Category     string
	Direction    Direction
	EntryPrice   float64
	CurrentPrice float64
	Stake        int64 // points reserved from balance at open
	Leverage     int
	Duration     Duration
	OpenedAt     time.Time
	ClosesAt     time.Time
	Status       Status
	ProfitLoss   int64 // settlement net of stake, 0 while ACTIVE
}

// Expired reports whether the position's term has run out at the given time.
func (p *Position) Expired(now time.Time) bool {
	return !now.Before(p.ClosesAt)
}

// Terminal reports whether the position has left the ACTIVE state.
func (p *Position) Terminal() bool {
	return p.Status != StatusActive
}
