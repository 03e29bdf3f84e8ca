package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/points_trading/internal/domain"
	"go.uber.org/zap"
)

// PositionService enforces the position lifecycle: ACTIVE -> WON | LOST on
// expiry, ACTIVE -> CLOSED on early close, no way back out of a terminal
// state.
//
// All balance-touching operations (Open, CloseEarly, SweepExpired) are
// serialized through a single mutex so concurrent opens and settlements never
// lose a balance update. The repository additionally guards every settlement
// with a compare-and-set on status, which makes the loser of a concurrent
// close+sweep a no-op instead of a double credit.
type PositionService struct {
	positions domain.PositionRepository
	users     domain.UserRepository
	source    domain.PriceSource
	cache     *PriceCache
	leverage  int
	logger    *zap.Logger

	mu      sync.Mutex
	timeNow func() time.Time // For testing
}

func NewPositionService(
	positions domain.PositionRepository,
	users domain.UserRepository,
	source domain.PriceSource,
	cache *PriceCache,
	leverage int,
	logger *zap.Logger,
) *PositionService {
	if leverage <= 0 {
		leverage = DefaultLeverage
	}
	return &PositionService{
		positions: positions,
		users:     users,
		source:    source,
		cache:     cache,
		leverage:  leverage,
		logger:    logger,
		timeNow:   time.Now,
	}
}

func (s *PositionService) Cache() *PriceCache {
	return s.cache
}

// Open creates an ACTIVE position and debits the stake from the user's
// balance. It rejects the request, leaving balance and position set
// unchanged, when the stake is invalid, the balance cannot cover it, or no
// usable price exists for the asset.
func (s *PositionService) Open(ctx context.Context, userID int64, asset domain.Asset, direction domain.Direction, stake int64, duration domain.Duration) (*domain.Position, error) {
	if stake <= 0 {
		return nil, domain.ErrInvalidStake
	}
	hours := duration.Hours()
	if hours == 0 {
		return nil, domain.ErrInvalidDuration
	}

	price, err := s.cache.GetOrFetch(ctx, asset.Symbol, asset.Category, s.source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", asset.Symbol, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timeNow()
	pos := &domain.Position{
		UserID:       userID,
		Symbol:       asset.Symbol,
		Category:     asset.Category,
		Direction:    direction,
		EntryPrice:   price,
		CurrentPrice: price,
		Stake:        stake,
		Leverage:     s.leverage,
		Duration:     duration,
		OpenedAt:     now,
		ClosesAt:     now.Add(time.Duration(hours) * time.Hour),
		Status:       domain.StatusActive,
	}

	id, err := s.positions.OpenPosition(ctx, pos)
	if err != nil {
		return nil, err
	}
	pos.ID = id

	s.logger.Info("position opened",
		zap.Int64("id", id),
		zap.Int64("user", userID),
		zap.String("symbol", pos.Symbol),
		zap.String("direction", string(direction)),
		zap.Int64("stake", stake),
		zap.Float64("entry_price", price))
	return pos, nil
}

// UpdatePrices writes a new current price on every ACTIVE position whose
// symbol appears in the snapshot. Positions without a snapshot price are
// skipped, never failed. Status is never touched here, so this cannot race
// with settlement.
func (s *PositionService) UpdatePrices(ctx context.Context, positions []*domain.Position, snapshot map[string]float64) {
	for _, pos := range positions {
		if pos.Terminal() {
			continue
		}
		price, ok := snapshot[pos.Symbol]
		if !ok || price == pos.CurrentPrice {
			continue
		}
		if err := s.positions.UpdateCurrentPrice(ctx, pos.ID, price); err != nil {
			s.logger.Warn("failed to update position price",
				zap.Int64("id", pos.ID),
				zap.String("symbol", pos.Symbol),
				zap.Error(err))
			continue
		}
		pos.CurrentPrice = price
	}
}

// CloseEarly settles an ACTIVE position at the snapshot price (falling back
// to the position's own last observed price) and transitions it to CLOSED,
// whatever the sign of the result. Closing an already-settled position
// returns domain.ErrPositionNotActive and touches nothing.
func (s *PositionService) CloseEarly(ctx context.Context, pos *domain.Position, snapshot map[string]float64) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settle(ctx, pos, true, snapshot)
}

// SweepExpired settles every ACTIVE position of the user whose term has run
// out: WON when the computed profitLoss is >= 0, LOST otherwise. Positions
// settle independently; a failure on one never blocks the rest of the batch.
// It returns the positions settled by this sweep.
func (s *PositionService) SweepExpired(ctx context.Context, userID int64, snapshot map[string]float64, now time.Time) ([]*domain.Position, error) {
	active := domain.StatusActive
	positions, err := s.positions.ListByUser(ctx, userID, &active)
	if err != nil {
		return nil, fmt.Errorf("sweep: list active positions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var settled []*domain.Position
	for _, pos := range positions {
		if !pos.Expired(now) {
			continue
		}
		if _, err := s.settle(ctx, pos, false, snapshot); err != nil {
			if errors.Is(err, domain.ErrPositionNotActive) {
				continue // lost the race to an early close, nothing to do
			}
			s.logger.Error("failed to settle expired position",
				zap.Int64("id", pos.ID),
				zap.Error(err))
			continue
		}
		settled = append(settled, pos)
	}
	return settled, nil
}

// settlementPrice resolves the price a settlement uses: the snapshot value if
// present, else the position's own stored current price. A position can
// therefore always settle even when the quote source is down.
func (s *PositionService) settlementPrice(pos *domain.Position, snapshot map[string]float64) float64 {
	if price, ok := snapshot[pos.Symbol]; ok {
		return price
	}
	return pos.CurrentPrice
}

// settle applies the single terminal transition: CLOSED when early, else
// WON/LOST by the sign of the computed profitLoss. Callers hold s.mu.
func (s *PositionService) settle(ctx context.Context, pos *domain.Position, early bool, snapshot map[string]float64) (*domain.Position, error) {
	if pos.Terminal() {
		return nil, domain.ErrPositionNotActive
	}

	price := s.settlementPrice(pos, snapshot)
	profitLoss := ComputeProfitLoss(pos.EntryPrice, price, pos.Direction, pos.Stake, pos.Leverage)
	status := domain.StatusClosed
	if !early {
		status = domain.StatusWon
		if profitLoss < 0 {
			status = domain.StatusLost
		}
	}

	now := s.timeNow()
	if err := s.positions.SettlePosition(ctx, pos.ID, status, profitLoss, price, now); err != nil {
		return nil, err
	}

	pos.Status = status
	pos.ProfitLoss = profitLoss
	pos.CurrentPrice = price

	s.logger.Info("position settled",
		zap.Int64("id", pos.ID),
		zap.String("status", string(status)),
		zap.Int64("profit_loss", profitLoss),
		zap.Float64("settlement_price", price))
	return pos, nil
}

// ActivePositions lists the user's ACTIVE positions.
func (s *PositionService) ActivePositions(ctx context.Context, userID int64) ([]*domain.Position, error) {
	active := domain.StatusActive
	return s.positions.ListByUser(ctx, userID, &active)
}

// Positions lists all of the user's positions.
func (s *PositionService) Positions(ctx context.Context, userID int64) ([]*domain.Position, error) {
	return s.positions.ListByUser(ctx, userID, nil)
}

// GetPosition fetches a position by ID.
func (s *PositionService) GetPosition(ctx context.Context, id int64) (*domain.Position, error) {
	return s.positions.GetPosition(ctx, id)
}

// Balance returns the user's current points balance.
func (s *PositionService) Balance(ctx context.Context, userID int64) (int64, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.Balance, nil
}
