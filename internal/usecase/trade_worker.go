package usecase

import (
	"context"
	"time"

	"github.com/vitos/points_trading/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultSweepInterval   = 5 * time.Second
)

// TradeWorker runs the two background loops of a trading session: the price
// refresh (slow) and the expiry sweep (fast). The loops are independent; a
// slow quote fetch delays its own cycle but never blocks the sweep. Both stop
// together when the context handed to Start is canceled. An in-flight
// settlement is never rolled back by cancellation.
type TradeWorker struct {
	service *PositionService
	source  domain.PriceSource
	logger  *zap.Logger

	userID int64
	assets []domain.Asset

	refreshInterval time.Duration
	sweepInterval   time.Duration
	timeNow         func() time.Time // For testing
}

func NewTradeWorker(service *PositionService, source domain.PriceSource, userID int64, assets []domain.Asset, logger *zap.Logger) *TradeWorker {
	return &TradeWorker{
		service:         service,
		source:          source,
		logger:          logger,
		userID:          userID,
		assets:          assets,
		refreshInterval: DefaultRefreshInterval,
		sweepInterval:   DefaultSweepInterval,
		timeNow:         time.Now,
	}
}

// SetIntervals overrides the loop intervals. Zero keeps the default.
func (w *TradeWorker) SetIntervals(refresh, sweep time.Duration) {
	if refresh > 0 {
		w.refreshInterval = refresh
	}
	if sweep > 0 {
		w.sweepInterval = sweep
	}
}

// Start launches both loops and returns immediately. The returned function
// blocks until both loops have exited after ctx is canceled.
func (w *TradeWorker) Start(ctx context.Context) (wait func() error) {
	w.logger.Info("starting trade worker",
		zap.Int64("user", w.userID),
		zap.Int("assets", len(w.assets)),
		zap.Duration("refresh_interval", w.refreshInterval),
		zap.Duration("sweep_interval", w.sweepInterval))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.runRefreshLoop(ctx)
		return nil
	})
	g.Go(func() error {
		w.runSweepLoop(ctx)
		return nil
	})
	return g.Wait
}

func (w *TradeWorker) runRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(w.refreshInterval)
	defer ticker.Stop()

	// Run immediately first time
	w.RefreshOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RefreshOnce(ctx)
		}
	}
}

func (w *TradeWorker) runSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// RefreshOnce performs one price-refresh cycle: one fetch per tracked asset
// (stale-fallback on failure), then a current-price update over the user's
// active positions. Failures are isolated per asset; the cycle always
// completes.
func (w *TradeWorker) RefreshOnce(ctx context.Context) {
	cache := w.service.Cache()
	snapshot := make(map[string]float64, len(w.assets))
	for _, asset := range w.assets {
		price, err := cache.GetOrFetch(ctx, asset.Symbol, asset.Category, w.source)
		if err != nil {
			w.logger.Warn("no usable price for asset",
				zap.String("symbol", asset.Symbol),
				zap.Error(err))
			continue
		}
		snapshot[asset.Symbol] = price
	}
	if len(snapshot) == 0 {
		return
	}

	positions, err := w.service.ActivePositions(ctx, w.userID)
	if err != nil {
		w.logger.Error("refresh: failed to list active positions", zap.Error(err))
		return
	}
	w.service.UpdatePrices(ctx, positions, snapshot)
}

// SweepOnce performs one expiry sweep using the latest cached prices.
func (w *TradeWorker) SweepOnce(ctx context.Context) {
	symbols := make([]string, len(w.assets))
	for i, asset := range w.assets {
		symbols[i] = asset.Symbol
	}
	snapshot := w.service.Cache().Snapshot(symbols)

	settled, err := w.service.SweepExpired(ctx, w.userID, snapshot, w.timeNow())
	if err != nil {
		w.logger.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if len(settled) > 0 {
		w.logger.Info("expiry sweep settled positions", zap.Int("count", len(settled)))
	}
}
