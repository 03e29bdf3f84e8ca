package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/points_trading/internal/domain"
	"github.com/vitos/points_trading/internal/infrastructure/storage"
)

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedUser(t *testing.T, store *storage.SQLiteStore, balance int64) int64 {
	t.Helper()
	id, err := store.CreateUser(context.Background(), &domain.User{Name: "tester", Balance: balance})
	require.NoError(t, err)
	return id
}

func activePosition(userID int64) *domain.Position {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Position{
		UserID:       userID,
		Symbol:       "BTCUSDT",
		Category:     "linear",
		Direction:    domain.DirectionLong,
		EntryPrice:   42000,
		CurrentPrice: 42000,
		Stake:        300,
		Leverage:     10,
		Duration:     domain.DurationDay,
		OpenedAt:     now,
		ClosesAt:     now.Add(24 * time.Hour),
		Status:       domain.StatusActive,
	}
}

func TestOpenPosition_DebitsBalanceAtomically(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	userID := seedUser(t, store, 1000)

	id, err := store.OpenPosition(ctx, activePosition(userID))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	user, err := store.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), user.Balance)

	pos, err := store.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, pos.Status)
	assert.Equal(t, int64(300), pos.Stake)
	assert.Equal(t, int64(0), pos.ProfitLoss)
}

func TestOpenPosition_InsufficientBalanceWritesNothing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	userID := seedUser(t, store, 100)

	_, err := store.OpenPosition(ctx, activePosition(userID))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	user, err := store.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), user.Balance)

	positions, err := store.ListByUser(ctx, userID, nil)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestSettlePosition_TransitionsAndCreditsOnce(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	userID := seedUser(t, store, 1000)

	id, err := store.OpenPosition(ctx, activePosition(userID))
	require.NoError(t, err)

	err = store.SettlePosition(ctx, id, domain.StatusWon, 150, 44000, time.Now().UTC())
	require.NoError(t, err)

	pos, err := store.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWon, pos.Status)
	assert.Equal(t, int64(150), pos.ProfitLoss)
	assert.Equal(t, 44000.0, pos.CurrentPrice)

	user, err := store.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1150), user.Balance) // 700 + 300 + 150

	// The CAS makes a second settlement a no-op.
	err = store.SettlePosition(ctx, id, domain.StatusClosed, -50, 41000, time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrPositionNotActive)

	pos, err = store.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWon, pos.Status)
	assert.Equal(t, int64(150), pos.ProfitLoss)

	user, err = store.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1150), user.Balance)
}

func TestSettlePosition_ClampsBalanceAtZero(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	userID := seedUser(t, store, 300)

	id, err := store.OpenPosition(ctx, activePosition(userID))
	require.NoError(t, err)
	// Balance is now 0; a loss beyond the stake must clamp, not go negative.
	err = store.SettlePosition(ctx, id, domain.StatusLost, -500, 35000, time.Now().UTC())
	require.NoError(t, err)

	user, err := store.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.Balance)
}

func TestSettlePosition_UnknownID(t *testing.T) {
	store := newStore(t)
	err := store.SettlePosition(context.Background(), 9999, domain.StatusWon, 0, 100, time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestUpdateCurrentPrice_OnlyWhileActive(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	userID := seedUser(t, store, 1000)

	id, err := store.OpenPosition(ctx, activePosition(userID))
	require.NoError(t, err)

	require.NoError(t, store.UpdateCurrentPrice(ctx, id, 43000))
	pos, err := store.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 43000.0, pos.CurrentPrice)

	require.NoError(t, store.SettlePosition(ctx, id, domain.StatusClosed, 20, 43500, time.Now().UTC()))
	require.NoError(t, store.UpdateCurrentPrice(ctx, id, 50000))

	pos, err = store.GetPosition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 43500.0, pos.CurrentPrice)
}

func TestListByUser_FiltersByStatus(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	userID := seedUser(t, store, 1000)
	otherID := seedUser(t, store, 1000)

	first, err := store.OpenPosition(ctx, activePosition(userID))
	require.NoError(t, err)
	_, err = store.OpenPosition(ctx, activePosition(userID))
	require.NoError(t, err)
	_, err = store.OpenPosition(ctx, activePosition(otherID))
	require.NoError(t, err)

	require.NoError(t, store.SettlePosition(ctx, first, domain.StatusWon, 10, 43000, time.Now().UTC()))

	active := domain.StatusActive
	positions, err := store.ListByUser(ctx, userID, &active)
	require.NoError(t, err)
	assert.Len(t, positions, 1)

	all, err := store.ListByUser(ctx, userID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetPosition_NotFound(t *testing.T) {
	store := newStore(t)
	_, err := store.GetPosition(context.Background(), 12345)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestGetUser_NotFound(t *testing.T) {
	store := newStore(t)
	_, err := store.GetUser(context.Background(), 777)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
