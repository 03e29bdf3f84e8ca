package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/points_trading/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// A single connection keeps sqlite's writer lock contention away from
	// the two background loops.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			symbol TEXT NOT NULL,
			category TEXT NOT NULL,
			direction TEXT NOT NULL,
			entry_price REAL NOT NULL,
			current_price REAL NOT NULL,
			stake INTEGER NOT NULL,
			leverage INTEGER NOT NULL,
			duration TEXT NOT NULL,
			opened_at DATETIME NOT NULL,
			closes_at DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			profit_loss INTEGER NOT NULL DEFAULT 0,
			settled_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_user_status ON positions(user_id, status);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

// UserRepository Implementation

func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) (int64, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, balance, created_at) VALUES (?, ?, ?)`,
		user.Name, user.Balance, user.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, balance, created_at FROM users WHERE id = ?`, id)

	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.Balance, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) UpdateBalance(ctx context.Context, id int64, balance int64) error {
	if balance < 0 {
		balance = 0
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET balance = ? WHERE id = ?`, balance, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// PositionRepository Implementation

// OpenPosition debits the stake and inserts the position in one transaction.
// The conditional debit doubles as the balance check: zero rows affected
// means the balance cannot cover the stake and nothing is written.
func (s *SQLiteStore) OpenPosition(ctx context.Context, pos *domain.Position) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET balance = balance - ? WHERE id = ? AND balance >= ?`,
		pos.Stake, pos.UserID, pos.Stake)
	if err != nil {
		return 0, fmt.Errorf("debit stake: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, domain.ErrInsufficientBalance
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO positions (user_id, symbol, category, direction, entry_price, current_price,
			stake, leverage, duration, opened_at, closes_at, status, profit_loss)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		pos.UserID, pos.Symbol, pos.Category, pos.Direction, pos.EntryPrice, pos.CurrentPrice,
		pos.Stake, pos.Leverage, pos.Duration, pos.OpenedAt, pos.ClosesAt, pos.Status)
	if err != nil {
		return 0, fmt.Errorf("insert position: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLiteStore) UpdateCurrentPrice(ctx context.Context, id int64, price float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE positions SET current_price = ? WHERE id = ? AND status = ?`,
		price, id, domain.StatusActive)
	return err
}

// SettlePosition performs the terminal transition and the balance credit in
// one transaction. The status guard in the UPDATE is the compare-and-set that
// makes a concurrent second settlement a no-op: whoever loses sees zero rows
// and gets ErrPositionNotActive, and the credit is rolled back with it.
func (s *SQLiteStore) SettlePosition(ctx context.Context, id int64, status domain.Status, profitLoss int64, settledPrice float64, settledAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var userID, stake int64
	row := tx.QueryRowContext(ctx, `SELECT user_id, stake FROM positions WHERE id = ?`, id)
	if err := row.Scan(&userID, &stake); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPositionNotFound
		}
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE positions SET status = ?, profit_loss = ?, current_price = ?, settled_at = ?
		 WHERE id = ? AND status = ?`,
		status, profitLoss, settledPrice, settledAt, id, domain.StatusActive)
	if err != nil {
		return fmt.Errorf("transition position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrPositionNotActive
	}

	// Credit stake + profitLoss, clamped at zero.
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET balance = MAX(0, balance + ?) WHERE id = ?`,
		stake+profitLoss, userID); err != nil {
		return fmt.Errorf("credit settlement: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetPosition(ctx context.Context, id int64) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, positionColumns+` WHERE id = ?`, id)
	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPositionNotFound
	}
	return pos, err
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID int64, status *domain.Status) ([]*domain.Position, error) {
	query := positionColumns + ` WHERE user_id = ?`
	args := []interface{}{userID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY opened_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

const positionColumns = `SELECT id, user_id, symbol, category, direction, entry_price, current_price,
	stake, leverage, duration, opened_at, closes_at, status, profit_loss FROM positions`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var p domain.Position
	err := row.Scan(&p.ID, &p.UserID, &p.Symbol, &p.Category, &p.Direction, &p.EntryPrice,
		&p.CurrentPrice, &p.Stake, &p.Leverage, &p.Duration, &p.OpenedAt, &p.ClosesAt,
		&p.Status, &p.ProfitLoss)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Compile-time interface checks.
var (
	_ domain.PositionRepository = (*SQLiteStore)(nil)
	_ domain.UserRepository     = (*SQLiteStore)(nil)
)
