package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
)

// QuotaStore persists per-day match counters
type QuotaStore struct {
	db *sql.DB
}

func NewQuotaStore(db *sql.DB) ports.QuotaStore {
	return &QuotaStore{db: db}
}

func (s *QuotaStore) Usage(ctx context.Context, wallet, day string) (core.DailyUsage, error) {
	u := core.DailyUsage{WalletAddress: normalizeWallet(wallet), Day: day}
	err := s.db.QueryRowContext(ctx,
		`SELECT matches, bonus FROM daily_usage WHERE wallet_address = $1 AND day = $2`,
		u.WalletAddress, day,
	).Scan(&u.Matches, &u.Bonus)
	if errors.Is(err, sql.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return core.DailyUsage{}, unavailable("read usage", err)
	}
	return u, nil
}

func (s *QuotaStore) IncrementMatches(ctx context.Context, wallet, day string) (core.DailyUsage, error) {
	query := `
		INSERT INTO daily_usage (wallet_address, day, matches, bonus)
		VALUES ($1, $2, 1, 0)
		ON CONFLICT (wallet_address, day) DO UPDATE SET
			matches = daily_usage.matches + 1
		RETURNING matches, bonus
	`
	return s.upsert(ctx, "increment usage", query, wallet, day)
}

func (s *QuotaStore) AddBonus(ctx context.Context, wallet, day string, credits int) (core.DailyUsage, error) {
	query := `
		INSERT INTO daily_usage (wallet_address, day, matches, bonus)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (wallet_address, day) DO UPDATE SET
			bonus = daily_usage.bonus + EXCLUDED.bonus
		RETURNING matches, bonus
	`
	return s.upsert(ctx, "add bonus", query, wallet, day, credits)
}

func (s *QuotaStore) upsert(ctx context.Context, op, query, wallet, day string, extra ...any) (core.DailyUsage, error) {
	u := core.DailyUsage{WalletAddress: normalizeWallet(wallet), Day: day}
	args := append([]any{u.WalletAddress, day}, extra...)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&u.Matches, &u.Bonus); err != nil {
		return core.DailyUsage{}, unavailable(op, err)
	}
	return u, nil
}
