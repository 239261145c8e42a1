package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
)

// DefaultDailyMatchLimit is the number of matches a wallet gets per UTC day
const DefaultDailyMatchLimit = 10

// QuotaService reads and increments the per-wallet daily match counters
type QuotaService struct {
	store  ports.QuotaStore
	limit  int
	logger *slog.Logger
	clock  func() time.Time
}

// NewQuotaService creates a quota service with the given base daily limit
func NewQuotaService(store ports.QuotaStore, limit int, logger *slog.Logger) *QuotaService {
	if limit <= 0 {
		limit = DefaultDailyMatchLimit
	}
	return &QuotaService{
		store:  store,
		limit:  limit,
		logger: logger,
		clock:  time.Now,
	}
}

// WithClock overrides the wall clock used to pick the current day
func (s *QuotaService) WithClock(clock func() time.Time) *QuotaService {
	s.clock = clock
	return s
}

// Limit returns the base daily limit
func (s *QuotaService) Limit() int {
	return s.limit
}

// Usage returns today's counters for wallet
func (s *QuotaService) Usage(ctx context.Context, wallet string) (core.DailyUsage, error) {
	return s.store.Usage(ctx, wallet, core.Day(s.clock()))
}

// Check returns core.ErrQuotaExceeded once wallet has used its allowance for today.
// Guests without a wallet are not metered.
func (s *QuotaService) Check(ctx context.Context, wallet string) error {
	if wallet == "" {
		return nil
	}
	usage, err := s.Usage(ctx, wallet)
	if err != nil {
		return fmt.Errorf("failed to read quota: %w", err)
	}
	if usage.Remaining(s.limit) == 0 {
		return core.ErrQuotaExceeded
	}
	return nil
}

// RecordMatch counts a match against both wallets of the event
func (s *QuotaService) RecordMatch(ctx context.Context, match core.MatchEvent) error {
	day := core.Day(match.MatchedAt)
	for _, id := range []core.Identity{match.A, match.B} {
		if id.WalletAddress == "" {
			continue
		}
		usage, err := s.store.IncrementMatches(ctx, id.WalletAddress, day)
		if err != nil {
			return fmt.Errorf("failed to record match %s: %w", match.ID, err)
		}
		s.logger.Debug("match counted", "wallet", id.WalletAddress, "day", day, "matches", usage.Matches)
	}
	return nil
}

// Grant adds bonus matches to wallet for today
func (s *QuotaService) Grant(ctx context.Context, wallet string, credits int) (core.DailyUsage, error) {
	return s.store.AddBonus(ctx, wallet, core.Day(s.clock()), credits)
}
