// Package credits implements the prepaid credit ledger guarding paid AI
// features.
package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/infogenie/backend/internal/app/domain/user"
	"github.com/infogenie/backend/internal/app/metrics"
	"github.com/infogenie/backend/internal/app/storage"
	"github.com/infogenie/backend/pkg/logger"
)

// InsufficientFundsError reports a charge rejected because the balance does
// not cover the cost. No mutation happens when it is returned.
type InsufficientFundsError struct {
	Current  int
	Required int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, need %d", e.Current, e.Required)
}

// Receipt records a successful charge.
type Receipt struct {
	UserID    string
	Feature   string
	Cost      int
	Remaining int
	Timestamp time.Time
}

// BalanceInfo is the wallet view returned to clients.
type BalanceInfo struct {
	Coins       int
	AICost      int
	CanUseAI    bool
	Username    string
	RecentUsage []user.UsageRecord
}

// Service is the credit ledger. Charges happen before the paid operation
// executes and are not refunded on downstream failure: the dominant cost is
// the outbound call itself, so the caller pays for the attempt.
type Service struct {
	store storage.UserStore
	log   *logger.Logger
}

// New creates the ledger service.
func New(store storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("credits")
	}
	return &Service{store: store, log: log}
}

// Charge atomically deducts cost from the user's balance and appends a usage
// history entry. The decrement is a single conditional update at the store;
// two concurrent charges against the same balance cannot both succeed.
func (s *Service) Charge(ctx context.Context, userID, feature string, cost int) (Receipt, error) {
	if cost <= 0 {
		return Receipt{}, fmt.Errorf("charge cost must be positive, got %d", cost)
	}

	remaining, err := s.store.DecrementBalance(ctx, userID, cost)
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientBalance) {
			metrics.RecordCharge(feature, "insufficient")
			u, getErr := s.store.GetUser(ctx, userID)
			if getErr != nil {
				return Receipt{}, getErr
			}
			return Receipt{}, &InsufficientFundsError{Current: u.Balance, Required: cost}
		}
		if errors.Is(err, storage.ErrUserNotFound) {
			metrics.RecordCharge(feature, "user_not_found")
			return Receipt{}, err
		}
		metrics.RecordCharge(feature, "error")
		return Receipt{}, fmt.Errorf("decrement balance: %w", err)
	}

	rec := user.UsageRecord{
		UserID:    userID,
		Feature:   feature,
		Cost:      cost,
		Timestamp: time.Now().UTC(),
	}
	if _, err := s.store.AppendUsage(ctx, rec); err != nil {
		// The charge already happened; history is best-effort.
		s.log.WithError(err).With("user_id", userID).Warn("append usage record failed")
	}

	metrics.RecordCharge(feature, "ok")
	return Receipt{
		UserID:    userID,
		Feature:   feature,
		Cost:      cost,
		Remaining: remaining,
		Timestamp: rec.Timestamp,
	}, nil
}

// Balance returns the wallet view: current coins, the per-call cost, and the
// most recent usage entries.
func (s *Service) Balance(ctx context.Context, userID string, aiCost int) (BalanceInfo, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return BalanceInfo{}, err
	}

	recent, err := s.store.ListRecentUsage(ctx, userID, 5)
	if err != nil {
		return BalanceInfo{}, fmt.Errorf("list recent usage: %w", err)
	}

	return BalanceInfo{
		Coins:       u.Balance,
		AICost:      aiCost,
		CanUseAI:    u.Balance >= aiCost,
		Username:    u.Username,
		RecentUsage: recent,
	}, nil
}
