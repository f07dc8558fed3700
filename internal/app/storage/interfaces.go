package storage

import (
	"context"
	"errors"

	"github.com/infogenie/backend/internal/app/domain/user"
)

// Sentinel errors shared by all store implementations.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailExists         = errors.New("email already registered")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// UserStore persists user records. Balance mutations are store-level and
// conditional: implementations must never expose a read-then-write path for
// the balance so concurrent charges from the same user stay linearizable.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)

	// GetUserByEmail and AddBalance serve the account/recharge service that
	// shares this store; the gateway itself only reads by id and debits.
	GetUserByEmail(ctx context.Context, email string) (user.User, error)

	// DecrementBalance subtracts amount from the user's balance only when
	// the stored balance covers it, returning the new balance. It fails
	// with ErrInsufficientBalance otherwise, leaving the record untouched.
	DecrementBalance(ctx context.Context, id string, amount int) (int, error)

	// AddBalance credits the user's balance and returns the new balance.
	AddBalance(ctx context.Context, id string, amount int) (int, error)

	// AppendUsage appends one entry to the user's paid usage history.
	AppendUsage(ctx context.Context, rec user.UsageRecord) (user.UsageRecord, error)

	// ListRecentUsage returns up to limit usage entries, newest first.
	ListRecentUsage(ctx context.Context, userID string, limit int) ([]user.UsageRecord, error)

	// UpdateEngagement persists a check-in as one atomic, field-scoped
	// update of the engagement fields plus a balance credit.
	UpdateEngagement(ctx context.Context, id string, upd user.EngagementUpdate) (user.User, error)
}
