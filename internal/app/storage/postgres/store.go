package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/infogenie/backend/internal/app/domain/user"
	"github.com/infogenie/backend/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema creates the tables the store needs. Applied at startup; statements
// are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id                TEXT PRIMARY KEY,
	email             TEXT NOT NULL UNIQUE,
	username          TEXT NOT NULL,
	password_hash     TEXT NOT NULL DEFAULT '',
	balance           BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
	level             BIGINT NOT NULL DEFAULT 0,
	experience        BIGINT NOT NULL DEFAULT 0,
	streak_days       BIGINT NOT NULL DEFAULT 0,
	checked_in_today  BOOLEAN NOT NULL DEFAULT FALSE,
	last_checkin_date TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_records (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	feature    TEXT NOT NULL,
	cost       BIGINT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS usage_records_user_time
	ON usage_records (user_id, occurred_at DESC);
`

// EnsureSchema applies the schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

const userColumns = `id, email, username, password_hash, balance, level, experience,
	streak_days, checked_in_today, last_checkin_date, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash,
		&u.Balance, &u.Level, &u.Experience,
		&u.Engagement.StreakDays, &u.Engagement.CheckedInToday, &u.Engagement.LastCheckinDate,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, storage.ErrUserNotFound
	}
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, u.ID, u.Email, u.Username, u.PasswordHash,
		u.Balance, u.Level, u.Experience,
		u.Engagement.StreakDays, u.Engagement.CheckedInToday, u.Engagement.LastCheckinDate,
		u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return user.User{}, storage.ErrEmailExists
		}
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

// DecrementBalance relies on a single conditional UPDATE so the balance check
// and the decrement are one statement at the store. Two concurrent charges
// against the same balance serialize on the row; the loser sees no matching
// row and the record is untouched.
func (s *Store) DecrementBalance(ctx context.Context, id string, amount int) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET balance = balance - $2, updated_at = $3
		WHERE id = $1 AND balance >= $2
		RETURNING balance
	`, id, amount, time.Now().UTC()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing user from an uncovered balance.
		if _, getErr := s.GetUser(ctx, id); getErr != nil {
			return 0, getErr
		}
		return 0, storage.ErrInsufficientBalance
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) AddBalance(ctx context.Context, id string, amount int) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET balance = balance + $2, updated_at = $3
		WHERE id = $1
		RETURNING balance
	`, id, amount, time.Now().UTC()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) AppendUsage(ctx context.Context, rec user.UsageRecord) (user.UsageRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (id, user_id, feature, cost, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.UserID, rec.Feature, rec.Cost, rec.Timestamp)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return user.UsageRecord{}, storage.ErrUserNotFound
		}
		return user.UsageRecord{}, err
	}
	return rec, nil
}

func (s *Store) ListRecentUsage(ctx context.Context, userID string, limit int) ([]user.UsageRecord, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, feature, cost, occurred_at
		FROM usage_records
		WHERE user_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []user.UsageRecord
	for rows.Next() {
		var rec user.UsageRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Feature, &rec.Cost, &rec.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateEngagement writes the check-in outcome in one statement. The balance
// credit is a relative increment so it composes with concurrent charges.
func (s *Store) UpdateEngagement(ctx context.Context, id string, upd user.EngagementUpdate) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET streak_days = $2,
		    checked_in_today = $3,
		    last_checkin_date = $4,
		    level = $5,
		    experience = $6,
		    balance = balance + $7,
		    updated_at = $8
		WHERE id = $1
		RETURNING `+userColumns+`
	`, id, upd.StreakDays, upd.CheckedInToday, upd.LastCheckinDate,
		upd.Level, upd.Experience, upd.CoinDelta, time.Now().UTC())
	return scanUser(row)
}
