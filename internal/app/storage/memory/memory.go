package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/infogenie/backend/internal/app/domain/user"
	"github.com/infogenie/backend/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu           sync.Mutex
	nextID       int64
	users        map[string]user.User
	usersByEmail map[string]string
	usage        map[string][]user.UsageRecord
}

var _ storage.UserStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		users:        make(map[string]user.User),
		usersByEmail: make(map[string]string),
		usage:        make(map[string][]user.UsageRecord),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email != "" {
		if _, exists := s.usersByEmail[email]; exists {
			return user.User{}, storage.ErrEmailExists
		}
	}

	if u.ID == "" {
		u.ID = s.nextIDLocked()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, fmt.Errorf("user %s already exists", u.ID)
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	s.users[u.ID] = u
	if email != "" {
		s.usersByEmail[email] = u.ID
	}
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return user.User{}, storage.ErrUserNotFound
	}
	return s.users[id], nil
}

// DecrementBalance performs the check and the decrement under one lock so two
// concurrent charges can never both pass the balance check.
func (s *Store) DecrementBalance(_ context.Context, id string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return 0, storage.ErrUserNotFound
	}
	if u.Balance < amount {
		return 0, storage.ErrInsufficientBalance
	}

	u.Balance -= amount
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return u.Balance, nil
}

func (s *Store) AddBalance(_ context.Context, id string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return 0, storage.ErrUserNotFound
	}

	u.Balance += amount
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return u.Balance, nil
}

func (s *Store) AppendUsage(_ context.Context, rec user.UsageRecord) (user.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[rec.UserID]; !ok {
		return user.UsageRecord{}, storage.ErrUserNotFound
	}
	if rec.ID == "" {
		rec.ID = s.nextIDLocked()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	s.usage[rec.UserID] = append(s.usage[rec.UserID], rec)
	return rec, nil
}

func (s *Store) ListRecentUsage(_ context.Context, userID string, limit int) ([]user.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, storage.ErrUserNotFound
	}

	records := append([]user.UsageRecord(nil), s.usage[userID]...)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) UpdateEngagement(_ context.Context, id string, upd user.EngagementUpdate) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrUserNotFound
	}

	u.Engagement = user.Engagement{
		StreakDays:      upd.StreakDays,
		CheckedInToday:  upd.CheckedInToday,
		LastCheckinDate: upd.LastCheckinDate,
	}
	u.Level = upd.Level
	u.Experience = upd.Experience
	u.Balance += upd.CoinDelta
	u.UpdatedAt = time.Now().UTC()

	s.users[id] = u
	return u, nil
}
