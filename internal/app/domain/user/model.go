package user

import "time"

// User is the persistent account record. Balance is the prepaid credit count
// consumed by paid AI features; it never goes negative and is only mutated
// through the store's conditional decrement.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Balance      int
	Level        int
	Experience   int
	Engagement   Engagement
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Engagement tracks the daily check-in state machine for one user.
// LastCheckinDate is a calendar date in ISO form (2006-01-02).
type Engagement struct {
	StreakDays      int    `json:"streak_days"`
	CheckedInToday  bool   `json:"checked_in_today"`
	LastCheckinDate string `json:"last_checkin_date"`
}

// UsageRecord is one append-only entry in a user's paid usage history.
type UsageRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Feature   string    `json:"feature"`
	Cost      int       `json:"cost"`
	Timestamp time.Time `json:"timestamp"`
}

// EngagementUpdate carries the full set of fields a check-in persists in one
// atomic, field-scoped update. CoinDelta is added to the stored balance at
// the store so concurrent charges are not clobbered.
type EngagementUpdate struct {
	StreakDays      int
	CheckedInToday  bool
	LastCheckinDate string
	Level           int
	Experience      int
	CoinDelta       int
}
