package engagement

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/infogenie/backend/internal/app/domain/user"
	"github.com/infogenie/backend/internal/app/metrics"
	"github.com/infogenie/backend/internal/app/storage"
	"github.com/infogenie/backend/pkg/logger"
)

// ErrAlreadyCheckedIn is returned when the user already checked in today.
var ErrAlreadyCheckedIn = errors.New("already checked in today")

const dateLayout = "2006-01-02"

// Rewards holds the per-checkin grant amounts.
type Rewards struct {
	Coins      int
	Experience int
}

// DefaultRewards matches the production grant schedule.
var DefaultRewards = Rewards{Coins: 300, Experience: 200}

// CheckinResult reports what a successful check-in granted.
type CheckinResult struct {
	CoinReward      int  `json:"coin_reward"`
	ExpReward       int  `json:"exp_reward"`
	ConsecutiveDays int  `json:"consecutive_days"`
	LevelUp         bool `json:"level_up"`
	NewLevel        int  `json:"new_level"`
	NewCoins        int  `json:"new_coins"`
	NewExp          int  `json:"new_exp"`
}

// GameData is the read-only progression snapshot for a user.
type GameData struct {
	Level      int             `json:"level"`
	Experience int             `json:"experience"`
	Coins      int             `json:"coins"`
	Checkin    user.Engagement `json:"checkin_system"`
}

// Service implements the daily check-in ledger: one grant per calendar day,
// streak tracking, and experience leveling.
type Service struct {
	store   storage.UserStore
	rewards Rewards
	log     *logger.Logger

	// now is replaced in tests to pin the calendar day.
	now func() time.Time
}

func New(store storage.UserStore, rewards Rewards, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("engagement")
	}
	if rewards.Coins == 0 && rewards.Experience == 0 {
		rewards = DefaultRewards
	}
	return &Service{
		store:   store,
		rewards: rewards,
		log:     log,
		now:     time.Now,
	}
}

// Threshold returns the experience needed to leave the given level.
func Threshold(level int) int {
	return int(100 * math.Pow(1.2, float64(level)))
}

// CheckIn performs the daily check-in for userID.
func (s *Service) CheckIn(ctx context.Context, userID string) (CheckinResult, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return CheckinResult{}, err
	}

	today := s.now().Format(dateLayout)
	if u.Engagement.CheckedInToday && u.Engagement.LastCheckinDate == today {
		metrics.RecordCheckin("rejected")
		return CheckinResult{}, ErrAlreadyCheckedIn
	}

	streak := nextStreak(u.Engagement.LastCheckinDate, u.Engagement.StreakDays, today)

	newExp := u.Experience + s.rewards.Experience
	newLevel := u.Level
	for newExp >= Threshold(newLevel) {
		newExp -= Threshold(newLevel)
		newLevel++
	}

	update := user.EngagementUpdate{
		StreakDays:      streak,
		CheckedInToday:  true,
		LastCheckinDate: today,
		Level:           newLevel,
		Experience:      newExp,
		CoinDelta:       s.rewards.Coins,
	}
	updated, err := s.store.UpdateEngagement(ctx, userID, update)
	if err != nil {
		metrics.RecordCheckin("error")
		return CheckinResult{}, err
	}

	metrics.RecordCheckin("ok")
	s.log.With("user_id", userID).With("streak", streak).With("level", newLevel).
		Info("daily check-in recorded")

	return CheckinResult{
		CoinReward:      s.rewards.Coins,
		ExpReward:       s.rewards.Experience,
		ConsecutiveDays: streak,
		LevelUp:         newLevel > u.Level,
		NewLevel:        newLevel,
		NewCoins:        updated.Balance,
		NewExp:          newExp,
	}, nil
}

// nextStreak advances the consecutive-day counter. Exactly one day since the
// last check-in extends the streak, a longer gap restarts it, and anything
// unparseable restarts it too.
func nextStreak(lastDate string, current int, today string) int {
	if lastDate == "" {
		return 1
	}
	last, err := time.Parse(dateLayout, lastDate)
	if err != nil {
		return 1
	}
	now, err := time.Parse(dateLayout, today)
	if err != nil {
		return 1
	}

	diff := int(now.Sub(last).Hours() / 24)
	switch {
	case diff == 1:
		return current + 1
	case diff > 1:
		return 1
	default:
		return current
	}
}

// Snapshot returns the user's progression state.
func (s *Service) Snapshot(ctx context.Context, userID string) (GameData, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return GameData{}, err
	}
	return GameData{
		Level:      u.Level,
		Experience: u.Experience,
		Coins:      u.Balance,
		Checkin:    u.Engagement,
	}, nil
}
