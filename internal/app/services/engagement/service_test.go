package engagement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/infogenie/backend/internal/app/domain/user"
	"github.com/infogenie/backend/internal/app/storage/memory"
)

func newTestService(t *testing.T, u user.User) (*Service, *memory.Store, string) {
	t.Helper()
	store := memory.New()
	created, err := store.CreateUser(context.Background(), u)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	svc := New(store, DefaultRewards, nil)
	return svc, store, created.ID
}

func pinDay(svc *Service, day string) {
	svc.now = func() time.Time {
		ts, _ := time.Parse("2006-01-02", day)
		return ts
	}
}

func TestCheckInFirstTime(t *testing.T) {
	svc, store, id := newTestService(t, user.User{Username: "bob", Balance: 50})
	pinDay(svc, "2026-08-31")

	result, err := svc.CheckIn(context.Background(), id)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if result.CoinReward != 300 || result.ExpReward != 200 {
		t.Fatalf("unexpected rewards: %+v", result)
	}
	if result.ConsecutiveDays != 1 {
		t.Fatalf("streak = %d, want 1", result.ConsecutiveDays)
	}
	// 200 exp at level 0 crosses the level 0 threshold of 100 and stops
	// under the level 1 threshold of 120.
	if !result.LevelUp || result.NewLevel != 1 || result.NewExp != 100 {
		t.Fatalf("unexpected leveling: %+v", result)
	}
	if result.NewCoins != 350 {
		t.Fatalf("coins = %d, want 350", result.NewCoins)
	}

	u, err := store.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !u.Engagement.CheckedInToday || u.Engagement.LastCheckinDate != "2026-08-31" {
		t.Fatalf("engagement not persisted: %+v", u.Engagement)
	}
}

func TestCheckInSameDayRejected(t *testing.T) {
	svc, _, id := newTestService(t, user.User{Username: "bob"})
	pinDay(svc, "2026-08-31")

	if _, err := svc.CheckIn(context.Background(), id); err != nil {
		t.Fatalf("first check in: %v", err)
	}
	_, err := svc.CheckIn(context.Background(), id)
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("err = %v, want ErrAlreadyCheckedIn", err)
	}
}

func TestCheckInConsecutiveDayExtendsStreak(t *testing.T) {
	svc, _, id := newTestService(t, user.User{
		Username: "bob",
		Engagement: user.Engagement{
			StreakDays:      4,
			CheckedInToday:  true,
			LastCheckinDate: "2026-08-30",
		},
	})
	pinDay(svc, "2026-08-31")

	result, err := svc.CheckIn(context.Background(), id)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if result.ConsecutiveDays != 5 {
		t.Fatalf("streak = %d, want 5", result.ConsecutiveDays)
	}
}

func TestCheckInGapResetsStreak(t *testing.T) {
	svc, _, id := newTestService(t, user.User{
		Username: "bob",
		Engagement: user.Engagement{
			StreakDays:      9,
			CheckedInToday:  true,
			LastCheckinDate: "2026-08-25",
		},
	})
	pinDay(svc, "2026-08-31")

	result, err := svc.CheckIn(context.Background(), id)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if result.ConsecutiveDays != 1 {
		t.Fatalf("streak = %d, want 1", result.ConsecutiveDays)
	}
}

func TestCheckInUnparseableDateResetsStreak(t *testing.T) {
	svc, _, id := newTestService(t, user.User{
		Username: "bob",
		Engagement: user.Engagement{
			StreakDays:      3,
			LastCheckinDate: "yesterday",
		},
	})
	pinDay(svc, "2026-08-31")

	result, err := svc.CheckIn(context.Background(), id)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if result.ConsecutiveDays != 1 {
		t.Fatalf("streak = %d, want 1", result.ConsecutiveDays)
	}
}

func TestCheckInMultiLevelJump(t *testing.T) {
	svc, _, id := newTestService(t, user.User{Username: "bob", Experience: 150, Level: 0})
	pinDay(svc, "2026-08-31")

	// 350 exp clears level 0 (100) and level 1 (120), leaving 130 which is
	// short of the level 2 threshold of 144.
	result, err := svc.CheckIn(context.Background(), id)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if result.NewLevel != 2 || result.NewExp != 130 {
		t.Fatalf("unexpected leveling: %+v", result)
	}
}

func TestThresholdGrowth(t *testing.T) {
	cases := map[int]int{0: 100, 1: 120, 2: 144, 3: 172}
	for level, want := range cases {
		if got := Threshold(level); got != want {
			t.Fatalf("Threshold(%d) = %d, want %d", level, got, want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	svc, _, id := newTestService(t, user.User{Username: "bob", Balance: 42, Level: 3, Experience: 17})

	data, err := svc.Snapshot(context.Background(), id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if data.Coins != 42 || data.Level != 3 || data.Experience != 17 {
		t.Fatalf("unexpected snapshot: %+v", data)
	}
}
