package credits

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/infogenie/backend/internal/app/domain/user"
	"github.com/infogenie/backend/internal/app/storage"
	"github.com/infogenie/backend/internal/app/storage/memory"
)

func newTestService(t *testing.T, balance int) (*Service, *memory.Store, string) {
	t.Helper()
	store := memory.New()
	u, err := store.CreateUser(context.Background(), user.User{
		Email:    "alice@example.com",
		Username: "alice",
		Balance:  balance,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return New(store, nil), store, u.ID
}

func TestChargeDeductsAndRecordsUsage(t *testing.T) {
	svc, store, id := newTestService(t, 250)

	receipt, err := svc.Charge(context.Background(), id, "chat", 100)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if receipt.Remaining != 150 {
		t.Fatalf("remaining = %d, want 150", receipt.Remaining)
	}
	if receipt.Feature != "chat" || receipt.Cost != 100 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	records, err := store.ListRecentUsage(context.Background(), id, 10)
	if err != nil {
		t.Fatalf("list usage: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("usage records = %d, want 1", len(records))
	}
	if records[0].Feature != "chat" || records[0].Cost != 100 {
		t.Fatalf("unexpected usage record: %+v", records[0])
	}
}

func TestChargeInsufficientBalance(t *testing.T) {
	svc, store, id := newTestService(t, 60)

	_, err := svc.Charge(context.Background(), id, "poetry", 100)
	var funds *InsufficientFundsError
	if !errors.As(err, &funds) {
		t.Fatalf("err = %v, want InsufficientFundsError", err)
	}
	if funds.Current != 60 || funds.Required != 100 {
		t.Fatalf("unexpected error detail: %+v", funds)
	}

	u, err := store.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Balance != 60 {
		t.Fatalf("balance mutated on rejected charge: %d", u.Balance)
	}
}

func TestChargeUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t, 100)

	_, err := svc.Charge(context.Background(), "nope", "chat", 100)
	if !errors.Is(err, storage.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestChargeRejectsNonPositiveCost(t *testing.T) {
	svc, _, id := newTestService(t, 100)

	if _, err := svc.Charge(context.Background(), id, "chat", 0); err == nil {
		t.Fatal("expected error for zero cost")
	}
}

// Two hundred concurrent charges against a balance covering exactly one
// hundred of them must succeed exactly one hundred times.
func TestChargeNoDoubleSpend(t *testing.T) {
	const cost = 100
	const attempts = 200
	svc, store, id := newTestService(t, cost*attempts/2)

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Charge(context.Background(), id, "chat", cost)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var funds *InsufficientFundsError
		if !errors.As(err, &funds) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != attempts/2 {
		t.Fatalf("succeeded = %d, want %d", succeeded, attempts/2)
	}

	u, err := store.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Balance != 0 {
		t.Fatalf("final balance = %d, want 0", u.Balance)
	}
}

func TestBalanceReportsAffordability(t *testing.T) {
	svc, _, id := newTestService(t, 120)

	info, err := svc.Balance(context.Background(), id, 100)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if info.Coins != 120 || !info.CanUseAI {
		t.Fatalf("unexpected info: %+v", info)
	}

	if _, err := svc.Charge(context.Background(), id, "chat", 100); err != nil {
		t.Fatalf("charge: %v", err)
	}
	info, err = svc.Balance(context.Background(), id, 100)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if info.Coins != 20 || info.CanUseAI {
		t.Fatalf("unexpected info after charge: %+v", info)
	}
	if len(info.RecentUsage) != 1 {
		t.Fatalf("recent usage = %d, want 1", len(info.RecentUsage))
	}
}
