package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestGetOrCreateDefaults(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	acc, err := m.GetOrCreate(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.Cash != DefaultCash || acc.Bank != 0 {
		t.Fatalf("fresh account cash=%d bank=%d, want %d and 0", acc.Cash, acc.Bank, DefaultCash)
	}

	if _, err := m.Adjust(ctx, "alice", FieldCash, 500); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	again, err := m.GetOrCreate(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Cash != DefaultCash+500 {
		t.Fatalf("second GetOrCreate reset the account: cash=%d", again.Cash)
	}
}

func TestConcurrentGetOrCreateSingleAccount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.GetOrCreate(ctx, "bob"); err != nil {
				t.Errorf("GetOrCreate: %v", err)
			}
		}()
	}
	wg.Wait()

	top, err := m.TopByWealth(ctx, 100)
	if err != nil {
		t.Fatalf("TopByWealth: %v", err)
	}
	if len(top) != 1 {
		t.Fatalf("expected a single account, got %d", len(top))
	}
	if top[0].Total != DefaultCash {
		t.Fatalf("account was credited more than once: total=%d", top[0].Total)
	}
}

func TestAdjustRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.GetOrCreate(ctx, "carol"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	if _, err := m.Adjust(ctx, "carol", FieldCash, -(DefaultCash + 1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	acc, err := m.Snapshot(ctx, "carol")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if acc.Cash != DefaultCash {
		t.Fatalf("rejected adjust mutated cash: %d", acc.Cash)
	}

	next, err := m.Adjust(ctx, "carol", FieldCash, -DefaultCash)
	if err != nil {
		t.Fatalf("exact drain should pass: %v", err)
	}
	if next != 0 {
		t.Fatalf("drain left cash=%d", next)
	}
}

func TestAdjustUnknownAccountAndField(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Adjust(ctx, "ghost", FieldCash, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := m.GetOrCreate(ctx, "dave"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := m.Adjust(ctx, "dave", Field(99), 10); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestConcurrentAdjustNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.GetOrCreate(ctx, "erin"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	const workers = 20
	const perWorker = 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := m.Adjust(ctx, "erin", FieldBank, 7); err != nil {
					t.Errorf("Adjust: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	acc, err := m.Snapshot(ctx, "erin")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	want := int64(workers * perWorker * 7)
	if acc.Bank != want {
		t.Fatalf("bank=%d want=%d (lost updates)", acc.Bank, want)
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.GetOrCreate(ctx, "henry"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	// 1000 starting cash, ten racing withdrawals of 300: exactly three can
	// succeed.
	var succeeded int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Adjust(ctx, "henry", FieldCash, -300)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("%d withdrawals succeeded, want 3", succeeded)
	}
	acc, _ := m.Snapshot(ctx, "henry")
	if acc.Cash != 100 {
		t.Fatalf("cash=%d want 100", acc.Cash)
	}
}

func TestAdjustHolding(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.GetOrCreate(ctx, "frank"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	qty, err := m.AdjustHolding(ctx, "frank", "BTC", 0.5)
	if err != nil {
		t.Fatalf("AdjustHolding: %v", err)
	}
	if qty != 0.5 {
		t.Fatalf("qty=%f want 0.5", qty)
	}
	if _, err := m.AdjustHolding(ctx, "frank", "BTC", -1.0); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	acc, err := m.Snapshot(ctx, "frank")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if acc.Holdings["BTC"] != 0.5 {
		t.Fatalf("rejected holding adjust mutated qty: %f", acc.Holdings["BTC"])
	}
}

func TestTopByWealthOrderAndTies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, nick := range []string{"first", "second", "third"} {
		if _, err := m.GetOrCreate(ctx, nick); err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
	}
	if _, err := m.Adjust(ctx, "third", FieldBank, 5000); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	top, err := m.TopByWealth(ctx, 2)
	if err != nil {
		t.Fatalf("TopByWealth: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(top))
	}
	if top[0].Nickname != "third" || top[0].Total != DefaultCash+5000 {
		t.Fatalf("top row = %+v", top[0])
	}
	// first and second are tied; first-sight order breaks the tie.
	if top[1].Nickname != "first" {
		t.Fatalf("tie broken wrong: got %q", top[1].Nickname)
	}
}

func TestAccrueInterestTruncates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for nick, bank := range map[string]int64{"poor": 0, "saver": 1000, "odd": 999} {
		if _, err := m.GetOrCreate(ctx, nick); err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		if bank > 0 {
			if _, err := m.Adjust(ctx, nick, FieldBank, bank); err != nil {
				t.Fatalf("Adjust: %v", err)
			}
		}
	}

	paid, err := m.AccrueInterest(ctx, 1.01)
	if err != nil {
		t.Fatalf("AccrueInterest: %v", err)
	}
	if paid != 2 {
		t.Fatalf("paid=%d want 2 (zero balances earn nothing)", paid)
	}

	saver, _ := m.Snapshot(ctx, "saver")
	if saver.Bank != 1010 {
		t.Fatalf("saver bank=%d want 1010", saver.Bank)
	}
	odd, _ := m.Snapshot(ctx, "odd")
	if odd.Bank != 1008 { // 999 * 1.01 = 1008.99, truncated
		t.Fatalf("odd bank=%d want 1008", odd.Bank)
	}
}

func TestAccrueInterestCompounds(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.GetOrCreate(ctx, "saver"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := m.Adjust(ctx, "saver", FieldBank, 1000); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	for _, want := range []int64{1010, 1020, 1030} {
		if _, err := m.AccrueInterest(ctx, 1.01); err != nil {
			t.Fatalf("AccrueInterest: %v", err)
		}
		acc, _ := m.Snapshot(ctx, "saver")
		if acc.Bank != want {
			t.Fatalf("bank=%d want=%d", acc.Bank, want)
		}
	}
}

func TestRecentChatsKeepsTail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 30; i++ {
		if err := m.AppendChat(ctx, ChatRecord{Nickname: "alice", Msg: string(rune('a' + i%26))}); err != nil {
			t.Fatalf("AppendChat: %v", err)
		}
	}

	recent, err := m.RecentChats(ctx, 20)
	if err != nil {
		t.Fatalf("RecentChats: %v", err)
	}
	if len(recent) != 20 {
		t.Fatalf("got %d records, want 20", len(recent))
	}
	// Oldest-first, ending with the last appended line.
	if recent[len(recent)-1].Msg != string(rune('a'+29%26)) {
		t.Fatalf("tail record = %+v", recent[len(recent)-1])
	}
}

func TestSnapshotCopiesHoldings(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.GetOrCreate(ctx, "gail"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := m.AdjustHolding(ctx, "gail", "BTC", 1.0); err != nil {
		t.Fatalf("AdjustHolding: %v", err)
	}

	acc, err := m.Snapshot(ctx, "gail")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	acc.Holdings["BTC"] = 999

	again, _ := m.Snapshot(ctx, "gail")
	if again.Holdings["BTC"] != 1.0 {
		t.Fatalf("snapshot aliases internal state: qty=%f", again.Holdings["BTC"])
	}
}
