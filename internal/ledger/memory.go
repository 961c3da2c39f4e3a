package ledger

import (
	"context"
	"sort"
	"sync"
)

const memoryChatCap = 1000

// Memory is an in-process Store used when no database is configured and as
// the test double. A single mutex guards the maps; every critical section is
// a few map operations, so adjustments stay linearizable without per-account
// locking.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]*Account
	order    []string // first-sight order, breaks ranking ties
	chats    []ChatRecord
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]*Account)}
}

func (m *Memory) getOrCreateLocked(nickname string) *Account {
	acc, ok := m.accounts[nickname]
	if !ok {
		acc = &Account{
			Nickname: nickname,
			Cash:     DefaultCash,
			Holdings: make(map[string]float64),
		}
		m.accounts[nickname] = acc
		m.order = append(m.order, nickname)
	}
	return acc
}

func (m *Memory) GetOrCreate(ctx context.Context, nickname string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyAccount(m.getOrCreateLocked(nickname)), nil
}

func (m *Memory) Adjust(ctx context.Context, nickname string, field Field, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[nickname]
	if !ok {
		return 0, ErrNotFound
	}
	switch field {
	case FieldCash:
		if acc.Cash+delta < 0 {
			return 0, ErrInsufficientFunds
		}
		acc.Cash += delta
		return acc.Cash, nil
	case FieldBank:
		if acc.Bank+delta < 0 {
			return 0, ErrInsufficientFunds
		}
		acc.Bank += delta
		return acc.Bank, nil
	default:
		return 0, ErrUnknownField
	}
}

func (m *Memory) AdjustHolding(ctx context.Context, nickname, asset string, delta float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[nickname]
	if !ok {
		return 0, ErrNotFound
	}
	next := acc.Holdings[asset] + delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}
	acc.Holdings[asset] = next
	return next, nil
}

func (m *Memory) Snapshot(ctx context.Context, nickname string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[nickname]
	if !ok {
		return Account{}, ErrNotFound
	}
	return copyAccount(acc), nil
}

func (m *Memory) TopByWealth(ctx context.Context, n int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]Entry, 0, len(m.order))
	for _, nick := range m.order {
		acc := m.accounts[nick]
		entries = append(entries, Entry{Nickname: nick, Total: acc.Wealth()})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Total > entries[j].Total
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (m *Memory) AccrueInterest(ctx context.Context, rate float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var paid int64
	for _, acc := range m.accounts {
		if acc.Bank > 0 {
			acc.Bank = int64(float64(acc.Bank) * rate)
			paid++
		}
	}
	return paid, nil
}

func (m *Memory) AppendChat(ctx context.Context, rec ChatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chats = append(m.chats, rec)
	if len(m.chats) > memoryChatCap {
		m.chats = m.chats[len(m.chats)-memoryChatCap:]
	}
	return nil
}

func (m *Memory) RecentChats(ctx context.Context, n int) ([]ChatRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > len(m.chats) {
		n = len(m.chats)
	}
	out := make([]ChatRecord, n)
	copy(out, m.chats[len(m.chats)-n:])
	return out, nil
}

func copyAccount(acc *Account) Account {
	out := *acc
	out.Holdings = make(map[string]float64, len(acc.Holdings))
	for asset, qty := range acc.Holdings {
		out.Holdings[asset] = qty
	}
	return out
}
