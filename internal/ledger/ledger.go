// Package ledger is the single source of truth for account balances.
package ledger

import (
	"context"
	"errors"
)

// DefaultCash is the grant every account starts with on first sight.
const DefaultCash = int64(1000)

var (
	ErrNotFound          = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownField      = errors.New("unknown balance field")
)

// Field enumerates the adjustable integer balance columns. Keeping this a
// closed enum means the store never interpolates a column name from a string.
type Field int

const (
	FieldCash Field = iota
	FieldBank
)

func (f Field) String() string {
	switch f {
	case FieldCash:
		return "cash"
	case FieldBank:
		return "bank"
	default:
		return "unknown"
	}
}

// Account is a point-in-time copy of a user's economic state. Mutations go
// through Adjust/AdjustHolding, never through a written-back Account.
type Account struct {
	Nickname string             `json:"nickname"`
	Cash     int64              `json:"cash"`
	Bank     int64              `json:"bank"`
	Holdings map[string]float64 `json:"holdings"`
}

// Wealth is the ranking total: cash plus bank, holdings excluded.
func (a Account) Wealth() int64 {
	return a.Cash + a.Bank
}

// Entry is one row of a wealth ranking.
type Entry struct {
	Nickname string `json:"nickname"`
	Total    int64  `json:"total"`
}

// ChatRecord is one persisted chat line, replayed to late joiners.
type ChatRecord struct {
	Nickname string `json:"nickname"`
	Msg      string `json:"msg"`
	Type     string `json:"type"`
	Rank     string `json:"rank,omitempty"`
}

// Store is the durable ledger. Adjust and AdjustHolding are atomic: concurrent
// calls against the same account compose with no lost updates, and a delta
// that would drive the value negative is rejected with ErrInsufficientFunds
// before anything is written.
type Store interface {
	GetOrCreate(ctx context.Context, nickname string) (Account, error)
	Adjust(ctx context.Context, nickname string, field Field, delta int64) (int64, error)
	AdjustHolding(ctx context.Context, nickname, asset string, delta float64) (float64, error)
	Snapshot(ctx context.Context, nickname string) (Account, error)
	TopByWealth(ctx context.Context, n int) ([]Entry, error)

	// AccrueInterest multiplies every positive bank balance by rate,
	// truncating to an integer, and reports how many accounts were paid.
	// It reads balances at call time so accounts added mid-run compound
	// correctly.
	AccrueInterest(ctx context.Context, rate float64) (int64, error)

	AppendChat(ctx context.Context, rec ChatRecord) error
	RecentChats(ctx context.Context, n int) ([]ChatRecord, error)
}
