package ledger

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Postgres is the durable Store. Every adjustment is a single UPDATE whose
// WHERE clause enforces the non-negative invariant, so the database serializes
// concurrent writers and a stale precondition check upstream can never drive a
// balance below zero.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// InitSchema creates the tables if they do not exist yet.
func (p *Postgres) InitSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (p *Postgres) GetOrCreate(ctx context.Context, nickname string) (Account, error) {
	if _, err := p.pool.Exec(ctx, `
		INSERT INTO accounts (nickname) VALUES ($1)
		ON CONFLICT (nickname) DO NOTHING
	`, nickname); err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return p.Snapshot(ctx, nickname)
}

func (p *Postgres) Adjust(ctx context.Context, nickname string, field Field, delta int64) (int64, error) {
	var query string
	switch field {
	case FieldCash:
		query = `
			UPDATE accounts SET cash = cash + $1
			WHERE nickname = $2 AND cash + $1 >= 0
			RETURNING cash`
	case FieldBank:
		query = `
			UPDATE accounts SET bank = bank + $1
			WHERE nickname = $2 AND bank + $1 >= 0
			RETURNING bank`
	default:
		return 0, ErrUnknownField
	}

	var next int64
	err := p.pool.QueryRow(ctx, query, delta, nickname).Scan(&next)
	if err == pgx.ErrNoRows {
		return 0, p.rejectReason(ctx, nickname)
	}
	if err != nil {
		return 0, fmt.Errorf("adjust %s: %w", field, err)
	}
	return next, nil
}

// rejectReason distinguishes a missing account from an insufficient balance
// after an adjust matched no row.
func (p *Postgres) rejectReason(ctx context.Context, nickname string) error {
	var one int
	err := p.pool.QueryRow(ctx, `SELECT 1 FROM accounts WHERE nickname = $1`, nickname).Scan(&one)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}
	return ErrInsufficientFunds
}

func (p *Postgres) AdjustHolding(ctx context.Context, nickname, asset string, delta float64) (float64, error) {
	var qty float64
	if delta >= 0 {
		err := p.pool.QueryRow(ctx, `
			INSERT INTO holdings (nickname, asset, qty) VALUES ($1, $2, $3)
			ON CONFLICT (nickname, asset) DO UPDATE SET qty = holdings.qty + EXCLUDED.qty
			RETURNING qty
		`, nickname, asset, delta).Scan(&qty)
		if err != nil {
			return 0, fmt.Errorf("adjust holding: %w", err)
		}
		return qty, nil
	}

	err := p.pool.QueryRow(ctx, `
		UPDATE holdings SET qty = qty + $3
		WHERE nickname = $1 AND asset = $2 AND qty + $3 >= 0
		RETURNING qty
	`, nickname, asset, delta).Scan(&qty)
	if err == pgx.ErrNoRows {
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("adjust holding: %w", err)
	}
	return qty, nil
}

func (p *Postgres) Snapshot(ctx context.Context, nickname string) (Account, error) {
	acc := Account{Nickname: nickname, Holdings: map[string]float64{}}
	err := p.pool.QueryRow(ctx, `
		SELECT cash, bank FROM accounts WHERE nickname = $1
	`, nickname).Scan(&acc.Cash, &acc.Bank)
	if err == pgx.ErrNoRows {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("snapshot: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT asset, qty FROM holdings WHERE nickname = $1 AND qty > 0
	`, nickname)
	if err != nil {
		return Account{}, fmt.Errorf("snapshot holdings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var asset string
		var qty float64
		if err := rows.Scan(&asset, &qty); err != nil {
			return Account{}, err
		}
		acc.Holdings[asset] = qty
	}
	if err := rows.Err(); err != nil {
		return Account{}, err
	}
	return acc, nil
}

func (p *Postgres) TopByWealth(ctx context.Context, n int) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT nickname, cash + bank AS total
		FROM accounts
		ORDER BY total DESC, seq ASC
		LIMIT $1
	`, n)
	if err != nil {
		return nil, fmt.Errorf("top by wealth: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Nickname, &e.Total); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) AccrueInterest(ctx context.Context, rate float64) (int64, error) {
	// FLOOR, not CAST: a bigint cast rounds in Postgres and interest
	// truncates down.
	tag, err := p.pool.Exec(ctx, `
		UPDATE accounts SET bank = FLOOR(bank * $1)::bigint WHERE bank > 0
	`, rate)
	if err != nil {
		return 0, fmt.Errorf("accrue interest: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) AppendChat(ctx context.Context, rec ChatRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO chats (nickname, msg, type, rank) VALUES ($1, $2, $3, $4)
	`, rec.Nickname, rec.Msg, rec.Type, rec.Rank)
	if err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	return nil
}

func (p *Postgres) RecentChats(ctx context.Context, n int) ([]ChatRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT nickname, msg, type, COALESCE(rank, '')
		FROM (
			SELECT id, nickname, msg, type, rank FROM chats ORDER BY id DESC LIMIT $1
		) latest
		ORDER BY id ASC
	`, n)
	if err != nil {
		return nil, fmt.Errorf("recent chats: %w", err)
	}
	defer rows.Close()

	var out []ChatRecord
	for rows.Next() {
		var rec ChatRecord
		if err := rows.Scan(&rec.Nickname, &rec.Msg, &rec.Type, &rec.Rank); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
