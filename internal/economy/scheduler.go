package economy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"empirechat/internal/ledger"
	"empirechat/internal/market"
	"empirechat/internal/metrics"
)

// Scheduler is the recurring economy tick: pay interest on every banked
// balance, drift asset prices, announce the news. One failed iteration is
// logged and skipped; the loop runs until ctx ends.
type Scheduler struct {
	store   ledger.Store
	market  *market.Market
	out     Broadcaster
	log     *slog.Logger
	metrics *metrics.Collector

	every time.Duration
	rate  float64
	low   float64
	high  float64
}

func NewScheduler(store ledger.Store, mkt *market.Market, out Broadcaster, every time.Duration, rate, low, high float64, logger *slog.Logger, collector *metrics.Collector) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:   store,
		market:  mkt,
		out:     out,
		log:     logger,
		metrics: collector,
		every:   every,
		rate:    rate,
		low:     low,
		high:    high,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	s.log.Info("economy scheduler started", "every", s.every.String(), "rate", s.rate)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("economy scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunTick(ctx); err != nil {
				s.metrics.TickFailed()
				s.log.Error("economy tick failed", "err", err)
			}
		}
	}
}

// RunTick performs one accrual + drift + announcement pass.
func (s *Scheduler) RunTick(ctx context.Context) error {
	paid, err := s.store.AccrueInterest(ctx, s.rate)
	if err != nil {
		return fmt.Errorf("accrue interest: %w", err)
	}

	var quotes []string
	for _, sym := range s.market.Symbols() {
		next, err := s.market.Tick(sym, s.low, s.high)
		if err != nil {
			return fmt.Errorf("tick %s: %w", sym, err)
		}
		quotes = append(quotes, fmt.Sprintf("%s %s₩", sym, comma(next)))
	}

	pct := (s.rate - 1) * 100
	s.out.Broadcast(Message{
		Msg: fmt.Sprintf("📰 [imperial economy news] %s | %.0f%% interest paid to %d accounts",
			strings.Join(quotes, ", "), pct, paid),
		Type: MsgNews,
	})
	s.metrics.TickCompleted()
	return nil
}
