package economy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"empirechat/internal/ledger"
	"empirechat/internal/metrics"
)

// Registry tracks at most one running farming loop per nickname. Start and
// Stop are idempotent; the loop itself only ever observes its done channel,
// so stopping lags by at most one period and never kills a credit mid-write.
type Registry struct {
	ctx     context.Context
	store   ledger.Store
	out     Broadcaster
	log     *slog.Logger
	metrics *metrics.Collector
	period  time.Duration
	reward  int64

	mu    sync.Mutex
	loops map[string]chan struct{}
}

// NewRegistry binds loops to ctx: when it ends, every loop exits on its next
// wake-up.
func NewRegistry(ctx context.Context, store ledger.Store, out Broadcaster, period time.Duration, reward int64, logger *slog.Logger, collector *metrics.Collector) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		ctx:     ctx,
		store:   store,
		out:     out,
		log:     logger,
		metrics: collector,
		period:  period,
		reward:  reward,
		loops:   make(map[string]chan struct{}),
	}
}

// Start launches a farming loop for nickname unless one is already running.
// The check-and-insert is atomic, so concurrent starts spawn exactly one loop.
func (r *Registry) Start(nickname string) bool {
	r.mu.Lock()
	if _, running := r.loops[nickname]; running {
		r.mu.Unlock()
		return false
	}
	done := make(chan struct{})
	r.loops[nickname] = done
	r.mu.Unlock()

	r.metrics.FarmLoopStarted()
	go r.run(nickname, done)
	return true
}

// Stop clears the flag. The loop exits at its next wake-up; a stop for an
// idle nickname is a no-op.
func (r *Registry) Stop(nickname string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	done, running := r.loops[nickname]
	if !running {
		return false
	}
	delete(r.loops, nickname)
	close(done)
	return true
}

// IsRunning reports whether nickname has a live loop.
func (r *Registry) IsRunning(nickname string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, running := r.loops[nickname]
	return running
}

// Active counts running loops.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loops)
}

func (r *Registry) run(nickname string, done chan struct{}) {
	defer r.cleanup(nickname, done)

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.ctx.Done():
			return
		default:
		}

		if _, err := r.store.Adjust(r.ctx, nickname, ledger.FieldBank, r.reward); err != nil {
			r.log.Error("farm credit failed", "nickname", nickname, "err", err)
		} else {
			r.metrics.FarmCredited()
			r.out.Broadcast(Message{
				Nickname: nickname,
				Msg:      fmt.Sprintf("🌀 farming... (+%s₩ banked)", comma(r.reward)),
				Type:     MsgFarm,
			})
		}

		select {
		case <-done:
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cleanup drops the registry entry when a loop dies of ctx cancellation; if
// Stop already removed it (or a new loop replaced it), the entry is left
// alone.
func (r *Registry) cleanup(nickname string, done chan struct{}) {
	r.mu.Lock()
	if current, ok := r.loops[nickname]; ok && current == done {
		delete(r.loops, nickname)
	}
	r.mu.Unlock()
	r.metrics.FarmLoopStopped()
}
