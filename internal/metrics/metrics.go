// Package metrics exposes prometheus counters for the chat economy.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can create as many as they like.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	commands     *prometheus.CounterVec
	economyTicks prometheus.Counter
	tickErrors   prometheus.Counter
	farmCredits  prometheus.Counter
	farmLoops    prometheus.Gauge
	clients      prometheus.Gauge
	dropped      prometheus.Counter
}

func New() *Collector {
	registry := prometheus.NewRegistry()
	return &Collector{
		registry: registry,
		commands: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "empire_commands_total",
			Help: "Chat commands handled, by command keyword and outcome",
		}, []string{"command", "outcome"}),
		economyTicks: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "empire_economy_ticks_total",
			Help: "Completed interest/market scheduler ticks",
		}),
		tickErrors: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "empire_economy_tick_errors_total",
			Help: "Scheduler ticks skipped because of an error",
		}),
		farmCredits: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "empire_farm_credits_total",
			Help: "Rewards credited by farming loops",
		}),
		farmLoops: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "empire_farm_loops",
			Help: "Currently running farming loops",
		}),
		clients: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "empire_connected_clients",
			Help: "Connected chat clients",
		}),
		dropped: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "empire_dropped_messages_total",
			Help: "Outbound messages dropped because a client send queue was full",
		}),
	}
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) CommandHandled(command string, ok bool) {
	if c == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "rejected"
	}
	c.commands.WithLabelValues(command, outcome).Inc()
}

func (c *Collector) TickCompleted() {
	if c == nil {
		return
	}
	c.economyTicks.Inc()
}

func (c *Collector) TickFailed() {
	if c == nil {
		return
	}
	c.tickErrors.Inc()
}

func (c *Collector) FarmCredited() {
	if c == nil {
		return
	}
	c.farmCredits.Inc()
}

func (c *Collector) FarmLoopStarted() {
	if c == nil {
		return
	}
	c.farmLoops.Inc()
}

func (c *Collector) FarmLoopStopped() {
	if c == nil {
		return
	}
	c.farmLoops.Dec()
}

func (c *Collector) ClientConnected() {
	if c == nil {
		return
	}
	c.clients.Inc()
}

func (c *Collector) ClientDisconnected() {
	if c == nil {
		return
	}
	c.clients.Dec()
}

func (c *Collector) MessageDropped() {
	if c == nil {
		return
	}
	c.dropped.Inc()
}
