// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they need.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	runs      *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	toolCalls *prometheus.CounterVec
	commands  *prometheus.CounterVec
	cooldowns *prometheus.CounterVec
	inFlight  prometheus.Gauge

	totalRuns atomic.Int64
	failed    atomic.Int64
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice_discord",
			Name:      "agent_runs_total",
			Help:      "Agent graph runs by handler, model and status.",
		}, []string{"handler", "model", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lattice_discord",
			Name:      "agent_run_seconds",
			Help:      "Wall-clock duration of agent graph runs.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"handler"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice_discord",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "status"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice_discord",
			Name:      "commands_total",
			Help:      "Discord commands handled.",
		}, []string{"command", "status"}),
		cooldowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice_discord",
			Name:      "cooldown_rejections_total",
			Help:      "Commands rejected because the user was on cooldown.",
		}, []string{"command"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lattice_discord",
			Name:      "agent_runs_in_flight",
			Help:      "Agent runs currently executing.",
		}),
	}
	m.registry.MustRegister(
		m.runs, m.latency, m.toolCalls, m.commands, m.cooldowns, m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveRun(handler, model string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.failed.Add(1)
	}
	m.totalRuns.Add(1)
	m.runs.WithLabelValues(handler, model, status).Inc()
	m.latency.WithLabelValues(handler).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTool(tool string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) ObserveCommand(command string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.commands.WithLabelValues(command, status).Inc()
}

func (m *Metrics) ObserveCooldown(command string) {
	if m == nil {
		return
	}
	m.cooldowns.WithLabelValues(command).Inc()
}

// TrackInFlight increments the in-flight gauge until the returned func runs.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// Snapshot is a cheap summary for logs and the health endpoint.
type Snapshot struct {
	Runs   int64 `json:"runs"`
	Failed int64 `json:"failed"`
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{Runs: m.totalRuns.Load(), Failed: m.failed.Load()}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
