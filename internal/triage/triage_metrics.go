package triage

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/vettriage/internal/answercache"
	"github.com/linnemanlabs/vettriage/internal/rules"
	"github.com/linnemanlabs/vettriage/internal/vqa"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	QuestionsTotal    *prometheus.CounterVec
	ModelCallsTotal   *prometheus.CounterVec
	ModelCallDuration *prometheus.HistogramVec
	ModelStartsTotal  *prometheus.CounterVec
	ModelReady        prometheus.Gauge
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	CacheEvictions    prometheus.Counter
	DBQueryDuration   *prometheus.HistogramVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vettriage_runs_total",
			Help: "Total triage runs by urgency and outcome.",
		}, []string{"urgency", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vettriage_run_duration_seconds",
			Help:    "Duration of triage runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12), // 0.25s .. ~512s
		}, []string{"mode"}),
		QuestionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vettriage_questions_total",
			Help: "Questions answered during runs by tier, status and source.",
		}, []string{"tier", "status", "source"}),
		ModelCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vettriage_model_calls_total",
			Help: "Total model calls by execution mode and status.",
		}, []string{"mode", "status"}),
		ModelCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vettriage_model_call_duration_seconds",
			Help:    "Duration of individual model calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 11), // 50ms .. ~51s
		}, []string{"mode"}),
		ModelStartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vettriage_model_starts_total",
			Help: "Successful model loads by execution mode and whether the portable fallback was used.",
		}, []string{"mode", "fell_back"}),
		ModelReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vettriage_model_ready",
			Help: "1 once the model is loaded.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vettriage_answer_cache_hits_total",
			Help: "Answer cache lookups that found a bundle.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vettriage_answer_cache_misses_total",
			Help: "Answer cache lookups that found nothing.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vettriage_answer_cache_evictions_total",
			Help: "Bundles evicted from the answer cache.",
		}),
		DBQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vettriage_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms .. ~1s
		}, []string{"method", "route", "outcome"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.QuestionsTotal,
		m.ModelCallsTotal,
		m.ModelCallDuration,
		m.ModelStartsTotal,
		m.ModelReady,
		m.CacheHits,
		m.CacheMisses,
		m.CacheEvictions,
		m.DBQueryDuration,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnQuestion: func(tier rules.Tier, failed, cached bool) {
			status := "ok"
			if failed {
				status = "failed"
			}
			source := "model"
			if cached {
				source = "cache"
			}
			m.QuestionsTotal.WithLabelValues(string(tier), status, source).Inc()
		},
		OnComplete: func(e *CompleteEvent) {
			outcome := "complete"
			switch {
			case e.Failed:
				outcome = "failed"
			case e.Truncated:
				outcome = "truncated"
			}
			m.RunsTotal.WithLabelValues(string(e.Urgency), outcome).Inc()
			m.RunDuration.WithLabelValues(modeLabel(e.Mode)).Observe(e.Duration)
		},
	}
}

// GatewayHooks returns vqa.Hooks feeding the model metrics.
func (m *Metrics) GatewayHooks() vqa.Hooks {
	return vqa.Hooks{
		OnStart: func(mode vqa.Mode, fellBack bool) {
			m.ModelStartsTotal.WithLabelValues(string(mode), strconv.FormatBool(fellBack)).Inc()
			m.ModelReady.Set(1)
		},
		OnCall: func(mode vqa.Mode, duration float64, err error) {
			status := "success"
			if err != nil {
				status = "error"
			}
			m.ModelCallsTotal.WithLabelValues(string(mode), status).Inc()
			m.ModelCallDuration.WithLabelValues(string(mode)).Observe(duration)
		},
	}
}

// CacheHooks returns answercache.Hooks feeding the cache counters.
func (m *Metrics) CacheHooks() answercache.Hooks {
	return answercache.Hooks{
		OnHit:   m.CacheHits.Inc,
		OnMiss:  m.CacheMisses.Inc,
		OnEvict: m.CacheEvictions.Inc,
	}
}

// ObserveQuery records a database query. It satisfies postgres.QueryObserver.
func (m *Metrics) ObserveQuery(_ context.Context, method, route, outcome string, dur time.Duration) {
	m.DBQueryDuration.WithLabelValues(method, route, outcome).Observe(dur.Seconds())
}

func modeLabel(mode vqa.Mode) string {
	if mode == "" {
		return "none"
	}
	return string(mode)
}
