// Package metrics provides Prometheus collectors for the chat and scrape paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeNotFound = "not_found"
)

// Scrape outcomes.
const (
	ScrapeOK          = "ok"
	ScrapeFetchFailed = "fetch_failed"
	ScrapeEmpty       = "empty"
	ScrapeStoreFailed = "store_failed"
)

type Metrics struct {
	ChatRequestsTotal      *prometheus.CounterVec
	GroundedRepliesTotal   prometheus.Counter
	GenerationDuration     prometheus.Histogram
	TranscriptFailures     prometheus.Counter
	ScrapeResultsTotal     *prometheus.CounterVec
	RefreshCycleDuration   prometheus.Histogram
	LastRefreshCycleUnixTs prometheus.Gauge
}

// New registers all collectors on reg. Passing a fresh registry keeps tests
// independent of the global default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChatRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taiyari_chat_requests_total",
				Help: "Chat requests handled, by outcome",
			},
			[]string{"outcome"},
		),
		GroundedRepliesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "taiyari_chat_grounded_replies_total",
			Help: "Replies generated with a knowledge grounding block",
		}),
		GenerationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "taiyari_generation_duration_seconds",
			Help:    "Latency of generation service calls",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		}),
		TranscriptFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "taiyari_transcript_persist_failures_total",
			Help: "Transcript writes that failed and were dropped",
		}),
		ScrapeResultsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taiyari_scrape_results_total",
				Help: "Knowledge refresh attempts, by outcome",
			},
			[]string{"outcome"},
		),
		RefreshCycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "taiyari_refresh_cycle_duration_seconds",
			Help:    "Duration of a full refresh cycle over all tenants",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		LastRefreshCycleUnixTs: f.NewGauge(prometheus.GaugeOpts{
			Name: "taiyari_refresh_cycle_last_completed_timestamp_seconds",
			Help: "Unix time of the last completed refresh cycle",
		}),
	}
}

// Noop returns metrics bound to a throwaway registry.
func Noop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) RecordChat(outcome string) {
	m.ChatRequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordGeneration(d time.Duration) {
	m.GenerationDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordScrape(outcome string) {
	m.ScrapeResultsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRefreshCycle(start time.Time) {
	m.RefreshCycleDuration.Observe(time.Since(start).Seconds())
	m.LastRefreshCycleUnixTs.Set(float64(time.Now().Unix()))
}
