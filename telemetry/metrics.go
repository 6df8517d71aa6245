// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles        prometheus.Counter
	PollFailures      prometheus.Counter
	MessagesIngested  prometheus.Counter
	DuplicatesDropped prometheus.Counter
	MalformedSkipped  prometheus.Counter
	SeenEvictions     prometheus.Counter
	MessagesSpoken    prometheus.Counter
	SpeakFailures     prometheus.Counter

	// Histograms (seconds)
	SpeakDuration prometheus.Observer

	// Gauges
	QueueDepthGauge prometheus.Gauge
	ChatLiveGauge   prometheus.Gauge // 1=connected to a live chat, 0=not
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "narrator_poll_cycles_total", Help: "Number of chat poll cycles"})
		PollFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "narrator_poll_failures_total", Help: "Number of failed chat poll cycles"})
		MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "narrator_messages_ingested_total", Help: "Number of messages accepted into the delivery queue"})
		DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "narrator_duplicates_dropped_total", Help: "Number of redelivered messages dropped by the seen-set"})
		MalformedSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "narrator_malformed_skipped_total", Help: "Number of malformed messages skipped during ingest"})
		SeenEvictions = promauto.NewCounter(prometheus.CounterOpts{Name: "narrator_seen_evictions_total", Help: "Number of delivered ids evicted from the bounded seen-set"})
		MessagesSpoken = promauto.NewCounter(prometheus.CounterOpts{Name: "narrator_messages_spoken_total", Help: "Number of messages narrated"})
		SpeakFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "narrator_speak_failures_total", Help: "Number of narration attempts that failed"})
		SpeakDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "narrator_speak_duration_seconds", Help: "Speech synthesis and playback duration seconds", Buckets: prometheus.DefBuckets})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "narrator_queue_depth", Help: "Messages currently queued for narration"})
		ChatLiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "narrator_chat_live", Help: "Connected to an active live chat=1, otherwise 0"})
	})
}

// RecordIngest feeds sequencer ingest counts into the counters.
func RecordIngest(accepted, duplicates, malformed, evicted int) {
	if MessagesIngested == nil {
		return
	}
	MessagesIngested.Add(float64(accepted))
	DuplicatesDropped.Add(float64(duplicates))
	MalformedSkipped.Add(float64(malformed))
	SeenEvictions.Add(float64(evicted))
}

// SetQueueDepth records the current delivery queue depth.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// SetChatLive sets gauge to 1 if connected else 0.
func SetChatLive(live bool) {
	if ChatLiveGauge != nil {
		if live {
			ChatLiveGauge.Set(1)
		} else {
			ChatLiveGauge.Set(0)
		}
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
