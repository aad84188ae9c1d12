package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sink metrics
	feedBytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiofeed_bytes_written_total",
		Help: "Total bytes written to the feed pipe",
	}, []string{"kind"}) // kind: "clip" or "silence"

	feedState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audiofeed_writer_state",
		Help: "Feed writer state (0=awaiting_reader, 1=active, 2=disconnected, 3=stopped)",
	})

	feedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audiofeed_reconnects_total",
		Help: "Number of times the pipe was reopened after the reader went away",
	})

	feedOutputLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audiofeed_output_level",
		Help: "RMS level of the last clip chunk written, 0..1 of full scale",
	})

	// Queue metrics
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audiofeed_queue_length",
		Help: "Number of clips waiting in the playback queue",
	})

	clipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiofeed_clips_total",
		Help: "Clips by outcome",
	}, []string{"result"}) // result: queued, rejected, played, aborted, failed

	clipDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "audiofeed_clip_duration_seconds",
		Help:    "Playback length of streamed clips",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	// Producer metrics
	enqueueRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiofeed_enqueue_requests_total",
		Help: "Enqueue requests by producer and status",
	}, []string{"source", "status"})

	speechLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "audiofeed_speech_latency_seconds",
		Help:    "Speech synthesis latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audiofeed_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	// Event hub metrics
	eventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audiofeed_event_subscribers",
		Help: "Connected websocket event subscribers",
	})
)

// RecordBytes records bytes written to the sink
func RecordBytes(kind string, n int) {
	feedBytesWritten.WithLabelValues(kind).Add(float64(n))
}

// SetWriterState records the writer state as its numeric value
func SetWriterState(state int) {
	feedState.Set(float64(state))
}

// IncrementReconnects counts a close-and-reopen cycle
func IncrementReconnects() {
	feedReconnects.Inc()
}

// SetOutputLevel records the level of the last clip chunk
func SetOutputLevel(level float64) {
	feedOutputLevel.Set(level)
}

// SetQueueDepth records the current playback queue length
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordClip counts a clip outcome
func RecordClip(result string) {
	clipsTotal.WithLabelValues(result).Inc()
}

// ObserveClipDuration records the playback length of a streamed clip
func ObserveClipDuration(seconds float64) {
	clipDuration.Observe(seconds)
}

// RecordEnqueueRequest counts a producer request
func RecordEnqueueRequest(source, status string) {
	enqueueRequests.WithLabelValues(source, status).Inc()
}

// ObserveSpeechLatency records how long a synthesis call took
func ObserveSpeechLatency(seconds float64) {
	speechLatency.Observe(seconds)
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// SetEventSubscribers records the number of websocket subscribers
func SetEventSubscribers(n int) {
	eventSubscribers.Set(float64(n))
}
