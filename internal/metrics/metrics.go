package metrics

import (
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    pagesReconstructed = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "layoutengine",
            Name:      "pages_reconstructed_total",
            Help:      "Total pages reconstructed by result (success, retry, dlq)",
        },
        []string{"result"},
    )

    reconstructLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "layoutengine",
            Name:      "reconstruction_duration_seconds",
            Help:      "Duration of page reconstruction by strategy",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"strategy"},
    )

    strategySelected = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "layoutengine",
            Name:      "strategy_selected_total",
            Help:      "Strategy selections by strategy name and page topology",
        },
        []string{"strategy", "topology"},
    )

    sequenceGaps = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "layoutengine",
            Name:      "sequence_gaps_total",
            Help:      "Sequence validation findings by kind (forward, reverse, jump)",
        },
        []string{"kind"},
    )

    spatialConflicts = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "layoutengine",
            Name:      "spatial_conflicts_total",
            Help:      "Spatial validation conflicts by severity",
        },
        []string{"severity"},
    )

    corrections = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "layoutengine",
            Name:      "corrections_total",
            Help:      "Correction actions by kind (rename, move, recovered, failed)",
        },
        []string{"kind"},
    )

    retriesTotal = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "layoutengine",
            Name:      "retries_total",
            Help:      "Total number of page retries",
        },
    )

    queueDepth = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Namespace: "layoutengine",
            Name:      "queue_depth",
            Help:      "Queue depth gauges for stream, delayed and dlq",
        },
        []string{"type"},
    )
)

// Init registers collectors.
func Init() {
    prometheus.MustRegister(pagesReconstructed, reconstructLatency, strategySelected, sequenceGaps, spatialConflicts, corrections, retriesTotal, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveReconstruction(strategy, topology string, dur time.Duration) {
    reconstructLatency.WithLabelValues(strategy).Observe(dur.Seconds())
    strategySelected.WithLabelValues(strategy, topology).Inc()
}

func IncReconstructed(result string) { pagesReconstructed.WithLabelValues(result).Inc() }
func IncRetry()                      { retriesTotal.Inc() }

func AddSequenceGaps(kind string, n int) {
    if n > 0 { sequenceGaps.WithLabelValues(kind).Add(float64(n)) }
}

func AddSpatialConflicts(severity string, n int) {
    if n > 0 { spatialConflicts.WithLabelValues(severity).Add(float64(n)) }
}

func AddCorrections(kind string, n int) {
    if n > 0 { corrections.WithLabelValues(kind).Add(float64(n)) }
}

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
