package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AlertsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_alerts_accepted_total",
		Help: "Alerts accepted at the ingestion boundary.",
	})

	AlertsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_alerts_rejected_total",
		Help: "Alerts rejected at the ingestion boundary.",
	}, []string{"reason"})

	Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_verdicts_total",
		Help: "Verdicts returned by the verification engine.",
	}, []string{"verdict"})

	ThreatValues = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vigil_threat_value",
		Help:    "Aggregated threat values at decision time.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	BlocksIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_blocks_issued_total",
		Help: "Confirmed block decisions recorded on the ledger.",
	})

	BlocksSkippedWhitelisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_blocks_skipped_whitelisted_total",
		Help: "Block verdicts refused because the address is whitelisted.",
	})

	EnforcementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_enforcement_failures_total",
		Help: "External firewall invocations that errored or timed out.",
	})

	ProcessingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_processing_failures_total",
		Help: "Accepted alerts whose processing failed and rolled back.",
	})

	ActiveBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vigil_active_blocks",
		Help: "Addresses with an unexpired block on the ledger.",
	})

	AlertQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vigil_alert_queue_depth",
		Help: "Alerts waiting in the worker queue.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
