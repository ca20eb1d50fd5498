// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "lakehouse"

	MetricIngestionRuns      = "ingestion_runs_total"
	MetricIngestedRecords    = "ingested_records_total"
	MetricConversions        = "conversions_total"
	MetricSweepTables        = "sweep_tables_total"
	MetricHTTPRequestSeconds = "http_request_duration_seconds"
)

var CounterIngestionRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricIngestionRuns,
		Help:      "Raw-layer ingestion runs by source and status.",
	},
	[]string{
		"source",
		"status",
	},
)

var CounterIngestedRecords = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricIngestedRecords,
		Help:      "Records written to the raw layer.",
	},
	[]string{
		"table",
	},
)

var CounterConversions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricConversions,
		Help:      "Curated-layer conversions by operation.",
	},
	[]string{
		"operation",
	},
)

var CounterSweepTables = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricSweepTables,
		Help:      "Tables processed by the conversion sweep.",
	},
	[]string{
		"status",
	},
)

var HistogramHTTPRequest = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      MetricHTTPRequestSeconds,
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{
		"route",
		"method",
		"code",
	},
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

func init() {
	prometheus.MustRegister(CounterIngestionRuns)
	prometheus.MustRegister(CounterIngestedRecords)
	prometheus.MustRegister(CounterConversions)
	prometheus.MustRegister(CounterSweepTables)
	prometheus.MustRegister(HistogramHTTPRequest)
}

// Status maps an error to the status label.
func Status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}
