// SPDX-License-Identifier: MIT
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Source metrics
	sourceFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_source_fetch_total",
		Help: "Source retrievals by outcome",
	}, []string{"source", "outcome"}) // outcome=success|cached|error

	sourceFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "epgmerge_source_fetch_duration_seconds",
		Help:    "Time spent retrieving and parsing one source",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"source"})

	sourceRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "epgmerge_source_records",
		Help: "Records read from each source in the last run",
	}, []string{"source", "kind"}) // kind=channel|programme

	// Merge metrics
	mergeSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_merge_skips_total",
		Help: "Records dropped during merge by reason",
	}, []string{"source", "reason"}) // reason=vod|orphan|duplicate|malformed_time

	channelsWritten = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epgmerge_channels_written",
		Help: "Channels written to the merged guide in the last run",
	})

	programmesWritten = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epgmerge_programmes_written",
		Help: "Programmes written to the merged guide in the last run",
	})

	// Run metrics
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_runs_total",
		Help: "Refresh runs by outcome",
	}, []string{"outcome"}) // outcome=success|partial|failed

	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epgmerge_last_success_timestamp_seconds",
		Help: "Unix time of the last run that wrote a guide",
	})

	cacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_cache_requests_total",
		Help: "Payload cache lookups by result",
	}, []string{"result"}) // result=hit|miss

	configReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_config_reloads_total",
		Help: "Configuration reload attempts by outcome",
	}, []string{"outcome"})
)

// RecordSourceFetch records one source retrieval.
func RecordSourceFetch(source, outcome string, d time.Duration) {
	sourceFetchTotal.WithLabelValues(source, outcome).Inc()
	sourceFetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

func RecordSourceRecords(source string, channels, programmes int) {
	sourceRecords.WithLabelValues(source, "channel").Set(float64(channels))
	sourceRecords.WithLabelValues(source, "programme").Set(float64(programmes))
}

// AddMergeSkips adds n dropped records; zero counts are ignored.
func AddMergeSkips(source, reason string, n int) {
	if n <= 0 {
		return
	}
	mergeSkipsTotal.WithLabelValues(source, reason).Add(float64(n))
}

func RecordGuideWritten(channels, programmes int, at time.Time) {
	channelsWritten.Set(float64(channels))
	programmesWritten.Set(float64(programmes))
	lastSuccess.Set(float64(at.Unix()))
}

func IncRun(outcome string)          { runsTotal.WithLabelValues(outcome).Inc() }
func IncCacheRequest(result string)  { cacheRequestsTotal.WithLabelValues(result).Inc() }
func IncConfigReload(outcome string) { configReloadsTotal.WithLabelValues(outcome).Inc() }
