package telemetry

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gometrics "github.com/rcrowley/go-metrics"
)

// Self-metric names. They count what the client did with the data it was
// given and are never sent to the collector themselves.
const (
	statLogsAccepted       = "telemetry.logs.accepted"
	statLogsSampledOut     = "telemetry.logs.sampled_out"
	statLogsFiltered       = "telemetry.logs.filtered"
	statMetricsAccepted    = "telemetry.metrics.accepted"
	statMetricsDropped     = "telemetry.metrics.dropped"
	statBatchesSent        = "telemetry.batches.sent"
	statBatchesFailed      = "telemetry.batches.failed"
	statBatchesDropped     = "telemetry.batches.dropped"
	statCallsAfterShutdown = "telemetry.calls.after_shutdown"
	statSendDuration       = "telemetry.send.duration"
)

var statCounterNames = []string{
	statLogsAccepted,
	statLogsSampledOut,
	statLogsFiltered,
	statMetricsAccepted,
	statMetricsDropped,
	statBatchesSent,
	statBatchesFailed,
	statBatchesDropped,
	statCallsAfterShutdown,
}

// clientStats holds one client's counters in a private go-metrics registry,
// so two clients in one process do not share numbers.
type clientStats struct {
	registry gometrics.Registry

	logsAccepted       gometrics.Counter
	logsSampledOut     gometrics.Counter
	logsFiltered       gometrics.Counter
	metricsAccepted    gometrics.Counter
	metricsDropped     gometrics.Counter
	batchesSent        gometrics.Counter
	batchesFailed      gometrics.Counter
	batchesDropped     gometrics.Counter
	callsAfterShutdown gometrics.Counter
	sendDuration       gometrics.Timer
}

func newClientStats() *clientStats {
	r := gometrics.NewRegistry()
	return &clientStats{
		registry:           r,
		logsAccepted:       gometrics.GetOrRegisterCounter(statLogsAccepted, r),
		logsSampledOut:     gometrics.GetOrRegisterCounter(statLogsSampledOut, r),
		logsFiltered:       gometrics.GetOrRegisterCounter(statLogsFiltered, r),
		metricsAccepted:    gometrics.GetOrRegisterCounter(statMetricsAccepted, r),
		metricsDropped:     gometrics.GetOrRegisterCounter(statMetricsDropped, r),
		batchesSent:        gometrics.GetOrRegisterCounter(statBatchesSent, r),
		batchesFailed:      gometrics.GetOrRegisterCounter(statBatchesFailed, r),
		batchesDropped:     gometrics.GetOrRegisterCounter(statBatchesDropped, r),
		callsAfterShutdown: gometrics.GetOrRegisterCounter(statCallsAfterShutdown, r),
		sendDuration:       gometrics.GetOrRegisterTimer(statSendDuration, r),
	}
}

// Stats is a snapshot of a client's self-metrics.
type Stats struct {
	LogsAccepted       int64   `json:"logs_accepted"`
	LogsSampledOut     int64   `json:"logs_sampled_out"`
	LogsFiltered       int64   `json:"logs_filtered"`
	MetricsAccepted    int64   `json:"metrics_accepted"`
	MetricsDropped     int64   `json:"metrics_dropped"`
	BatchesSent        int64   `json:"batches_sent"`
	BatchesFailed      int64   `json:"batches_failed"`
	BatchesDropped     int64   `json:"batches_dropped"`
	CallsAfterShutdown int64   `json:"calls_after_shutdown"`
	SendCount          int64   `json:"send_count"`
	SendMeanMS         float64 `json:"send_mean_ms"`
	SendP99MS          float64 `json:"send_p99_ms"`
}

func (s *clientStats) snapshot() Stats {
	timer := s.sendDuration.Snapshot()
	return Stats{
		LogsAccepted:       s.logsAccepted.Count(),
		LogsSampledOut:     s.logsSampledOut.Count(),
		LogsFiltered:       s.logsFiltered.Count(),
		MetricsAccepted:    s.metricsAccepted.Count(),
		MetricsDropped:     s.metricsDropped.Count(),
		BatchesSent:        s.batchesSent.Count(),
		BatchesFailed:      s.batchesFailed.Count(),
		BatchesDropped:     s.batchesDropped.Count(),
		CallsAfterShutdown: s.callsAfterShutdown.Count(),
		SendCount:          timer.Count(),
		SendMeanMS:         timer.Mean() / float64(time.Millisecond),
		SendP99MS:          timer.Percentile(0.99) / float64(time.Millisecond),
	}
}

// StatsCollector exposes a client's self-metrics to Prometheus:
//
//	prometheus.MustRegister(telemetry.NewStatsCollector(client))
type StatsCollector struct {
	stats    *clientStats
	counters map[string]*prometheus.Desc
	send     *prometheus.Desc
	pending  *prometheus.Desc
	spans    *prometheus.Desc
	client   *Client
}

// NewStatsCollector builds a collector labelled with the client's service.
func NewStatsCollector(c *Client) *StatsCollector {
	labels := prometheus.Labels{"service": c.ServiceName()}
	sc := &StatsCollector{
		stats:    c.stats,
		client:   c,
		counters: make(map[string]*prometheus.Desc, len(statCounterNames)),
	}
	for _, name := range statCounterNames {
		sc.counters[name] = prometheus.NewDesc(promName(name)+"_total", "LogFire client "+name, nil, labels)
	}
	sc.send = prometheus.NewDesc(promName(statSendDuration)+"_seconds", "Time spent sending a batch to the collector", nil, labels)
	sc.pending = prometheus.NewDesc("logfire_telemetry_buffered", "Entries waiting for the next flush", []string{"stream"}, labels)
	sc.spans = prometheus.NewDesc("logfire_telemetry_active_spans", "Spans started but not yet ended", nil, labels)
	return sc
}

func promName(name string) string {
	return "logfire_" + strings.ReplaceAll(name, ".", "_")
}

func (sc *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range sc.counters {
		ch <- d
	}
	ch <- sc.send
	ch <- sc.pending
	ch <- sc.spans
}

func (sc *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	for name, desc := range sc.counters {
		c, ok := sc.stats.registry.Get(name).(gometrics.Counter)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(c.Count()))
	}

	timer := sc.stats.sendDuration.Snapshot()
	quantiles := map[float64]float64{}
	for _, q := range []float64{0.5, 0.9, 0.99} {
		quantiles[q] = timer.Percentile(q) / float64(time.Second)
	}
	ch <- prometheus.MustNewConstSummary(sc.send, uint64(timer.Count()), float64(timer.Sum())/float64(time.Second), quantiles)

	logs, metrics := sc.client.buf.pending()
	ch <- prometheus.MustNewConstMetric(sc.pending, prometheus.GaugeValue, float64(logs), "logs")
	ch <- prometheus.MustNewConstMetric(sc.pending, prometheus.GaugeValue, float64(metrics), "metrics")
	ch <- prometheus.MustNewConstMetric(sc.spans, prometheus.GaugeValue, float64(sc.client.ActiveSpans()))
}
