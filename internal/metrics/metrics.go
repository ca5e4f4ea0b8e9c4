// Package metrics exposes decoder and ingest counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/zsiec/cc608/cea608"
)

const namespace = "cc608"

// Metrics holds the collectors of one process. Each Metrics owns its
// registry so tests and embedders do not collide on the default one.
type Metrics struct {
	reg *prometheus.Registry

	cues         prometheus.Counter
	snapshots    prometheus.Counter
	diagnostics  *prometheus.CounterVec
	accessUnits  prometheus.Counter
	captionPairs *prometheus.CounterVec
	videoCodec   *prometheus.GaugeVec
	liveStreams  prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		cues: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cues_total",
			Help:      "Cues decoded.",
		}),
		snapshots: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots emitted after a cue.",
		}),
		diagnostics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Decoder diagnostics by category.",
		}, []string{"category"}),
		accessUnits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ts",
			Name:      "access_units_total",
			Help:      "Video access units read from MPEG-TS input.",
		}),
		captionPairs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ts",
			Name:      "caption_pairs_total",
			Help:      "CEA-608 byte pairs found in video SEI, by field.",
		}, []string{"field"}),
		videoCodec: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ts",
			Name:      "video_info",
			Help:      "Set to 1 for the codec of the selected video stream.",
		}, []string{"codec"}),
		liveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "srt",
			Name:      "active_streams",
			Help:      "Live SRT streams being decoded.",
		}),
	}
	// Expose every category at zero so dashboards see the full set.
	for _, c := range cea608.Categories() {
		m.diagnostics.WithLabelValues(c.String())
	}
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) RecordCue()      { m.cues.Inc() }
func (m *Metrics) RecordSnapshot() { m.snapshots.Inc() }

func (m *Metrics) RecordVideoCodec(codec string) {
	m.videoCodec.Reset()
	m.videoCodec.WithLabelValues(codec).Set(1)
}

func (m *Metrics) RecordAccessUnit() { m.accessUnits.Inc() }

func (m *Metrics) RecordCaptionPairs(field, n int) {
	m.captionPairs.WithLabelValues(strconv.Itoa(field)).Add(float64(n))
}

// StreamStarted and StreamEnded track live ingest sessions.
func (m *Metrics) StreamStarted() { m.liveStreams.Inc() }
func (m *Metrics) StreamEnded()   { m.liveStreams.Dec() }

// ObserveViewers registers a gauge that samples f at scrape time.
func (m *Metrics) ObserveViewers(f func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "viewers",
		Help:      "Connected websocket viewers.",
	}, func() float64 { return float64(f()) })
}

// Diagnostics counts each diagnostic by category before passing it to
// next. A nil next never aborts.
func (m *Metrics) Diagnostics(next cea608.DiagnosticHandler) cea608.DiagnosticHandler {
	return func(d *cea608.Diagnostic) error {
		m.diagnostics.WithLabelValues(d.Category.String()).Inc()
		if next == nil {
			return nil
		}
		return next(d)
	}
}

// Totals gathers the registry and sums every cc608 counter across its
// labels, keyed by metric name. It backs the end-of-run summary log.
func (m *Metrics) Totals() (map[string]float64, error) {
	families, err := m.reg.Gather()
	if err != nil {
		return nil, err
	}
	totals := make(map[string]float64)
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		name := mf.GetName()
		if len(name) <= len(namespace) || name[:len(namespace)+1] != namespace+"_" {
			continue
		}
		var sum float64
		for _, metric := range mf.GetMetric() {
			sum += metric.GetCounter().GetValue()
		}
		totals[name] = sum
	}
	return totals, nil
}
