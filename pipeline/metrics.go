package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brunobiangulo/worksheet/record"
)

// Metrics holds the extraction collectors. A nil *Metrics records nothing.
type Metrics struct {
	documents *prometheus.CounterVec
	pages     prometheus.Counter
	rows      *prometheus.CounterVec
	scrap     prometheus.Counter
	duration  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worksheet",
			Name:      "documents_total",
			Help:      "Documents processed, by outcome.",
		}, []string{"outcome"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worksheet",
			Name:      "pages_total",
			Help:      "Pages of successfully processed documents.",
		}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worksheet",
			Name:      "rows_total",
			Help:      "Logical rows, by result (accepted or rejection reason).",
		}, []string{"result"}),
		scrap: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worksheet",
			Name:      "scrap_records_total",
			Help:      "Accepted records classified as scrap.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "worksheet",
			Name:      "extraction_duration_seconds",
			Help:      "Time spent extracting one document.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	reg.MustRegister(m.documents, m.pages, m.rows, m.scrap, m.duration)
	return m
}

func (m *Metrics) observe(res *Result, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(elapsed.Seconds())
	if err != nil {
		m.documents.WithLabelValues("error").Inc()
		return
	}
	m.documents.WithLabelValues("ok").Inc()
	m.pages.Add(float64(res.Pages))
	m.rows.WithLabelValues(rejectionLabel(record.Accepted)).Add(float64(len(res.Records)))
	for why, n := range res.Skipped {
		m.rows.WithLabelValues(rejectionLabel(why)).Add(float64(n))
	}
	m.scrap.Add(float64(res.Totals.ScrapRows))
}

func rejectionLabel(r record.Rejection) string {
	if r == record.Accepted {
		return "accepted"
	}
	return string(r)
}
