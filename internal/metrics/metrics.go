package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	namespaceLookups *prometheus.CounterVec
	ingestions       *prometheus.CounterVec
	embeddedChunks   prometheus.Counter
	retrievals       *prometheus.CounterVec
	contextBuild     prometheus.Histogram
	documentsSkipped *prometheus.CounterVec
	persistFailures  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		namespaceLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "namespace_lookups_total",
			Help:      "ensureEmbedded calls by outcome (hit, miss).",
		}, []string{"outcome"}),
		ingestions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "ingestions_total",
			Help:      "Namespace ingestion passes by result.",
		}, []string{"result"}),
		embeddedChunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "embedded_chunks_total",
			Help:      "Chunks embedded and written to the vector store.",
		}),
		retrievals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "retrievals_total",
			Help:      "Per-document retrievals by result.",
		}, []string{"result"}),
		contextBuild: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docchat",
			Name:      "context_build_seconds",
			Help:      "Time spent assembling RAG context for a chat turn.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		documentsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "documents_skipped_total",
			Help:      "Document references left out of the context, by reason.",
		}, []string{"reason"}),
		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "chat_persist_failures_total",
			Help:      "Chat turns whose messages could not be saved after streaming.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) NamespaceLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.namespaceLookups.WithLabelValues("hit").Inc()
		return
	}
	m.namespaceLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) Ingestion(result string, chunks int) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(result).Inc()
	if result == "complete" {
		m.embeddedChunks.Add(float64(chunks))
	}
}

func (m *Metrics) Retrieval(result string) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(result).Inc()
}

func (m *Metrics) DocumentSkipped(reason string) {
	if m == nil {
		return
	}
	m.documentsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveContextBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.contextBuild.Observe(d.Seconds())
}

func (m *Metrics) PersistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}
