// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/poiesic/lectern/core"
)

const namespace = "lectern"

// Metrics holds the Prometheus collectors. It is safe for concurrent use.
type Metrics struct {
	uploads           *prometheus.CounterVec
	documents         *prometheus.CounterVec
	passages          prometheus.Counter
	processing        prometheus.Histogram
	embeddingBatches  *prometheus.CounterVec
	embeddingRetries  prometheus.Counter
	embeddingDuration prometheus.Histogram
	searches          *prometheus.CounterVec
	searchDuration    prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Total number of accepted uploads by result (new or duplicate)",
			},
			[]string{"result"},
		),
		documents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_processed_total",
				Help:      "Total number of documents that reached a terminal status",
			},
			[]string{"status"},
		),
		passages: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passages_stored_total",
				Help:      "Total number of passages written to the vector index",
			},
		),
		processing: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processing_duration_seconds",
				Help:      "Duration of document processing jobs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27m
			},
		),
		embeddingBatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_batches_total",
				Help:      "Total number of embedding batches by result",
			},
			[]string{"result"},
		),
		embeddingRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_retries_total",
				Help:      "Total number of retried embedding calls",
			},
		),
		embeddingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "embedding_batch_duration_seconds",
				Help:      "Duration of embedding batches in seconds, retries included",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
		),
		searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Total number of searches by scope and result",
			},
			[]string{"scope", "result"},
		),
		searchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Duration of searches in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.uploads, m.documents, m.passages, m.processing,
		m.embeddingBatches, m.embeddingRetries, m.embeddingDuration,
		m.searches, m.searchDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// DocumentUploaded counts an accepted upload.
func (m *Metrics) DocumentUploaded(duplicate bool) {
	if duplicate {
		m.uploads.WithLabelValues("duplicate").Inc()
		return
	}
	m.uploads.WithLabelValues("new").Inc()
}

// DocumentFinished records a document reaching a terminal status.
func (m *Metrics) DocumentFinished(status core.Status, passages int, elapsed time.Duration) {
	m.documents.WithLabelValues(string(status)).Inc()
	m.processing.Observe(elapsed.Seconds())
	if status == core.StatusDone {
		m.passages.Add(float64(passages))
	}
}

// EmbeddingBatch records one embedding batch.
func (m *Metrics) EmbeddingBatch(_ int, elapsed time.Duration, err error) {
	m.embeddingBatches.WithLabelValues(result(err)).Inc()
	m.embeddingDuration.Observe(elapsed.Seconds())
}

// EmbeddingRetry counts a retried embedding call.
func (m *Metrics) EmbeddingRetry(int, error) {
	m.embeddingRetries.Inc()
}

// SearchCompleted records one search.
func (m *Metrics) SearchCompleted(scope core.ScopeKind, _ int, elapsed time.Duration, err error) {
	m.searches.WithLabelValues(scope.String(), result(err)).Inc()
	m.searchDuration.Observe(elapsed.Seconds())
}
