package documents

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestionsTotal counts ingestion attempts.
	// Labels: source (text, pdf, docx), result (success, empty, error)
	IngestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "worken",
			Subsystem: "documents",
			Name:      "ingestions_total",
			Help:      "Total number of document ingestions",
		},
		[]string{"source", "result"},
	)

	// ChunksIngestedTotal counts stored chunks.
	ChunksIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "worken",
			Subsystem: "documents",
			Name:      "chunks_ingested_total",
			Help:      "Total number of chunks stored by ingestion",
		},
		[]string{"source"},
	)

	IngestionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "worken",
			Subsystem: "documents",
			Name:      "ingestion_duration_seconds",
			Help:      "Duration of document ingestion including embedding",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source"},
	)
)

func recordIngestion(source string, start time.Time, chunks int, err error) {
	result := "success"
	switch {
	case err != nil:
		result = "error"
	case chunks == 0:
		result = "empty"
	}
	IngestionsTotal.WithLabelValues(source, result).Inc()
	IngestionDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err == nil && chunks > 0 {
		ChunksIngestedTotal.WithLabelValues(source).Add(float64(chunks))
	}
}
