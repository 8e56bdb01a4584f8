package vectorstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchDuration tracks similarity search latency by backend.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "worken",
			Subsystem: "vectorstore",
			Name:      "search_duration_seconds",
			Help:      "Duration of similarity searches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// OperationsTotal counts index operations.
	// Labels: backend, operation (upsert, search, delete_group, delete), result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "worken",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector index operations",
		},
		[]string{"backend", "operation", "result"},
	)
)

func recordOperation(backend, op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(backend, op, result).Inc()
}

// instrumented records Prometheus metrics around any Store.
type instrumented struct {
	Store
}

// Instrument wraps s with operation counters and the search histogram.
func Instrument(s Store) Store {
	if _, ok := s.(instrumented); ok {
		return s
	}
	return instrumented{Store: s}
}

func (i instrumented) Upsert(ctx context.Context, docs []Document) error {
	err := i.Store.Upsert(ctx, docs)
	recordOperation(i.Name(), "upsert", err)
	return err
}

func (i instrumented) Search(ctx context.Context, projectID string, vector []float32, k int) ([]Result, error) {
	start := time.Now()
	res, err := i.Store.Search(ctx, projectID, vector, k)
	SearchDuration.WithLabelValues(i.Name()).Observe(time.Since(start).Seconds())
	recordOperation(i.Name(), "search", err)
	return res, err
}

func (i instrumented) DeleteGroup(ctx context.Context, projectID, groupID string) error {
	err := i.Store.DeleteGroup(ctx, projectID, groupID)
	recordOperation(i.Name(), "delete_group", err)
	return err
}

func (i instrumented) Delete(ctx context.Context, projectID string, ids ...string) error {
	err := i.Store.Delete(ctx, projectID, ids...)
	recordOperation(i.Name(), "delete", err)
	return err
}
