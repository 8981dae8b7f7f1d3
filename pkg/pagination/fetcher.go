package pagination

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/qodev/gitlab-api-client/pkg/client"
)

// Prometheus metrics for pagination.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitlab_api_pages_fetched_total",
		Help: "Total list pages fetched by endpoint",
	}, []string{"endpoint"})

	aggregationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gitlab_api_pagination_duration_seconds",
		Help:    "Full list aggregation duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})
)

// PageFetcher fetches a single page of a list call and reports the cursor
// for the page after it. *client.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, call client.Call, cursor client.Cursor) ([]json.RawMessage, client.Cursor, error)
}

// Fetcher drives a PageFetcher across every page of a list endpoint.
type Fetcher struct {
	fetcher PageFetcher
}

// NewFetcher creates a sequential page aggregator.
func NewFetcher(fetcher PageFetcher) *Fetcher {
	return &Fetcher{fetcher: fetcher}
}

// FetchAll issues the call page by page until no continuation cursor remains
// or a page comes back empty, returning the concatenation of all pages in
// server order. A failure on any page aborts the whole aggregation.
func (f *Fetcher) FetchAll(ctx context.Context, call client.Call) ([]json.RawMessage, error) {
	start := time.Now()
	defer func() {
		aggregationDuration.WithLabelValues(call.Path).Observe(time.Since(start).Seconds())
	}()

	var (
		all    []json.RawMessage
		cursor client.Cursor
		pages  int
	)

	for {
		items, next, err := f.fetcher.FetchPage(ctx, call, cursor)
		if err != nil {
			log.Warn().
				Err(err).
				Str("endpoint", call.Path).
				Int("pages_fetched", pages).
				Msg("Page fetch failed, discarding aggregate")
			return nil, err
		}

		pages++
		pagesFetchedTotal.WithLabelValues(call.Path).Inc()
		all = append(all, items...)

		if len(items) == 0 || next.Empty() {
			break
		}
		cursor = next
	}

	log.Debug().
		Str("endpoint", call.Path).
		Int("pages", pages).
		Int("items", len(all)).
		Dur("duration", time.Since(start)).
		Msg("List aggregation complete")

	return all, nil
}

// FetchAllAs aggregates every page of a list call and decodes the items
// into a typed slice. Item order is exactly the server's.
func FetchAllAs[T any](ctx context.Context, fetcher PageFetcher, call client.Call) ([]T, error) {
	raw, err := NewFetcher(fetcher).FetchAll(ctx, call)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(raw))
	for _, item := range raw {
		var decoded T
		if err := json.Unmarshal(item, &decoded); err != nil {
			return nil, &client.APIError{Method: call.Method, Path: call.Path,
				StatusCode: 200, Body: string(item),
				Message: "unparseable list item: " + err.Error()}
		}
		out = append(out, decoded)
	}
	return out, nil
}
