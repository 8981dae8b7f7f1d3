// Package metrics documents the Prometheus metrics exposed by the GitLab
// client. All metrics are defined in their owning packages (client,
// pagination, poll) via promauto to keep registration next to the code that
// drives them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer used by the client.
// All metrics are automatically registered via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - gitlab_api_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - gitlab_api_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - gitlab_api_errors_total{kind} (Counter): Errors by taxonomy kind
//     (config, auth, not_found, api, transport)
//
// Pagination Metrics (pkg/pagination):
//   - gitlab_api_pages_fetched_total{endpoint} (Counter): List pages fetched
//   - gitlab_api_pagination_duration_seconds{endpoint} (Histogram): Full aggregation duration
//
// Poll Metrics (pkg/poll):
//   - gitlab_poll_checks_total (Counter): Status checks performed
//   - gitlab_poll_timeouts_total (Counter): Waits ended by local timeout
//   - gitlab_poll_duration_seconds (Histogram): Total wait duration
//
// Example Prometheus Queries:
//
//   # Request Error Rate
//   rate(gitlab_api_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(gitlab_api_request_duration_seconds_bucket[5m]))
//
//   # Auth failures
//   rate(gitlab_api_errors_total{kind="auth"}[5m])
