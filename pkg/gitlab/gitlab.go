// Package gitlab is the typed resource facade over the core client: one
// method per API operation, each a thin mapping onto a single request, a
// paginated aggregation, or a completion wait.
package gitlab

import (
	"context"
	"net/http"

	"github.com/qodev/gitlab-api-client/pkg/client"
	"github.com/qodev/gitlab-api-client/pkg/pagination"
)

// perPage is the page size requested from every list endpoint. 100 is the
// maximum GitLab serves.
const perPage = 100

// Client exposes typed GitLab resource operations.
type Client struct {
	api *client.Client
}

// New creates a facade over an explicit configuration.
func New(cfg client.Config) (*Client, error) {
	api, err := client.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{api: api}, nil
}

// NewFromEnv creates a facade with configuration resolved from the
// environment (GITLAB_TOKEN, GITLAB_BASE_URL, optional .env file).
func NewFromEnv() (*Client, error) {
	api, err := client.NewFromEnv()
	if err != nil {
		return nil, err
	}
	return &Client{api: api}, nil
}

// API returns the underlying core client.
func (c *Client) API() *client.Client {
	return c.api
}

// SetHTTPClient replaces the underlying HTTP client (for testing).
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.api.SetHTTPClient(hc)
}

// GetVersion probes /version. Useful as a startup connectivity and
// credential check; an unreachable or unauthenticated instance surfaces as
// the corresponding typed failure.
func (c *Client) GetVersion(ctx context.Context) (*Version, error) {
	var v Version
	if err := c.api.Do(ctx, client.Call{Method: http.MethodGet, Path: "/version"}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// listAll aggregates every page of a list call into a typed slice.
func listAll[T any](ctx context.Context, c *Client, call client.Call) ([]T, error) {
	if call.Query == nil {
		call.Query = client.Params{}
	}
	if _, ok := call.Query["per_page"]; !ok {
		call.Query["per_page"] = perPage
	}
	return pagination.FetchAllAs[T](ctx, c.api, call)
}
