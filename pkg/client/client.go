// Package client provides the core GitLab HTTP engine: single-request
// execution, authentication, response decoding, and the typed error taxonomy
// shared by every resource method.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitlab_api_requests_total",
		Help: "Total GitLab API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gitlab_api_request_duration_seconds",
		Help:    "GitLab API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitlab_api_errors_total",
		Help: "Total GitLab API errors by taxonomy kind",
	}, []string{"kind"})
)

// Client is the core GitLab API client. It performs exactly one HTTP round
// trip per call: no retries, no caching, no request-level parallelism. The
// resolved configuration is read-only after New, so a Client is safe for
// concurrent use to the extent the underlying http.Client is.
type Client struct {
	httpClient *http.Client
	config     Config
	apiURL     string
	logger     zerolog.Logger
}

// New creates a client from an already-resolved configuration.
// A configuration failure surfaces before any network activity.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "gitlab-client").Logger()

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
		apiURL:     strings.TrimRight(cfg.BaseURL, "/") + "/api/v4",
		logger:     logger,
	}, nil
}

// NewFromEnv resolves the configuration from the environment and creates a
// client from it.
func NewFromEnv() (*Client, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// BaseURL returns the configured instance URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// SetHTTPClient replaces the underlying HTTP client (for testing).
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// response is the raw outcome of one successful round trip.
type response struct {
	status int
	body   []byte
	header http.Header
}

// Do executes one call and decodes the response into out.
//
// The expected response shape is expressed through out:
//   - nil: no body expected, any body is discarded
//   - *[]byte: raw bytes (job logs, artifacts, raw files)
//   - anything else: JSON-decoded into out
//
// Every failure is one of the typed errors in this package; Do never returns
// a partially-decoded result.
func (c *Client) Do(ctx context.Context, call Call, out any) error {
	resp, err := c.roundTrip(ctx, call, Cursor{})
	if err != nil {
		return err
	}
	return decodeInto(call, resp, out)
}

// roundTrip builds, authenticates and sends one request, classifying any
// non-2xx outcome. cursor, when non-empty, redirects the request to the next
// page of a list endpoint.
func (c *Client) roundTrip(ctx context.Context, call Call, cursor Cursor) (*response, error) {
	req, err := c.buildRequest(ctx, call, cursor)
	if err != nil {
		return nil, err
	}

	endpoint := call.Path
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	c.logger.Debug().
		Str("method", call.Method).
		Str("endpoint", endpoint).
		Msg("Executing GitLab request")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).
			Str("method", call.Method).
			Str("endpoint", endpoint).
			Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(KindTransport)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &TransportError{Method: call.Method, Path: call.Path, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(KindTransport)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &TransportError{Method: call.Method, Path: call.Path, Err: err}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(httpResp.StatusCode)).Inc()

	if httpResp.StatusCode >= 400 {
		typed := classifyStatus(call.Method, call.Path, httpResp.StatusCode, body)
		errorsTotal.WithLabelValues(string(KindOf(typed))).Inc()
		c.logger.Warn().
			Str("method", call.Method).
			Str("endpoint", endpoint).
			Int("status", httpResp.StatusCode).
			Str("kind", string(KindOf(typed))).
			Msg("GitLab request error")
		return nil, typed
	}

	return &response{
		status: httpResp.StatusCode,
		body:   body,
		header: httpResp.Header,
	}, nil
}

// buildRequest assembles the absolute URL, serializes the body and attaches
// the authentication header.
func (c *Client) buildRequest(ctx context.Context, call Call, cursor Cursor) (*http.Request, error) {
	target := c.apiURL + call.Path
	if cursor.NextURL != "" {
		// Absolute next-page URL from a Link header is used verbatim.
		target = cursor.NextURL
	} else {
		query := call.Query.Encode()
		if cursor.NextPage > 0 {
			query.Set("page", strconv.Itoa(cursor.NextPage))
		}
		if encoded := query.Encode(); encoded != "" {
			target += "?" + encoded
		}
	}

	var (
		reqBody     io.Reader
		contentType string
	)
	switch {
	case call.Upload != nil:
		buf, ct, err := encodeMultipart(call.Upload)
		if err != nil {
			return nil, &TransportError{Method: call.Method, Path: call.Path, Err: err}
		}
		reqBody, contentType = buf, ct
	case call.Body != nil:
		encoded, err := json.Marshal(call.Body)
		if err != nil {
			return nil, &TransportError{Method: call.Method, Path: call.Path,
				Err: fmt.Errorf("encode request body: %w", err)}
		}
		reqBody, contentType = bytes.NewReader(encoded), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, target, reqBody)
	if err != nil {
		return nil, &TransportError{Method: call.Method, Path: call.Path, Err: err}
	}

	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// encodeMultipart builds a single-file multipart body. The part's filename
// and content type come straight from the Multipart value; content is never
// sniffed.
func encodeMultipart(up *Multipart) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	field := up.Field
	if field == "" {
		field = "file"
	}
	partType := up.ContentType
	if partType == "" {
		partType = "application/octet-stream"
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, up.Filename))
	header.Set("Content-Type", partType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(up.Content); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf, writer.FormDataContentType(), nil
}

// decodeInto interprets a 2xx response according to the call's expected
// shape. A 2xx body that cannot be decoded is itself an APIError carrying
// the 2xx status and a decode note.
func decodeInto(call Call, resp *response, out any) error {
	switch target := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*target = resp.body
		return nil
	default:
		if len(resp.body) == 0 {
			return &APIError{Method: call.Method, Path: call.Path,
				StatusCode: resp.status, Message: "empty response body"}
		}
		if err := json.Unmarshal(resp.body, target); err != nil {
			return &APIError{Method: call.Method, Path: call.Path,
				StatusCode: resp.status, Body: string(resp.body),
				Message: fmt.Sprintf("unparseable response body: %v", err)}
		}
		return nil
	}
}

// Cursor is the opaque continuation state between two pages of a list
// endpoint. The zero Cursor means "no further pages".
type Cursor struct {
	// NextURL is an absolute next-page URL taken from a Link header.
	NextURL string

	// NextPage is the next page number taken from page-counter headers.
	NextPage int
}

// Empty reports whether the cursor carries no continuation.
func (c Cursor) Empty() bool {
	return c.NextURL == "" && c.NextPage == 0
}

// FetchPage executes one page of a list call and extracts the continuation
// cursor from the response metadata. It implements pagination.PageFetcher.
func (c *Client) FetchPage(ctx context.Context, call Call, cursor Cursor) ([]json.RawMessage, Cursor, error) {
	resp, err := c.roundTrip(ctx, call, cursor)
	if err != nil {
		return nil, Cursor{}, err
	}

	var items []json.RawMessage
	if err := decodeInto(call, resp, &items); err != nil {
		return nil, Cursor{}, err
	}

	// An empty page terminates regardless of what the headers claim.
	if len(items) == 0 {
		return nil, Cursor{}, nil
	}
	return items, nextCursor(resp.header), nil
}

// nextCursor extracts the continuation signal from response headers. GitLab
// emits different forms depending on version and endpoint, so all known
// forms are checked, most explicit first: the X-Next-Page header, then an
// RFC 5988 Link header, then the X-Page/X-Total-Pages counter pair.
func nextCursor(h http.Header) Cursor {
	if next := h.Get("X-Next-Page"); next != "" {
		if page, err := strconv.Atoi(next); err == nil && page > 0 {
			return Cursor{NextPage: page}
		}
	}

	if nextURL := parseNextLink(h.Get("Link")); nextURL != "" {
		return Cursor{NextURL: nextURL}
	}

	page, errPage := strconv.Atoi(h.Get("X-Page"))
	total, errTotal := strconv.Atoi(h.Get("X-Total-Pages"))
	if errPage == nil && errTotal == nil && page < total {
		return Cursor{NextPage: page + 1}
	}

	return Cursor{}
}

// parseNextLink extracts the rel="next" URL from an RFC 5988 Link header.
// Returns "" if no next link exists.
func parseNextLink(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}

	for _, link := range strings.Split(linkHeader, ",") {
		link = strings.TrimSpace(link)
		if !strings.Contains(link, `rel="next"`) {
			continue
		}

		start := strings.Index(link, "<")
		end := strings.Index(link, ">")
		if start == -1 || end == -1 || start >= end {
			continue
		}
		return link[start+1 : end]
	}

	return ""
}
