package client

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Call describes one outbound API request before it is sent. A Call is built
// fresh per request and never mutated by the client.
type Call struct {
	// Method is the HTTP method.
	Method string

	// Path is the endpoint path relative to /api/v4, starting with "/".
	// Identifier segments must be escaped with EscapePath.
	Path string

	// Query holds the query parameters.
	Query Params

	// Body is JSON-serialized when non-nil. Mutually exclusive with Upload.
	Body any

	// Upload carries a raw multipart body for file uploads.
	Upload *Multipart
}

// Multipart describes a single-file multipart request body. Filename and
// content type are taken as given; the content is never sniffed or validated.
type Multipart struct {
	Field       string
	Filename    string
	Content     []byte
	ContentType string
}

// Params maps query parameter names to values. Supported value types are
// string, bool, int, int64, float64, []string and []int.
//
// List values are comma-joined into a single parameter, uniformly for every
// parameter name. This matches GitLab's accepted form for list filters such
// as labels and milestone lists; repeated same-named keys are never emitted.
type Params map[string]any

// Encode renders the parameters as url.Values. Output is deterministic:
// url.Values.Encode sorts by key, and list joining preserves element order.
func (p Params) Encode() url.Values {
	values := url.Values{}
	for key, v := range p {
		switch val := v.(type) {
		case string:
			values.Set(key, val)
		case bool:
			values.Set(key, strconv.FormatBool(val))
		case int:
			values.Set(key, strconv.Itoa(val))
		case int64:
			values.Set(key, strconv.FormatInt(val, 10))
		case float64:
			values.Set(key, strconv.FormatFloat(val, 'f', -1, 64))
		case []string:
			values.Set(key, strings.Join(val, ","))
		case []int:
			parts := make([]string, len(val))
			for i, n := range val {
				parts[i] = strconv.Itoa(n)
			}
			values.Set(key, strings.Join(parts, ","))
		default:
			values.Set(key, fmt.Sprint(val))
		}
	}
	return values
}

// EscapePath percent-escapes a path segment. Project and group identifiers
// may contain "/" (namespace/project) and must pass through this before
// being placed into a Call path.
func EscapePath(segment string) string {
	return url.PathEscape(segment)
}

// ProjectPath builds a project-scoped endpoint path. The project identifier
// may be a numeric ID or a namespace/project path.
func ProjectPath(project string, format string, args ...any) string {
	return "/projects/" + EscapePath(project) + fmt.Sprintf(format, args...)
}
