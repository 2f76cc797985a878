package http

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Static errors for err113 compliance.
var (
	ErrMalformedBody  = errors.New("response body is not valid JSON")
	ErrUnexpectedBody = errors.New("response body does not match the expected shape")
)

// Metrics observes transport activity. Status is 0 when no response was
// received.
type Metrics interface {
	ObserveAttempt(method, endpoint string, status int, elapsed time.Duration)
	ObserveRetry(method, endpoint string)
}

type instrumentedTransport struct {
	base     http.RoundTripper
	metrics  Metrics
	basePath string
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := t.base.RoundTrip(req)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	t.metrics.ObserveAttempt(req.Method, Endpoint(t.basePath, req.URL.Path), status, time.Since(start))

	return resp, err //nolint:wrapcheck // RoundTripper must return errors unchanged
}

var endpointActions = map[string]bool{
	"query":         true,
	"relationships": true,
	"fields":        true,
}

// Endpoint reduces a request path to a low cardinality label: IDs are
// replaced with "{id}", e.g. "/v1/tables/bq1/relationships" becomes
// "tables/{id}/relationships".
func Endpoint(basePath, path string) string {
	path = strings.Trim(strings.TrimPrefix(path, basePath), "/")
	if path == "" {
		return "/"
	}

	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		if !endpointActions[segments[i]] {
			segments[i] = "{id}"
		}
	}

	return strings.Join(segments, "/")
}
