// Package client holds the HTTP plumbing shared by the remote checkout
// collaborators.
package client

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 1 << 20

// DefaultTimeout bounds a single collaborator request.
const DefaultTimeout = 10 * time.Second

// StatusError is returned for a non-success HTTP response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// New returns an HTTP client instrumented with OpenTelemetry.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// BaseURL normalizes a collaborator base URL.
func BaseURL(raw string) string {
	return strings.TrimRight(raw, "/")
}

// ReadBody reads a bounded response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return data, nil
}

// CheckStatus returns a *StatusError unless resp has a 2xx status. The error
// message is taken from a {"message": "..."} body when present.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	statusErr := &StatusError{StatusCode: resp.StatusCode}
	if data, err := ReadBody(resp); err == nil {
		statusErr.Message = errorMessage(data)
	}
	return statusErr
}

func errorMessage(data []byte) string {
	var msg string
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return ""
	}
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		if key == "message" && d.Next() == jx.String {
			s, err := d.Str()
			msg = s
			return err
		}
		return d.Skip()
	})
	return msg
}
