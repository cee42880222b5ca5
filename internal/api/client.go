// Package api implements the authenticated client for the DevOps platform
// API. Every call goes through a normalized success/failure envelope; the
// client never lets a transport fault escape as a panic or unhandled error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// DefaultTimeout bounds a request when the caller does not override it.
const DefaultTimeout = 120 * time.Second

// Request describes one API call. Path is matched against the client's
// route table; recognized prefixes are rewritten to absolute base URLs and
// anything else passes through unchanged.
type Request struct {
	Path    string
	Method  string
	Body    any
	Query   url.Values
	Timeout time.Duration
}

// Result is the normalized outcome of an API call. Success is true only for
// HTTP 200 responses. On failure Code and Message carry whatever structured
// error the server included, so callers can inspect them (the pipeline start
// path does this for conflicts) without ever seeing a raw transport error.
type Result struct {
	Success bool
	Data    json.RawMessage
	Message string
	Code    string
	Err     error

	// retryable marks transient transport failures (network errors, 5xx)
	// that are safe to replay for idempotent requests.
	retryable bool
}

// Client issues requests against the platform API.
type Client interface {
	Do(ctx context.Context, req Request) Result
}

// envelope is the raw response body shape: {data, message, code}.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    flexString      `json:"code"`
}

// flexString decodes a JSON string or number into a string. Some endpoints
// report code as "409", others as 409.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}
