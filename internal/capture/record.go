// Package capture implements the append-only JSON-Lines trace log: the
// proxy's side channel and the normaliser's input.
package capture

import "encoding/json"

// TraceRecord is one captured upstream call. The proxy builds one fully
// in memory, then appends it in a single serialise-and-write step — it
// is never partially flushed.
type TraceRecord struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`

	// Request is the request body forwarded upstream: decoded JSON when
	// the body parsed as JSON, otherwise a RawBody marker.
	Request json.RawMessage `json:"request"`

	// Response is either a decoded upstream response body, or
	// {"stream":true,"sse_lines":[...]} when the upstream replied with
	// SSE. Nil when the call errored before any response was available.
	Response json.RawMessage `json:"response"`

	DurationMS int64 `json:"duration_ms"`

	// Error is empty on success; otherwise a short diagnostic string.
	Error string `json:"error,omitempty"`
}

// RawBody wraps a non-JSON request/response body, the fallback shape used
// when a body can't be parsed as JSON. The proxy always sets ContentType
// to application/octet-stream; the body's Content-Type header is not
// recorded.
type RawBody struct {
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// SSEBody is the structured form stored for a streamed (SSE) response:
// the raw lines as they were received, without trailing newlines.
type SSEBody struct {
	Stream   bool     `json:"stream"`
	SSELines []string `json:"sse_lines"`
}
