// Package proxy implements the intercepting streaming proxy: a
// transparent HTTP mirror that forwards every request to a configured
// upstream, streams the response back unchanged (including SSE), and
// appends one TraceRecord per call to the capture log. There is no
// rule evaluation and no response mutation.
package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llmtap/llmtap/internal/capture"
	"github.com/llmtap/llmtap/internal/metrics"
	"github.com/llmtap/llmtap/internal/tracing"
)

// hopByHopHeaders are stripped from both the forwarded request and the
// response returned to the client.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"TE", "Trailers", "Transfer-Encoding", "Upgrade",
}

// Options configures a Proxy.
type Options struct {
	Target          string
	ConnectTimeout  time.Duration
	IdleTimeout     time.Duration
	DisconnectGrace time.Duration
}

// Proxy is an http.Handler that transparently mirrors traffic to Target
// and appends a TraceRecord per call to Log.
type Proxy struct {
	opts    Options
	target  *url.URL
	log     *capture.Log
	client  *http.Client
	metrics *metrics.Metrics
}

// New constructs a Proxy forwarding to opts.Target and recording into log.
func New(opts Options, log *capture.Log, m *metrics.Metrics) (*Proxy, error) {
	target, err := url.Parse(opts.Target)
	if err != nil {
		return nil, err
	}
	return &Proxy{
		opts:   opts,
		target: target,
		log:    log,
		client: &http.Client{
			Timeout: 0, // streaming responses may run long; idle timeout is enforced per-read.
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext,
			},
		},
		metrics: m,
	}, nil
}

// ServeHTTP implements http.Handler.
//
// The upstream call runs on a context independent of the client's
// request context: if the client disconnects, the proxy keeps reading
// upstream to completion (so the capture log still gets a full
// record) and only cancels upstream after DisconnectGrace.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := uuid.NewString()

	upstreamCtx, cancelUpstream := context.WithCancel(context.Background())
	defer cancelUpstream()
	go p.watchClientDisconnect(r.Context(), upstreamCtx, cancelUpstream)

	ctx, span := tracing.StartForward(upstreamCtx, r.Method, p.opts.Target)
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}

	upstreamReq, err := p.buildUpstreamRequest(ctx, r, body)
	if err != nil {
		http.Error(w, "building upstream request", http.StatusBadGateway)
		return
	}

	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		p.recordFailure(id, start, body, classifyError(err))
		p.metrics.RequestsTotal.WithLabelValues("upstream_error").Inc()
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "text/event-stream") {
		p.streamSSE(w, resp.Body, id, start, body, cancelUpstream)
	} else {
		p.passThrough(w, resp.Body, id, start, body, resp.StatusCode, cancelUpstream)
	}

	duration := time.Since(start)
	p.metrics.RequestsTotal.WithLabelValues("ok").Inc()
	p.metrics.UpstreamSeconds.WithLabelValues("ok").Observe(duration.Seconds())
}

// watchClientDisconnect cancels the upstream context DisconnectGrace
// after the client goes away, unless the upstream call finishes first.
func (p *Proxy) watchClientDisconnect(clientCtx, upstreamCtx context.Context, cancelUpstream context.CancelFunc) {
	select {
	case <-upstreamCtx.Done():
		return
	case <-clientCtx.Done():
	}

	grace := p.opts.DisconnectGrace
	if grace <= 0 {
		cancelUpstream()
		return
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-timer.C:
		cancelUpstream()
	case <-upstreamCtx.Done():
	}
}

func (p *Proxy) buildUpstreamRequest(ctx context.Context, r *http.Request, body []byte) (*http.Request, error) {
	u := *p.target
	u.Path = singleJoiningSlash(p.target.Path, r.URL.Path)
	u.RawQuery = r.URL.RawQuery

	upstreamReq, err := http.NewRequestWithContext(ctx, r.Method, u.String(), newReader(body))
	if err != nil {
		return nil, err
	}
	upstreamReq.Header = r.Header.Clone()
	for _, h := range hopByHopHeaders {
		upstreamReq.Header.Del(h)
	}
	upstreamReq.Header.Del("Host")
	return upstreamReq, nil
}

func copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		skip := false
		for _, h := range hopByHopHeaders {
			if strings.EqualFold(k, h) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// passThrough handles non-SSE responses: read fully, forward verbatim,
// store a parsed JSON value when parseable, else a raw-body marker.
func (p *Proxy) passThrough(w http.ResponseWriter, body io.Reader, id string, start time.Time, reqBody []byte, status int, cancelUpstream context.CancelFunc) {
	data, err := readAllWithIdleTimeout(body, p.opts.IdleTimeout, cancelUpstream)
	if err != nil {
		p.recordFailure(id, start, reqBody, "reading upstream body: "+err.Error())
		return
	}
	if _, err := w.Write(data); err != nil {
		slog.Warn("writing response to client failed", "id", id, "error", err)
	}

	var responseValue json.RawMessage
	if json.Valid(data) {
		responseValue = data
	} else {
		marker, _ := json.Marshal(capture.RawBody{ContentType: "application/octet-stream", Body: string(data)})
		responseValue = marker
	}

	p.appendRecord(id, start, reqBody, responseValue, "")
}

// streamSSE passes an SSE response through without buffering the full
// stream before returning; it splits on \n, flushes each line
// immediately, and accumulate the raw line into sse_lines. Each
// individual read is bounded by IdleTimeout; a stalled upstream is
// cancelled rather than held open indefinitely.
func (p *Proxy) streamSSE(w http.ResponseWriter, body io.Reader, id string, start time.Time, reqBody []byte, cancelUpstream context.CancelFunc) {
	flusher, _ := w.(http.Flusher)
	reader := bufio.NewReader(body)
	var lines []string
	clientGone := false

	for {
		line, err := readLineWithIdleTimeout(reader, p.opts.IdleTimeout, cancelUpstream)
		if len(line) > 0 {
			if !clientGone {
				if _, werr := io.WriteString(w, line); werr != nil {
					// Keep draining upstream so the trace record stays complete.
					slog.Warn("writing SSE line to client failed", "id", id, "error", werr)
					clientGone = true
				} else {
					if flusher != nil {
						flusher.Flush()
					}
					p.metrics.SSEChunksTotal.Inc()
				}
			}
			lines = append(lines, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if err != io.EOF {
				p.appendRecord(id, start, reqBody, sseResponseValue(lines), "reading upstream SSE stream: "+err.Error())
				return
			}
			break
		}
	}

	p.appendRecord(id, start, reqBody, sseResponseValue(lines), "")
}

func sseResponseValue(lines []string) json.RawMessage {
	data, _ := json.Marshal(capture.SSEBody{Stream: true, SSELines: lines})
	return data
}

func (p *Proxy) recordFailure(id string, start time.Time, reqBody []byte, errMsg string) {
	p.appendRecord(id, start, reqBody, nil, errMsg)
}

func (p *Proxy) appendRecord(id string, start time.Time, reqBody []byte, response json.RawMessage, errMsg string) {
	var reqValue json.RawMessage
	if json.Valid(reqBody) {
		reqValue = reqBody
	} else {
		marker, _ := json.Marshal(capture.RawBody{ContentType: "application/octet-stream", Body: string(reqBody)})
		reqValue = marker
	}

	rec := &capture.TraceRecord{
		ID:         id,
		Timestamp:  start.UTC().Format(time.RFC3339Nano),
		Request:    reqValue,
		Response:   response,
		DurationMS: time.Since(start).Milliseconds(),
		Error:      errMsg,
	}
	if err := p.log.Append(rec); err != nil {
		slog.Error("capture log write failed", "id", id, "error", err)
	}
}

func classifyError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return "timeout"
	}
	return msg
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

func newReader(body []byte) io.Reader {
	return strings.NewReader(string(body))
}

// readLineWithIdleTimeout reads one line, cancelling upstream if no
// data arrives within idle. Cancelling the upstream request context
// unblocks the underlying Read once the transport notices.
func readLineWithIdleTimeout(reader *bufio.Reader, idle time.Duration, cancelUpstream context.CancelFunc) (string, error) {
	if idle <= 0 {
		return reader.ReadString('\n')
	}
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := reader.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case res := <-ch:
		return res.line, res.err
	case <-time.After(idle):
		cancelUpstream()
		res := <-ch
		return res.line, res.err
	}
}

// readAllWithIdleTimeout reads body to completion, treating any gap
// between successive reads longer than idle as a stall.
func readAllWithIdleTimeout(body io.Reader, idle time.Duration, cancelUpstream context.CancelFunc) ([]byte, error) {
	if idle <= 0 {
		return io.ReadAll(body)
	}
	var buf []byte
	chunk := make([]byte, 32*1024)
	for {
		type result struct {
			n   int
			err error
		}
		ch := make(chan result, 1)
		go func() {
			n, err := body.Read(chunk)
			ch <- result{n, err}
		}()
		select {
		case res := <-ch:
			if res.n > 0 {
				buf = append(buf, chunk[:res.n]...)
			}
			if res.err != nil {
				if res.err == io.EOF {
					return buf, nil
				}
				return buf, res.err
			}
		case <-time.After(idle):
			cancelUpstream()
			res := <-ch
			if res.n > 0 {
				buf = append(buf, chunk[:res.n]...)
			}
			return buf, res.err
		}
	}
}
