package proxy

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/llmtap/llmtap/internal/capture"
	"github.com/llmtap/llmtap/internal/metrics"
)

func newTestProxy(t *testing.T, target string) (*Proxy, string) {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "capture.jsonl")
	l, err := capture.Open(logPath)
	if err != nil {
		t.Fatalf("capture.Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	m, _ := metrics.New()
	p, err := New(Options{Target: target, ConnectTimeout: time.Second}, l, m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, logPath
}

// TestProxy_Transparency checks the proxy forwards request and response
// bytes unchanged.
func TestProxy_Transparency(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"hello":"world"}`))
	}))
	defer upstream.Close()

	p, logPath := newTestProxy(t, upstream.URL)

	front := httptest.NewServer(p)
	defer front.Close()

	resp, err := http.Post(front.URL+"/v1/chat/completions", "application/json", strings.NewReader(`{"model":"gpt-4"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Upstream") != "yes" {
		t.Error("expected upstream header to pass through")
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != `{"hello":"world"}` {
		t.Errorf("expected byte-identical body, got %q", data)
	}

	records, err := capture.ReadAll(logPath)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 trace record, got %d", len(records))
	}
	if records[0].Error != "" {
		t.Errorf("expected no error, got %q", records[0].Error)
	}
}

// TestProxy_SSEInterleaving checks SSE lines are relayed to the client
// immediately, in arrival order, without being buffered to completion first.
func TestProxy_SSEInterleaving(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "data: {\"chunk\":%d}\n", i)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n")
		flusher.Flush()
	}))
	defer upstream.Close()

	p, logPath := newTestProxy(t, upstream.URL)
	front := httptest.NewServer(p)
	defer front.Close()

	resp, err := http.Get(front.URL + "/v1/stream")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	want := []string{`data: {"chunk":0}`, `data: {"chunk":1}`, `data: {"chunk":2}`, `data: [DONE]`}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	records, err := capture.ReadAll(logPath)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 trace record, got %d", len(records))
	}
}

// TestProxy_E7_UnreachableUpstream checks an unreachable upstream still
// produces a capture record and a 502 to the client.
func TestProxy_E7_UnreachableUpstream(t *testing.T) {
	p, logPath := newTestProxy(t, "http://127.0.0.1:1")

	front := httptest.NewServer(p)
	defer front.Close()

	resp, err := http.Post(front.URL+"/v1/chat", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}

	records, err := capture.ReadAll(logPath)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 trace record, got %d", len(records))
	}
	if records[0].Error == "" {
		t.Error("expected error to be populated")
	}
}

// TestProxy_CaptureCompleteness checks every successful call produces
// exactly one capture record.
func TestProxy_CaptureCompleteness(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	p, logPath := newTestProxy(t, upstream.URL)
	front := httptest.NewServer(p)
	defer front.Close()

	for i := 0; i < 3; i++ {
		resp, err := http.Post(front.URL+"/v1/x", "application/json", strings.NewReader(`{}`))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}

	records, err := capture.ReadAll(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 trace records for 3 successful calls, got %d", len(records))
	}
}
