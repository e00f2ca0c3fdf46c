// Package viewer serves the static UI shell and the derived artifact
// over HTTP, with a WebSocket live-reload channel that fires whenever
// the input capture log changes and a re-cook completes.
package viewer

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/llmtap/llmtap/internal/cook"
	"github.com/llmtap/llmtap/internal/watch"
)

// Options configures a Server.
type Options struct {
	InputPath  string
	OutputPath string
}

// Server is the viewer's HTTP handler.
type Server struct {
	opts    Options
	hub     *hub
	watcher *watch.Watcher
	mu      sync.Mutex
}

// New constructs a viewer Server and starts watching InputPath for
// changes. Call Close to stop the watcher.
func New(opts Options) (*Server, error) {
	s := &Server{opts: opts, hub: newHub()}
	go s.hub.run()

	w, err := watch.New(opts.InputPath, s.onInputChanged)
	if err != nil {
		return nil, err
	}
	s.watcher = w
	return s, nil
}

// Close stops the background file watcher.
func (s *Server) Close() error {
	return s.watcher.Close()
}

// EnsureFresh runs cook once up front if the derived artifact is older
// than (or missing relative to) the input log.
func (s *Server) EnsureFresh() error {
	inStat, err := os.Stat(s.opts.InputPath)
	if err != nil {
		return err
	}
	outStat, err := os.Stat(s.opts.OutputPath)
	if err != nil || outStat.ModTime().Before(inStat.ModTime()) {
		_, err := cook.Run(s.opts.InputPath, s.opts.OutputPath)
		return err
	}
	return nil
}

func (s *Server) onInputChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := cook.Run(s.opts.InputPath, s.opts.OutputPath); err != nil {
		slog.Error("re-cook after input change failed", "error", err)
		return
	}
	s.hub.notifyArtifactUpdated()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(indexHTML))

	case r.URL.Path == "/data.json":
		s.serveArtifact(w, s.opts.OutputPath)

	case r.URL.Path == "/_local":
		path := r.URL.Query().Get("path")
		if path == "" {
			http.Error(w, "missing path parameter", http.StatusBadRequest)
			return
		}
		s.serveArtifact(w, path)

	case r.URL.Path == "/ws":
		s.hub.handleWebSocket(w, r)

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) serveArtifact(w http.ResponseWriter, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		http.Error(w, "artifact not found", http.StatusNotFound)
		return
	}
	if !json.Valid(data) {
		http.Error(w, "artifact is not valid JSON", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
