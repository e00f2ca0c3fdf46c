package capture

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Log is the append-only capture log: one TraceRecord per line, UTF-8
// JSON, each line terminated by \n. A single exclusive writer lock
// serialises appends; records are marshalled before it is taken, and it
// is held only across writing and fsyncing the finished line.
type Log struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open opens (creating if necessary) the capture log at path for
// appending.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening capture log %s: %w", path, err)
	}
	return &Log{file: f, path: path}, nil
}

// Append serialises rec and writes it as one line, under the writer
// lock, then fsyncs so the record survives a crash immediately after
// the call returns.
func (l *Log) Append(rec *TraceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling trace record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("appending to capture log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing capture log: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// ReadAll scans path top to bottom and returns every record that parsed.
// A line that fails to parse is skipped with a logged diagnostic —
// single-record corruption must not abort the whole read.
func ReadAll(path string) ([]*TraceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture log %s: %w", path, err)
	}
	defer f.Close()

	var records []*TraceRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec TraceRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Warn("skipping corrupt capture log line", "path", path, "line", lineNo, "error", err)
			continue
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning capture log %s: %w", path, err)
	}
	return records, nil
}
