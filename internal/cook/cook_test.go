package cook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/llmtap/llmtap/internal/artifact"
	"github.com/llmtap/llmtap/internal/capture"
)

func writeCaptureLog(t *testing.T, path string, records []*capture.TraceRecord) {
	t.Helper()
	l, err := capture.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()
	for _, r := range records {
		if err := l.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func openAICall(id, ts string, durationMS int64) *capture.TraceRecord {
	return &capture.TraceRecord{
		ID:        id,
		Timestamp: ts,
		Request:   []byte(`{"model":"gpt-4","messages":[{"role":"system","content":"Be helpful"},{"role":"user","content":"What's 2+2?"}]}`),
		Response:  []byte(`{"id":"chatcmpl-1","model":"gpt-4","choices":[{"message":{"role":"assistant","content":"4"}}]}`),
		DurationMS: durationMS,
	}
}

func TestRun_DedupAcrossRecords(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "capture.jsonl")
	outPath := filepath.Join(dir, "data.json")

	writeCaptureLog(t, inPath, []*capture.TraceRecord{
		openAICall("r1", "2024-01-01T00:00:00Z", 10),
		openAICall("r2", "2024-01-01T00:00:01Z", 10),
	})

	summary, err := Run(inPath, outPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.RecordsSkipped != 0 {
		t.Errorf("expected no skipped records, got %d", summary.RecordsSkipped)
	}

	art, err := artifact.Load(outPath)
	if err != nil {
		t.Fatalf("Load artifact: %v", err)
	}

	// Both calls share identical system/user/assistant content, so they
	// must dedupe to the same 3 messages despite being 2 requests.
	if len(art.Messages) != 3 {
		t.Errorf("expected 3 deduplicated messages, got %d: %+v", len(art.Messages), art.Messages)
	}
	if len(art.Requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(art.Requests))
	}
	if art.Requests[0].RequestMessages[0] != art.Requests[1].RequestMessages[0] {
		t.Error("identical system messages across records should share an id")
	}
}

func TestRun_Idempotent(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "capture.jsonl")
	out1 := filepath.Join(dir, "data1.json")
	out2 := filepath.Join(dir, "data2.json")

	writeCaptureLog(t, inPath, []*capture.TraceRecord{
		openAICall("r1", "2024-01-01T00:00:00Z", 10),
		openAICall("r2", "2024-01-01T00:00:01Z", 15),
	})

	if _, err := Run(inPath, out1); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := Run(inPath, out2); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	data1, err := os.ReadFile(out1)
	if err != nil {
		t.Fatal(err)
	}
	data2, err := os.ReadFile(out2)
	if err != nil {
		t.Fatal(err)
	}
	if string(data1) != string(data2) {
		t.Error("running cook twice on the same input should be byte-identical")
	}
}

// TestRun_E7_UnreachableUpstream covers a capture record whose upstream
// call failed outright: no response body, only an error string.
func TestRun_E7_UnreachableUpstream(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "capture.jsonl")
	outPath := filepath.Join(dir, "data.json")

	writeCaptureLog(t, inPath, []*capture.TraceRecord{
		{ID: "r1", Timestamp: "2024-01-01T00:00:00Z", DurationMS: 30000, Error: "upstream connect failed"},
	})

	summary, err := Run(inPath, outPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Requests != 1 {
		t.Fatalf("expected exactly 1 request slot, got %d", summary.Requests)
	}

	art, err := artifact.Load(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if art.Requests[0].Error == "" {
		t.Error("expected error to be populated for the failed call")
	}
	if art.Requests[0].DurationMS != 30000 {
		t.Errorf("expected duration_ms present, got %d", art.Requests[0].DurationMS)
	}
}

func TestMessageHash_DedupCorrectness(t *testing.T) {
	isErr := false
	a := artifact.CookedMessage{Role: artifact.RoleToolResult, Content: "4", ToolUseID: "call_1", IsError: &isErr}
	b := artifact.CookedMessage{Role: artifact.RoleToolResult, Content: "4", ToolUseID: "call_1", IsError: &isErr}
	c := artifact.CookedMessage{Role: artifact.RoleToolResult, Content: "5", ToolUseID: "call_1", IsError: &isErr}

	if messageHash(a) != messageHash(b) {
		t.Error("identical messages should hash the same")
	}
	if messageHash(a) == messageHash(c) {
		t.Error("messages differing in content should hash differently")
	}
}
