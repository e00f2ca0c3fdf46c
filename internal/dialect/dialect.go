// Package dialect detects which LLM API wire convention (OpenAI or
// Claude) a captured trace record conforms to, from payload shape alone
// — never from URL path or other transport metadata.
package dialect

import (
	"encoding/json"

	"github.com/llmtap/llmtap/internal/capture"
)

// Dialect is the wire-format convention a trace record conforms to.
type Dialect string

const (
	OpenAI Dialect = "openai"
	Claude Dialect = "claude"
)

// claudeSSEEventTypes are the SSE event `type` values unique to the
// Claude streaming envelope.
var claudeSSEEventTypes = map[string]bool{
	"message_start":       true,
	"content_block_start": true,
	"content_block_delta": true,
	"message_delta":       true,
	"message_stop":        true,
}

// claudeContentBlockTypes are content-block `type` values that only
// appear in Claude requests.
var claudeContentBlockTypes = map[string]bool{
	"tool_use":    true,
	"tool_result": true,
	"thinking":    true,
}

// Detect classifies a record as Claude if any of four shape-based
// conditions hold, otherwise OpenAI.
func Detect(rec *capture.TraceRecord) Dialect {
	if isClaudeStream(rec.Response) {
		return Claude
	}

	var req map[string]json.RawMessage
	if err := json.Unmarshal(rec.Request, &req); err != nil {
		return OpenAI
	}

	if isSystemList(req["system"]) {
		return Claude
	}
	if firstToolHasInputSchema(req["tools"]) {
		return Claude
	}
	if anyMessageHasClaudeBlock(req["messages"]) {
		return Claude
	}

	return OpenAI
}

func isClaudeStream(response json.RawMessage) bool {
	if len(response) == 0 {
		return false
	}
	var body capture.SSEBody
	if err := json.Unmarshal(response, &body); err != nil || !body.Stream {
		return false
	}
	for _, line := range body.SSELines {
		payload := sseDataPayload(line)
		if payload == "" {
			continue
		}
		var event struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		if claudeSSEEventTypes[event.Type] {
			return true
		}
	}
	return false
}

// sseDataPayload extracts the JSON payload from a raw SSE line of the
// form "data: {...}", or "" if the line isn't a data line.
func sseDataPayload(line string) string {
	const prefix = "data:"
	if len(line) < len(prefix) || line[:len(prefix)] != prefix {
		return ""
	}
	payload := line[len(prefix):]
	for len(payload) > 0 && payload[0] == ' ' {
		payload = payload[1:]
	}
	if payload == "[DONE]" {
		return ""
	}
	return payload
}

func isSystemList(system json.RawMessage) bool {
	if len(system) == 0 {
		return false
	}
	var list []json.RawMessage
	return json.Unmarshal(system, &list) == nil
}

func firstToolHasInputSchema(tools json.RawMessage) bool {
	if len(tools) == 0 {
		return false
	}
	var list []map[string]json.RawMessage
	if err := json.Unmarshal(tools, &list); err != nil || len(list) == 0 {
		return false
	}
	_, ok := list[0]["input_schema"]
	return ok
}

func anyMessageHasClaudeBlock(messages json.RawMessage) bool {
	if len(messages) == 0 {
		return false
	}
	var list []struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(messages, &list); err != nil {
		return false
	}
	for _, msg := range list {
		var blocks []struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg.Content, &blocks); err != nil {
			continue
		}
		for _, b := range blocks {
			if claudeContentBlockTypes[b.Type] {
				return true
			}
		}
	}
	return false
}
