package cook

import (
	"encoding/json"
	"testing"

	"github.com/llmtap/llmtap/internal/artifact"
)

// TestTranslate_E1_OpenAIToolRoundTrip covers a full OpenAI request/response
// pair carrying a tool call and its result.
func TestTranslate_E1_OpenAIToolRoundTrip(t *testing.T) {
	reqJSON := `{
		"model": "gpt-4",
		"messages": [
			{"role": "system", "content": "Be helpful"},
			{"role": "user", "content": "What's 2+2?"},
			{"role": "assistant", "content": null, "tool_calls": [
				{"id": "call_abc", "type": "function", "function": {"name": "calc", "arguments": "{\"expr\":\"2+2\"}"}}
			]},
			{"role": "tool", "tool_call_id": "call_abc", "content": "4"}
		]
	}`
	var req openAIRequest
	if err := json.Unmarshal([]byte(reqJSON), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	msgDedup := newDedup("m")
	var cooked []artifact.CookedMessage
	raws := translateOpenAIRequestMessages(req)
	ids := assignMessages(raws, msgDedup, &cooked)

	wantIDs := []string{"m0", "m1", "m2", "m3"}
	if len(ids) != len(wantIDs) {
		t.Fatalf("expected %d ids, got %d: %v", len(wantIDs), len(ids), ids)
	}
	for i, want := range wantIDs {
		if ids[i] != want {
			t.Errorf("id[%d]: expected %s, got %s", i, want, ids[i])
		}
	}

	if cooked[0].Role != artifact.RoleSystem || cooked[0].Content != "Be helpful" {
		t.Errorf("m0: expected system/Be helpful, got %+v", cooked[0])
	}
	if cooked[1].Role != artifact.RoleUser || cooked[1].Content != "What's 2+2?" {
		t.Errorf("m1: expected user/What's 2+2?, got %+v", cooked[1])
	}
	if cooked[2].Role != artifact.RoleToolUse || cooked[2].Content != "" {
		t.Errorf("m2: expected tool_use with empty content, got %+v", cooked[2])
	}
	if len(cooked[2].ToolCalls) != 1 || cooked[2].ToolCalls[0].Name != "calc" || cooked[2].ToolCalls[0].ID != "call_abc" {
		t.Errorf("m2: unexpected tool calls: %+v", cooked[2].ToolCalls)
	}
	if expr, _ := cooked[2].ToolCalls[0].Arguments["expr"].(string); expr != "2+2" {
		t.Errorf("m2: expected arguments.expr=2+2, got %+v", cooked[2].ToolCalls[0].Arguments)
	}
	if cooked[3].Role != artifact.RoleToolResult || cooked[3].Content != "4" || cooked[3].ToolUseID != "call_abc" {
		t.Errorf("m3: unexpected tool_result: %+v", cooked[3])
	}
	if cooked[3].IsError == nil || *cooked[3].IsError != false {
		t.Errorf("m3: expected is_error=false, got %+v", cooked[3].IsError)
	}
}

// TestTranslate_E2_ClaudeThinkingAndToolUse covers a Claude turn where
// thinking is emitted as its own message, not merged into the tool_use
// content.
func TestTranslate_E2_ClaudeThinkingAndToolUse(t *testing.T) {
	reqJSON := `{
		"model": "claude-3-opus",
		"system": [{"type": "text", "text": "Be helpful"}],
		"messages": [
			{"role": "user", "content": "What's 2+2?"},
			{"role": "assistant", "content": [
				{"type": "thinking", "thinking": "Simple math question"},
				{"type": "tool_use", "id": "call_1", "name": "calc", "input": {"expr": "2+2"}}
			]},
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "call_1", "content": "4", "is_error": false}
			]}
		]
	}`
	var req claudeRequest
	if err := json.Unmarshal([]byte(reqJSON), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	msgDedup := newDedup("m")
	var cooked []artifact.CookedMessage
	raws := translateClaudeRequestMessages(req)
	ids := assignMessages(raws, msgDedup, &cooked)

	wantIDs := []string{"m0", "m1", "m2", "m3", "m4"}
	if len(ids) != len(wantIDs) {
		t.Fatalf("expected %d ids, got %d: %v", len(wantIDs), len(ids), ids)
	}

	if cooked[0].Role != artifact.RoleSystem || cooked[0].Content != "Be helpful" {
		t.Errorf("m0: %+v", cooked[0])
	}
	if cooked[1].Role != artifact.RoleUser || cooked[1].Content != "What's 2+2?" {
		t.Errorf("m1: %+v", cooked[1])
	}
	if cooked[2].Role != artifact.RoleThinking || cooked[2].Content != "Simple math question" {
		t.Errorf("m2: expected thinking message, got %+v", cooked[2])
	}
	if cooked[3].Role != artifact.RoleToolUse || cooked[3].Content != "" {
		t.Errorf("m3: expected tool_use with empty content, got %+v", cooked[3])
	}
	if len(cooked[3].ToolCalls) != 1 || cooked[3].ToolCalls[0].Name != "calc" || cooked[3].ToolCalls[0].ID != "call_1" {
		t.Errorf("m3: unexpected tool calls: %+v", cooked[3].ToolCalls)
	}
	if cooked[4].Role != artifact.RoleToolResult || cooked[4].Content != "4" || cooked[4].ToolUseID != "call_1" {
		t.Errorf("m4: %+v", cooked[4])
	}
}

// TestReassembleOpenAI_E3 covers an OpenAI SSE stream whose content
// deltas arrive in several small chunks.
func TestReassembleOpenAI_E3(t *testing.T) {
	lines := []string{
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo!"}}]}`,
		`data: [DONE]`,
	}
	resp, err := reassembleOpenAI(lines)
	if err != nil {
		t.Fatalf("reassembleOpenAI: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("expected 1 choice, got %d", len(resp.Choices))
	}
	msg := resp.Choices[0].Message
	if msg.Role != "assistant" || msg.Content != "Hello!" {
		t.Errorf("expected assistant/Hello!, got %+v", msg)
	}
	if msg.ToolCalls != nil {
		t.Errorf("expected no tool calls, got %+v", msg.ToolCalls)
	}
}

func TestReassembleOpenAI_ToolCallDeltas(t *testing.T) {
	lines := []string{
		`data: {"id":"chatcmpl-1","model":"gpt-4","choices":[{"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"calc","arguments":""}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"expr\":"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"2+2\"}"}}]}}]}`,
		`data: [DONE]`,
	}
	resp, err := reassembleOpenAI(lines)
	if err != nil {
		t.Fatalf("reassembleOpenAI: %v", err)
	}
	if resp.ID != "chatcmpl-1" || resp.Model != "gpt-4" {
		t.Errorf("expected id/model from first chunk, got %+v", resp)
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("expected 1 accumulated tool call, got %d", len(msg.ToolCalls))
	}
	if msg.ToolCalls[0].Function.Arguments != `{"expr":"2+2"}` {
		t.Errorf("expected concatenated arguments, got %q", msg.ToolCalls[0].Function.Arguments)
	}
}

func TestReassembleClaude_PartialJSONAccumulation(t *testing.T) {
	lines := []string{
		`data: {"type":"message_start","message":{"id":"msg_1","model":"claude-3-opus","role":"assistant"}}`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"call_1","name":"calc"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"expr\":"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"2+2\"}"}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"}}`,
		`data: {"type":"message_stop"}`,
	}
	resp, err := reassembleClaude(lines)
	if err != nil {
		t.Fatalf("reassembleClaude: %v", err)
	}
	if resp.ID != "msg_1" || resp.Model != "claude-3-opus" {
		t.Errorf("expected id/model from message_start, got %+v", resp)
	}
	if resp.StopReason != "tool_use" {
		t.Errorf("expected stop_reason=tool_use, got %q", resp.StopReason)
	}
	if len(resp.Content) != 1 || resp.Content[0].Type != "tool_use" {
		t.Fatalf("expected 1 tool_use block, got %+v", resp.Content)
	}
	var input map[string]interface{}
	if err := json.Unmarshal(resp.Content[0].Input, &input); err != nil {
		t.Fatalf("expected valid accumulated partial_json, got error: %v, raw=%s", err, resp.Content[0].Input)
	}
	if input["expr"] != "2+2" {
		t.Errorf("expected expr=2+2, got %+v", input)
	}
}

func TestReassembleClaude_InterleavedTextAndThinking(t *testing.T) {
	lines := []string{
		`data: {"type":"message_start","message":{"id":"msg_1","model":"claude-3-opus","role":"assistant"}}`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"thinking"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"pondering"}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"content_block_start","index":1,"content_block":{"type":"text"}}`,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"answer"}}`,
		`data: {"type":"content_block_stop","index":1}`,
	}
	resp, err := reassembleClaude(lines)
	if err != nil {
		t.Fatalf("reassembleClaude: %v", err)
	}
	if len(resp.Content) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(resp.Content))
	}
	if resp.Content[0].Type != "thinking" || resp.Content[0].Thinking != "pondering" {
		t.Errorf("block 0: %+v", resp.Content[0])
	}
	if resp.Content[1].Type != "text" || resp.Content[1].Text != "answer" {
		t.Errorf("block 1: %+v", resp.Content[1])
	}
}
