package cook

import (
	"encoding/json"

	"github.com/llmtap/llmtap/internal/artifact"
)

// rawMessage is a canonical message before id assignment/deduplication.
type rawMessage struct {
	Role      artifact.Role
	Content   string
	ToolCalls []artifact.ToolCall
	ToolUseID string
	IsError   *bool
}

// rawTool is a canonical tool definition before id assignment.
type rawTool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

func boolPtr(b bool) *bool { return &b }

// --- OpenAI request/response shapes -----------------------------------

type openAIRequestMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls"`
	ToolCallID string          `json:"tool_call_id"`
}

type openAIRequest struct {
	Model    string                  `json:"model"`
	Messages []openAIRequestMessage  `json:"messages"`
	Tools    []openAIRequestToolSpec `json:"tools"`
}

type openAIRequestToolSpec struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters"`
	} `json:"function"`
}

type openAIContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL interface{} `json:"image_url"`
}

// messageContentText resolves an OpenAI message's content field, which
// may be a plain string or a multimodal list of parts, into a single
// string: text parts are concatenated, images are replaced by a literal
// placeholder.
func messageContentText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var parts []openAIContentPart
	if err := json.Unmarshal(content, &parts); err != nil {
		return ""
	}
	var out string
	for _, p := range parts {
		switch p.Type {
		case "image_url", "image":
			out += "[image]"
		default:
			out += p.Text
		}
	}
	return out
}

func translateOpenAITools(spec []openAIRequestToolSpec) []rawTool {
	tools := make([]rawTool, 0, len(spec))
	for _, t := range spec {
		tools = append(tools, rawTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return tools
}

func translateOpenAIToolCalls(calls []openAIToolCall) []artifact.ToolCall {
	out := make([]artifact.ToolCall, 0, len(calls))
	for _, c := range calls {
		var args map[string]interface{}
		_ = json.Unmarshal([]byte(c.Function.Arguments), &args)
		out = append(out, artifact.ToolCall{Name: c.Function.Name, Arguments: args, ID: c.ID})
	}
	return out
}

// translateOpenAIRequestMessages translates OpenAI request-side messages
// into the canonical row shape.
func translateOpenAIRequestMessages(req openAIRequest) []rawMessage {
	var out []rawMessage
	for _, m := range req.Messages {
		switch m.Role {
		case "system", "user":
			out = append(out, rawMessage{Role: artifact.Role(m.Role), Content: messageContentText(m.Content)})
		case "assistant":
			if len(m.ToolCalls) > 0 {
				out = append(out, rawMessage{
					Role:      artifact.RoleToolUse,
					Content:   messageContentText(m.Content),
					ToolCalls: translateOpenAIToolCalls(m.ToolCalls),
				})
			} else {
				out = append(out, rawMessage{Role: artifact.RoleAssistant, Content: messageContentText(m.Content)})
			}
		case "tool":
			out = append(out, rawMessage{
				Role:      artifact.RoleToolResult,
				Content:   messageContentText(m.Content),
				ToolUseID: m.ToolCallID,
				IsError:   boolPtr(false),
			})
		}
	}
	return out
}

// translateOpenAIResponse converts a (possibly reassembled) non-streaming
// OpenAI response into response-side canonical messages.
func translateOpenAIResponse(resp *openAIResponse) []rawMessage {
	if resp == nil || len(resp.Choices) == 0 {
		return nil
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		calls := make([]artifact.ToolCall, 0, len(msg.ToolCalls))
		for _, c := range msg.ToolCalls {
			var args map[string]interface{}
			_ = json.Unmarshal([]byte(c.Function.Arguments), &args)
			calls = append(calls, artifact.ToolCall{Name: c.Function.Name, Arguments: args, ID: c.ID})
		}
		return []rawMessage{{Role: artifact.RoleToolUse, Content: msg.Content, ToolCalls: calls}}
	}
	return []rawMessage{{Role: artifact.RoleAssistant, Content: msg.Content}}
}

// --- Claude request/response shapes ------------------------------------

type claudeSystemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeRequestContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ToolUseID string          `json:"tool_use_id"`
	IsError   bool            `json:"is_error"`
	Content   json.RawMessage `json:"content"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	Thinking  string          `json:"thinking"`
}

type claudeRequestMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type claudeRequestToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type claudeRequest struct {
	Model    string                  `json:"model"`
	System   json.RawMessage         `json:"system"`
	Messages []claudeRequestMessage  `json:"messages"`
	Tools    []claudeRequestToolSpec `json:"tools"`
}

func translateClaudeTools(spec []claudeRequestToolSpec) []rawTool {
	tools := make([]rawTool, 0, len(spec))
	for _, t := range spec {
		tools = append(tools, rawTool{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}
	return tools
}

// translateClaudeSystem implements "Claude system array (request-level)
// → one system message per text block, in order, prepended".
func translateClaudeSystem(system json.RawMessage) []rawMessage {
	if len(system) == 0 {
		return nil
	}
	var blocks []claudeSystemBlock
	if err := json.Unmarshal(system, &blocks); err != nil {
		var s string
		if err := json.Unmarshal(system, &s); err == nil && s != "" {
			return []rawMessage{{Role: artifact.RoleSystem, Content: s}}
		}
		return nil
	}
	out := make([]rawMessage, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, rawMessage{Role: artifact.RoleSystem, Content: b.Text})
	}
	return out
}

// translateClaudeUserMessage handles both documented user shapes: plain
// text content, and content arrays containing tool_result blocks (one
// canonical message emitted per block, order preserved); each run of
// other blocks (text/image) between tool_result blocks is concatenated
// into one user message, emitted at that run's position.
func translateClaudeUserMessage(content json.RawMessage) []rawMessage {
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return []rawMessage{{Role: artifact.RoleUser, Content: s}}
	}

	var blocks []claudeRequestContentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return nil
	}

	var out []rawMessage
	var textBuf string
	flushText := func() {
		if textBuf != "" {
			out = append(out, rawMessage{Role: artifact.RoleUser, Content: textBuf})
			textBuf = ""
		}
	}
	for _, b := range blocks {
		switch b.Type {
		case "tool_result":
			flushText()
			isErr := b.IsError
			out = append(out, rawMessage{
				Role:      artifact.RoleToolResult,
				Content:   toolResultText(b.Content),
				ToolUseID: b.ToolUseID,
				IsError:   boolPtr(isErr),
			})
		case "image":
			textBuf += "[image]"
		default:
			textBuf += b.Text
		}
	}
	flushText()
	return out
}

// toolResultText resolves a Claude tool_result block's content, which
// may be a plain string or a list of content blocks.
func toolResultText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var blocks []claudeRequestContentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return ""
	}
	var out string
	for _, b := range blocks {
		if b.Type == "image" {
			out += "[image]"
		} else {
			out += b.Text
		}
	}
	return out
}

// translateClaudeAssistantMessage translates a Claude assistant turn,
// preserving content-block order and aggregating all tool_use blocks
// of the turn into a single tool_use message.
func translateClaudeAssistantMessage(content json.RawMessage) []rawMessage {
	var blocks []claudeRequestContentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		var s string
		if err := json.Unmarshal(content, &s); err == nil && s != "" {
			return []rawMessage{{Role: artifact.RoleAssistant, Content: s}}
		}
		return nil
	}

	var out []rawMessage
	toolUseIdx := -1
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, rawMessage{Role: artifact.RoleAssistant, Content: b.Text})
		case "thinking":
			out = append(out, rawMessage{Role: artifact.RoleThinking, Content: b.Thinking})
		case "tool_use":
			var args map[string]interface{}
			_ = json.Unmarshal(b.Input, &args)
			call := artifact.ToolCall{Name: b.Name, Arguments: args, ID: b.ID}
			if toolUseIdx == -1 {
				out = append(out, rawMessage{Role: artifact.RoleToolUse, ToolCalls: []artifact.ToolCall{call}})
				toolUseIdx = len(out) - 1
			} else {
				out[toolUseIdx].ToolCalls = append(out[toolUseIdx].ToolCalls, call)
			}
		}
	}
	return out
}

func translateClaudeRequestMessages(req claudeRequest) []rawMessage {
	out := translateClaudeSystem(req.System)
	for _, m := range req.Messages {
		switch m.Role {
		case "user":
			out = append(out, translateClaudeUserMessage(m.Content)...)
		case "assistant":
			out = append(out, translateClaudeAssistantMessage(m.Content)...)
		}
	}
	return out
}

// translateClaudeResponse converts a (possibly reassembled) non-streaming
// Claude response into response-side canonical messages, aggregating
// content blocks the same way an assistant request message would.
func translateClaudeResponse(resp *claudeResponse) []rawMessage {
	if resp == nil {
		return nil
	}
	data, err := json.Marshal(resp.Content)
	if err != nil {
		return nil
	}
	return translateClaudeAssistantMessage(json.RawMessage(data))
}
