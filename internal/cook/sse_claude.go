package cook

import (
	"encoding/json"
	"sort"
	"strings"
)

// claudeContentBlock mirrors one entry of a non-streaming Claude
// response's content array.
type claudeContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
}

type claudeResponse struct {
	ID         string               `json:"id"`
	Model      string               `json:"model"`
	Role       string               `json:"role"`
	StopReason string               `json:"stop_reason,omitempty"`
	Content    []claudeContentBlock `json:"content"`
}

// claudeEvent is the envelope shared by every Claude SSE event type; the
// fields actually populated depend on Type.
type claudeEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	Message struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Role  string `json:"role"`
	} `json:"message"`

	ContentBlock struct {
		Type string          `json:"type"`
		ID   string          `json:"id"`
		Name string          `json:"name"`
		Text string          `json:"text"`
		Input json.RawMessage `json:"input"`
	} `json:"content_block"`

	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		Signature   string `json:"signature"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
}

// reassembleClaude runs a state machine keyed by content_block_start's
// index. content_block_delta appends to text/thinking/partial_json by
// delta subtype; partial_json is accumulated as a string and parsed into
// Input only once the block stops, rather than silently dropped.
func reassembleClaude(lines []string) (*claudeResponse, error) {
	var (
		id, model, role string
		stopReason      string
		blocks          = map[int]*claudeContentBlock{}
		partialJSON     = map[int]*strings.Builder{}
	)

	for _, line := range lines {
		payload := sseDataPayload(line)
		if payload == "" {
			continue
		}
		var ev claudeEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "message_start":
			if ev.Message.ID != "" {
				id = ev.Message.ID
			}
			if ev.Message.Model != "" {
				model = ev.Message.Model
			}
			if ev.Message.Role != "" {
				role = ev.Message.Role
			}

		case "content_block_start":
			block := &claudeContentBlock{Type: ev.ContentBlock.Type}
			switch ev.ContentBlock.Type {
			case "tool_use":
				block.ID = ev.ContentBlock.ID
				block.Name = ev.ContentBlock.Name
				partialJSON[ev.Index] = &strings.Builder{}
			case "text":
				block.Text = ev.ContentBlock.Text
			}
			blocks[ev.Index] = block

		case "content_block_delta":
			block := blocks[ev.Index]
			if block == nil {
				block = &claudeContentBlock{}
				blocks[ev.Index] = block
			}
			switch ev.Delta.Type {
			case "text_delta":
				block.Type = "text"
				block.Text += ev.Delta.Text
			case "thinking_delta":
				block.Type = "thinking"
				block.Thinking += ev.Delta.Thinking
			case "signature_delta":
				block.Signature += ev.Delta.Signature
			case "input_json_delta":
				sb, ok := partialJSON[ev.Index]
				if !ok {
					sb = &strings.Builder{}
					partialJSON[ev.Index] = sb
				}
				sb.WriteString(ev.Delta.PartialJSON)
			}

		case "content_block_stop":
			if sb, ok := partialJSON[ev.Index]; ok && sb.Len() > 0 {
				block := blocks[ev.Index]
				if block != nil {
					raw := sb.String()
					if json.Valid([]byte(raw)) {
						block.Input = json.RawMessage(raw)
					} else {
						block.Input = json.RawMessage("{}")
					}
				}
			}

		case "message_delta":
			if ev.Delta.StopReason != "" {
				stopReason = ev.Delta.StopReason
			}
		}
	}

	indices := make([]int, 0, len(blocks))
	for idx := range blocks {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	resp := &claudeResponse{ID: id, Model: model, Role: role, StopReason: stopReason}
	for _, idx := range indices {
		resp.Content = append(resp.Content, *blocks[idx])
	}
	return resp, nil
}
