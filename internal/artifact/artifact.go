// Package artifact defines the canonical, post-normalisation data model
// produced by cook and consumed by the lineage reconstructor and the
// viewer: messages, tools, and requests, deduplicated and cross-
// referenced by short deterministic ids.
package artifact

// Role is the discriminator for a CookedMessage's variant.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolUse    Role = "tool_use"
	RoleToolResult Role = "tool_result"
	RoleThinking   Role = "thinking"
)

// ToolCall is one invocation named inside a tool_use message.
type ToolCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	ID        string                 `json:"id"`
}

// CookedMessage is a normalised, deduplicated message. One struct carries
// the fields of every role; role-specific fields (ToolCalls, ToolUseID,
// IsError) are nil/zero for roles that don't use them. There is no
// per-role variant type: Role is the only discriminator.
type CookedMessage struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`

	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	IsError   *bool  `json:"is_error,omitempty"`

	// ApproxTokens is a supplemental, best-effort token count over
	// Content. Zero when estimation failed or wasn't attempted.
	ApproxTokens int `json:"approx_tokens"`
}

// CookedTool is a normalised, deduplicated tool definition.
type CookedTool struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`

	// SchemaError is a non-fatal diagnostic set when Parameters failed
	// JSON Schema self-validation (i.e. isn't a well-formed schema).
	// Empty when validation passed or wasn't attempted.
	SchemaError string `json:"schema_error,omitempty"`
}

// CookedRequest is one per TraceRecord that produced an LLM call.
type CookedRequest struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id"`

	// TimestampMS is the request arrival time in epoch milliseconds.
	TimestampMS int64 `json:"timestamp"`

	RequestMessages  []string `json:"request_messages"`
	ResponseMessages []string `json:"response_messages"`

	Model string   `json:"model"`
	Tools []string `json:"tools"`

	DurationMS int64 `json:"duration_ms"`

	// Error carries a per-record diagnostic when this request's trace
	// record could not be fully normalised; RequestMessages/
	// ResponseMessages may be partial or empty in that case.
	Error string `json:"error,omitempty"`
}

// Artifact is the single derived JSON document cook produces and the
// viewer serves: {messages, tools, requests}.
type Artifact struct {
	Messages []CookedMessage `json:"messages"`
	Tools    []CookedTool    `json:"tools"`
	Requests []CookedRequest `json:"requests"`
}

// ToolSet returns the CookedTool ids declared on r as a set, for the
// lineage reconstructor's symmetric-difference scoring.
func (r CookedRequest) ToolSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.Tools))
	for _, id := range r.Tools {
		set[id] = struct{}{}
	}
	return set
}

// ExpectedPrefix returns request_messages followed by response_messages,
// the prefix a child call is expected to extend.
func (r CookedRequest) ExpectedPrefix() []string {
	prefix := make([]string, 0, len(r.RequestMessages)+len(r.ResponseMessages))
	prefix = append(prefix, r.RequestMessages...)
	prefix = append(prefix, r.ResponseMessages...)
	return prefix
}
