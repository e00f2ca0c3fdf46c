package cook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/llmtap/llmtap/internal/artifact"
)

// messageHash computes the SHA-256 of the JSON-canonical tuple
// (role, content, tool_calls, tool_use_id, is_error), truncated to 16
// hex chars. Go's encoding/json sorts map keys, which gives sorted-key
// canonicalization for the nested tool_calls argument objects for free.
// Unset fields encode as null.
func messageHash(m artifact.CookedMessage) string {
	var toolCalls interface{}
	if len(m.ToolCalls) > 0 {
		toolCalls = m.ToolCalls
	}
	var toolUseID interface{}
	if m.ToolUseID != "" {
		toolUseID = m.ToolUseID
	}
	var isError interface{}
	if m.IsError != nil {
		isError = *m.IsError
	}

	tuple := []interface{}{m.Role, m.Content, toolCalls, toolUseID, isError}
	return hashTuple(tuple)
}

// toolHash computes the SHA-256 of (name, description, parameters),
// truncated to 16 hex chars.
func toolHash(name, description string, parameters map[string]interface{}) string {
	var params interface{}
	if parameters != nil {
		params = parameters
	}
	tuple := []interface{}{name, description, params}
	return hashTuple(tuple)
}

func hashTuple(tuple []interface{}) string {
	data, err := json.Marshal(tuple)
	if err != nil {
		// Tuples are built from already-decoded JSON values; marshaling
		// back can't fail in practice.
		data = []byte("null")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
