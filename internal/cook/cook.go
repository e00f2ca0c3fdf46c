// Package cook implements the trace normaliser: it reads a capture log,
// detects each record's wire dialect, reassembles streamed responses,
// translates both dialects into the canonical message/tool model,
// deduplicates across the whole run, and emits a derived artifact.
package cook

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/llmtap/llmtap/internal/artifact"
	"github.com/llmtap/llmtap/internal/capture"
	"github.com/llmtap/llmtap/internal/dialect"
	"github.com/llmtap/llmtap/internal/lineage"
	"github.com/llmtap/llmtap/internal/schema"
	"github.com/llmtap/llmtap/internal/tokencount"
)

// Summary reports what a cook run did, for the CLI to print.
type Summary struct {
	RecordsRead    int
	RecordsSkipped int
	Messages       int
	Tools          int
	Requests       int
}

// dedup maintains the first-seen id assignment for one entity kind
// across a whole cook run, keyed by content hash. The counter is driven
// strictly by first-seen order so repeated runs over the same input
// produce identical ids.
type dedup struct {
	prefix string
	next   int
	ids    map[string]string
}

func newDedup(prefix string) *dedup {
	return &dedup{prefix: prefix, ids: map[string]string{}}
}

// assign returns the existing id for hash if seen before, else mints a
// fresh one and reports isNew so the caller only builds the entity once.
func (d *dedup) assign(hash string) (id string, isNew bool) {
	if id, ok := d.ids[hash]; ok {
		return id, false
	}
	id = fmt.Sprintf("%s%d", d.prefix, d.next)
	d.next++
	d.ids[hash] = id
	return id, true
}

// Run reads inputPath, normalises every record, reconstructs lineage,
// and atomically writes the derived artifact to outputPath.
func Run(inputPath, outputPath string) (*Summary, error) {
	records, err := capture.ReadAll(inputPath)
	if err != nil {
		return nil, fmt.Errorf("reading capture log: %w", err)
	}

	msgDedup := newDedup("m")
	toolDedup := newDedup("t")

	var messages []artifact.CookedMessage
	var tools []artifact.CookedTool
	var requests []artifact.CookedRequest
	skipped := 0

	for _, rec := range records {
		req, err := cookOneRecord(rec, msgDedup, toolDedup, &messages, &tools)
		if err != nil {
			skipped++
			slog.Warn("skipping record during cook", "id", rec.ID, "error", err)
			requests = append(requests, artifact.CookedRequest{
				ID:          rec.ID,
				TimestampMS: parseTimestampMS(rec.Timestamp),
				DurationMS:  rec.DurationMS,
				Error:       err.Error(),
			})
			continue
		}
		requests = append(requests, *req)
	}

	lineage.Assign(requests)

	art := &artifact.Artifact{Messages: messages, Tools: tools, Requests: requests}
	if err := artifact.Save(outputPath, art); err != nil {
		return nil, fmt.Errorf("writing derived artifact: %w", err)
	}

	return &Summary{
		RecordsRead:    len(records),
		RecordsSkipped: skipped,
		Messages:       len(messages),
		Tools:          len(tools),
		Requests:       len(requests),
	}, nil
}

// cookOneRecord normalises a single TraceRecord into a CookedRequest,
// growing messages/tools with any newly-seen entities.
func cookOneRecord(rec *capture.TraceRecord, msgDedup, toolDedup *dedup, messages *[]artifact.CookedMessage, tools *[]artifact.CookedTool) (*artifact.CookedRequest, error) {
	if rec.Error != "" && len(rec.Response) == 0 {
		return &artifact.CookedRequest{
			ID:          rec.ID,
			TimestampMS: parseTimestampMS(rec.Timestamp),
			DurationMS:  rec.DurationMS,
			Error:       rec.Error,
		}, nil
	}

	d := dialect.Detect(rec)

	var (
		reqMsgs, respMsgs []rawMessage
		rawTools          []rawTool
		model             string
	)

	switch d {
	case dialect.Claude:
		var req claudeRequest
		if err := json.Unmarshal(rec.Request, &req); err != nil {
			return nil, fmt.Errorf("parsing claude request: %w", err)
		}
		model = req.Model
		reqMsgs = translateClaudeRequestMessages(req)
		rawTools = translateClaudeTools(req.Tools)

		resp, err := decodeClaudeResponse(rec.Response)
		if err != nil {
			return nil, fmt.Errorf("reassembling claude response: %w", err)
		}
		respMsgs = translateClaudeResponse(resp)

	default:
		var req openAIRequest
		if err := json.Unmarshal(rec.Request, &req); err != nil {
			return nil, fmt.Errorf("parsing openai request: %w", err)
		}
		model = req.Model
		reqMsgs = translateOpenAIRequestMessages(req)
		rawTools = translateOpenAITools(req.Tools)

		resp, err := decodeOpenAIResponse(rec.Response)
		if err != nil {
			return nil, fmt.Errorf("reassembling openai response: %w", err)
		}
		respMsgs = translateOpenAIResponse(resp)
	}

	toolIDs := assignTools(rawTools, toolDedup, tools)
	reqIDs := assignMessages(reqMsgs, msgDedup, messages)
	respIDs := assignMessages(respMsgs, msgDedup, messages)

	return &artifact.CookedRequest{
		ID:               rec.ID,
		TimestampMS:      parseTimestampMS(rec.Timestamp),
		RequestMessages:  reqIDs,
		ResponseMessages: respIDs,
		Model:            model,
		Tools:            toolIDs,
		DurationMS:       rec.DurationMS,
		Error:            rec.Error,
	}, nil
}

func assignMessages(raws []rawMessage, d *dedup, messages *[]artifact.CookedMessage) []string {
	ids := make([]string, 0, len(raws))
	for _, rm := range raws {
		cm := artifact.CookedMessage{
			Role:      rm.Role,
			Content:   rm.Content,
			ToolCalls: rm.ToolCalls,
			ToolUseID: rm.ToolUseID,
			IsError:   rm.IsError,
		}
		hash := messageHash(cm)
		id, isNew := d.assign(hash)
		ids = append(ids, id)
		if isNew {
			cm.ID = id
			cm.ApproxTokens = tokencount.Count(cm.Content)
			*messages = append(*messages, cm)
		}
	}
	return ids
}

func assignTools(raws []rawTool, d *dedup, tools *[]artifact.CookedTool) []string {
	ids := make([]string, 0, len(raws))
	for _, rt := range raws {
		hash := toolHash(rt.Name, rt.Description, rt.Parameters)
		id, isNew := d.assign(hash)
		ids = append(ids, id)
		if isNew {
			*tools = append(*tools, artifact.CookedTool{
				ID:          id,
				Name:        rt.Name,
				Description: rt.Description,
				Parameters:  rt.Parameters,
				SchemaError: schema.Validate(rt.Name, rt.Parameters),
			})
		}
	}
	return ids
}

// decodeOpenAIResponse returns the non-streaming response shape,
// reassembling it from sse_lines first if the record was streamed.
func decodeOpenAIResponse(response json.RawMessage) (*openAIResponse, error) {
	if len(response) == 0 {
		return nil, nil
	}
	if lines, ok, err := sseLinesOf(response); err != nil {
		return nil, err
	} else if ok {
		return reassembleOpenAI(lines)
	}
	var resp openAIResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// decodeClaudeResponse mirrors decodeOpenAIResponse for the Claude shape.
func decodeClaudeResponse(response json.RawMessage) (*claudeResponse, error) {
	if len(response) == 0 {
		return nil, nil
	}
	if lines, ok, err := sseLinesOf(response); err != nil {
		return nil, err
	} else if ok {
		return reassembleClaude(lines)
	}
	var resp claudeResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func sseLinesOf(response json.RawMessage) ([]string, bool, error) {
	var body capture.SSEBody
	if err := json.Unmarshal(response, &body); err != nil {
		return nil, false, nil
	}
	if !body.Stream {
		return nil, false, nil
	}
	return body.SSELines, true, nil
}
