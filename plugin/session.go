package plugin

import (
	"fmt"

	"github.com/semkit/semkit/core"
)

// NewSessionPlugin returns a built-in plugin exposing session state, memory
// and artifact operations to the model. Useful for assistants that should
// remember facts or stash data without bespoke plugin code.
func NewSessionPlugin() *Plugin {
	p := New("session", "Session state, memory and artifact operations")

	p.AddFunction(NewFunction(
		"get_state",
		"Read a value from session state",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key": map[string]any{"type": "string", "description": "State key to read"},
			},
			"required": []string{"key"},
		},
		func(fnCtx *core.FunctionContext, args map[string]any) (any, error) {
			key := args["key"].(string)
			value, exists := fnCtx.GetState(key)
			return map[string]any{"key": key, "exists": exists, "value": value}, nil
		},
	))

	p.AddFunction(NewFunction(
		"set_state",
		"Write a value into session state",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key":   map[string]any{"type": "string", "description": "State key to write"},
				"value": map[string]any{"description": "Value to store (any type)"},
			},
			"required": []string{"key"},
		},
		func(fnCtx *core.FunctionContext, args map[string]any) (any, error) {
			key := args["key"].(string)
			fnCtx.SetState(key, args["value"])
			return map[string]any{"key": key, "success": true}, nil
		},
	))

	p.AddFunction(NewFunction(
		"search_memory",
		"Search stored memories for relevant content",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query"},
				"limit": map[string]any{"type": "integer", "description": "Maximum results (default 10)"},
			},
			"required": []string{"query"},
		},
		func(fnCtx *core.FunctionContext, args map[string]any) (any, error) {
			query := args["query"].(string)
			limit := 10
			if l, ok := args["limit"].(float64); ok {
				limit = int(l)
			}
			results, err := fnCtx.SearchMemory(query, limit)
			if err != nil {
				return nil, fmt.Errorf("search memory: %w", err)
			}
			return map[string]any{"query": query, "count": len(results), "results": results}, nil
		},
	))

	p.AddFunction(NewFunction(
		"store_memory",
		"Store content as a long-term memory",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content":  map[string]any{"type": "string", "description": "Content to remember"},
				"metadata": map[string]any{"type": "object", "description": "Optional metadata"},
			},
			"required": []string{"content"},
		},
		func(fnCtx *core.FunctionContext, args map[string]any) (any, error) {
			content := args["content"].(string)
			metadata := map[string]any{}
			if m, ok := args["metadata"].(map[string]any); ok {
				metadata = m
			}
			if err := fnCtx.StoreMemory(content, metadata); err != nil {
				return nil, fmt.Errorf("store memory: %w", err)
			}
			return map[string]any{"success": true}, nil
		},
	))

	p.AddFunction(NewFunction(
		"save_artifact",
		"Save text data as a session artifact",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"artifact_id": map[string]any{"type": "string", "description": "Artifact identifier"},
				"data":        map[string]any{"type": "string", "description": "Text content to save"},
			},
			"required": []string{"artifact_id", "data"},
		},
		func(fnCtx *core.FunctionContext, args map[string]any) (any, error) {
			id := args["artifact_id"].(string)
			data := args["data"].(string)
			if err := fnCtx.SaveArtifact(id, []byte(data)); err != nil {
				return nil, fmt.Errorf("save artifact: %w", err)
			}
			return map[string]any{"artifact_id": id, "size": len(data), "success": true}, nil
		},
	))

	p.AddFunction(NewFunction(
		"load_artifact",
		"Load a previously saved session artifact",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"artifact_id": map[string]any{"type": "string", "description": "Artifact identifier"},
			},
			"required": []string{"artifact_id"},
		},
		func(fnCtx *core.FunctionContext, args map[string]any) (any, error) {
			id := args["artifact_id"].(string)
			data, err := fnCtx.LoadArtifact(id)
			if err != nil {
				return nil, fmt.Errorf("load artifact: %w", err)
			}
			return map[string]any{"artifact_id": id, "data": string(data), "size": len(data)}, nil
		},
	))

	p.AddFunction(NewFunction(
		"list_artifacts",
		"List artifact identifiers stored for this session",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		func(fnCtx *core.FunctionContext, args map[string]any) (any, error) {
			ids, err := fnCtx.ListArtifacts()
			if err != nil {
				return nil, fmt.Errorf("list artifacts: %w", err)
			}
			return map[string]any{"artifacts": ids, "count": len(ids)}, nil
		},
	))

	return p
}
