package ai

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is a function the model may call during a turn. Schema is a JSON
// Schema object describing the arguments; Fn receives the decoded arguments.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Fn          func(ctx context.Context, args map[string]any) (any, error)
}

// Invoke runs the tool and converts failures into descriptive string results.
// A tool error must never abort the response stream; the model sees the error
// text and can react to it.
func (t Tool) Invoke(ctx context.Context, args map[string]any) any {
	if t.Fn == nil {
		return fmt.Sprintf("Error executing %s: tool has no implementation", t.Name)
	}
	result, err := t.Fn(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %v", t.Name, err)
	}
	return result
}

func findTool(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// schemaMap decodes a tool's schema for SDKs that want a map. A broken schema
// degrades to an empty object schema so one bad tool cannot break the rest.
func schemaMap(schema json.RawMessage) map[string]any {
	out := map[string]any{}
	if len(schema) == 0 || json.Unmarshal(schema, &out) != nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return out
}
