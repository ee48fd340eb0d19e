// Package ai runs streaming turns against LLM agent runtimes. Each provider
// integration translates its SDK's event vocabulary into the normalized
// stream events the adapter consumes and drives the tool-call loop until the
// model produces a final answer.
package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golgue/golgue/internal/stream"
)

type Config struct {
	Provider string
	Model    string
	APIKey   string
}

// maxTurns bounds the tool-call loop so a model that keeps requesting tools
// cannot spin forever.
const maxTurns = 8

// NewRunner builds a stream.Runner for the configured provider.
func NewRunner(cfg Config, tools ...Tool) (stream.Runner, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("llm provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	switch cfg.Provider {
	case "openai":
		return newOpenAIRunner(cfg, tools), nil
	case "anthropic":
		return newAnthropicRunner(cfg, tools), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func sendEvent(ctx context.Context, out chan<- stream.Event, ev stream.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// parseArgs decodes a tool call's streamed JSON arguments. Malformed input
// yields an empty map rather than an error; the tool decides how to handle
// missing fields.
func parseArgs(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

// resultContent flattens a tool result into the string fed back to the model.
func resultContent(result any) string {
	switch v := result.(type) {
	case nil:
		return "null"
	case string:
		return v
	default:
		if out, err := json.Marshal(v); err == nil {
			return string(out)
		}
		return fmt.Sprintf("%v", v)
	}
}
