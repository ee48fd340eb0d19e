package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/golgue/golgue/internal/chat"
	"github.com/golgue/golgue/internal/stream"
)

const anthropicMaxTokens = 8192

type anthropicRunner struct {
	client anthropic.Client
	model  string
	tools  []Tool
}

func newAnthropicRunner(cfg Config, tools []Tool) *anthropicRunner {
	return &anthropicRunner{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
		tools:  tools,
	}
}

// toolUse is one tool invocation assembled from streamed content block events.
type toolUse struct {
	id        string
	name      string
	inputJSON string
}

func (r *anthropicRunner) Run(ctx context.Context, systemPrompt string, history []chat.Message, text string) (<-chan stream.Event, error) {
	messages := anthropicMessages(history, text)
	out := make(chan stream.Event)
	go func() {
		defer close(out)
		r.run(ctx, systemPrompt, messages, history, text, out)
	}()
	return out, nil
}

func (r *anthropicRunner) run(ctx context.Context, systemPrompt string, messages []anthropic.MessageParam, history []chat.Message, text string, out chan<- stream.Event) {
	var answer strings.Builder

	for turn := 0; turn < maxTurns; turn++ {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(r.model),
			MaxTokens: anthropicMaxTokens,
			Messages:  messages,
		}
		if systemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Type: "text", Text: systemPrompt}}
		}
		if len(r.tools) > 0 {
			params.Tools = anthropicTools(r.tools)
		}

		s := r.client.Messages.NewStreaming(ctx, params)
		turnText, uses, ok := r.consume(ctx, s, out)
		answer.WriteString(turnText)
		if !ok {
			return
		}
		if err := s.Err(); err != nil {
			sendEvent(ctx, out, stream.Event{Kind: stream.KindText, Content: fmt.Sprintf("\n\nError: %v", err)})
			return
		}

		if len(uses) == 0 {
			transcript := append(append([]chat.Message{}, history...),
				chat.Message{Role: chat.RoleUser, Content: text},
				chat.Message{Role: chat.RoleAssistant, Content: answer.String()},
			)
			sendEvent(ctx, out, stream.Event{Kind: stream.KindRunComplete, Messages: transcript})
			return
		}

		var blocks []anthropic.ContentBlockParamUnion
		if turnText != "" {
			blocks = append(blocks, anthropic.NewTextBlock(turnText))
		}
		for _, use := range uses {
			blocks = append(blocks, anthropic.NewToolUseBlock(use.id, parseArgs(use.inputJSON), use.name))
		}
		messages = append(messages, anthropic.NewAssistantMessage(blocks...))

		var results []anthropic.ContentBlockParamUnion
		for _, use := range uses {
			args := parseArgs(use.inputJSON)
			if !sendEvent(ctx, out, stream.Event{
				Kind:     stream.KindToolStart,
				ToolName: use.name,
				CallID:   use.id,
				Args:     args,
			}) {
				return
			}
			var result any
			if tool, found := findTool(r.tools, use.name); found {
				result = tool.Invoke(ctx, args)
			} else {
				result = fmt.Sprintf("Error: unknown tool %q", use.name)
			}
			if !sendEvent(ctx, out, stream.Event{
				Kind:     stream.KindToolResult,
				ToolName: use.name,
				CallID:   use.id,
				Args:     args,
				Result:   result,
			}) {
				return
			}
			results = append(results, anthropic.NewToolResultBlock(use.id, resultContent(result), false))
		}
		messages = append(messages, anthropic.NewUserMessage(results...))
	}

	sendEvent(ctx, out, stream.Event{Kind: stream.KindText, Content: "\n\nError: tool call limit reached"})
}

// consume drains one message stream. Text and thinking deltas are emitted as
// they arrive; tool_use blocks accumulate their input JSON until the block
// closes. Returns ok=false when the consumer went away.
func (r *anthropicRunner) consume(ctx context.Context, s interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
}, out chan<- stream.Event) (string, []toolUse, bool) {
	var text strings.Builder
	var uses []toolUse
	var current *toolUse
	var currentInput strings.Builder

	for s.Next() {
		event := s.Current()
		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				use := block.AsToolUse()
				current = &toolUse{id: use.ID, name: use.Name}
				currentInput.Reset()
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					text.WriteString(delta.Text)
					if !sendEvent(ctx, out, stream.Event{Kind: stream.KindText, Content: delta.Text}) {
						return text.String(), nil, false
					}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					if !sendEvent(ctx, out, stream.Event{Kind: stream.KindReasoning, Content: delta.Thinking}) {
						return text.String(), nil, false
					}
				}
			case "input_json_delta":
				currentInput.WriteString(delta.PartialJSON)
			}
		case "content_block_stop":
			if current != nil {
				current.inputJSON = currentInput.String()
				uses = append(uses, *current)
				current = nil
			}
		case "message_stop":
			return text.String(), uses, true
		}
	}
	return text.String(), uses, true
}

func anthropicMessages(history []chat.Message, text string) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		case chat.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
}

func anthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			continue
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			continue
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}
	return result
}
