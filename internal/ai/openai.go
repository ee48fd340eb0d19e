package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/golgue/golgue/internal/chat"
	"github.com/golgue/golgue/internal/stream"
)

type openAIRunner struct {
	client *openai.Client
	model  string
	tools  []Tool
}

func newOpenAIRunner(cfg Config, tools []Tool) *openAIRunner {
	return &openAIRunner{
		client: openai.NewClient(cfg.APIKey),
		model:  cfg.Model,
		tools:  tools,
	}
}

func (r *openAIRunner) Run(ctx context.Context, systemPrompt string, history []chat.Message, text string) (<-chan stream.Event, error) {
	messages := openAIMessages(systemPrompt, history, text)
	out := make(chan stream.Event)
	go func() {
		defer close(out)
		r.run(ctx, messages, history, text, out)
	}()
	return out, nil
}

func (r *openAIRunner) run(ctx context.Context, messages []openai.ChatCompletionMessage, history []chat.Message, text string, out chan<- stream.Event) {
	var answer strings.Builder

	for turn := 0; turn < maxTurns; turn++ {
		req := openai.ChatCompletionRequest{
			Model:    r.model,
			Messages: messages,
			Stream:   true,
		}
		if len(r.tools) > 0 {
			req.Tools = openAITools(r.tools)
		}

		s, err := r.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			sendEvent(ctx, out, stream.Event{Kind: stream.KindText, Content: fmt.Sprintf("\n\nError: %v", err)})
			return
		}
		turnText, calls, err := r.consume(ctx, s, out)
		s.Close()
		answer.WriteString(turnText)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				sendEvent(ctx, out, stream.Event{Kind: stream.KindText, Content: fmt.Sprintf("\n\nError: %v", err)})
			}
			return
		}

		if len(calls) == 0 {
			transcript := append(append([]chat.Message{}, history...),
				chat.Message{Role: chat.RoleUser, Content: text},
				chat.Message{Role: chat.RoleAssistant, Content: answer.String()},
			)
			sendEvent(ctx, out, stream.Event{Kind: stream.KindRunComplete, Messages: transcript})
			return
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   turnText,
			ToolCalls: calls,
		})
		for _, call := range calls {
			args := parseArgs(call.Function.Arguments)
			if !sendEvent(ctx, out, stream.Event{
				Kind:     stream.KindToolStart,
				ToolName: call.Function.Name,
				CallID:   call.ID,
				Args:     args,
			}) {
				return
			}
			var result any
			if tool, ok := findTool(r.tools, call.Function.Name); ok {
				result = tool.Invoke(ctx, args)
			} else {
				result = fmt.Sprintf("Error: unknown tool %q", call.Function.Name)
			}
			if !sendEvent(ctx, out, stream.Event{
				Kind:     stream.KindToolResult,
				ToolName: call.Function.Name,
				CallID:   call.ID,
				Args:     args,
				Result:   result,
			}) {
				return
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    resultContent(result),
				ToolCallID: call.ID,
			})
		}
	}

	sendEvent(ctx, out, stream.Event{Kind: stream.KindText, Content: "\n\nError: tool call limit reached"})
}

// consume drains one completion stream, emitting text deltas as they arrive
// and accumulating tool call fragments by index until the stream ends.
func (r *openAIRunner) consume(ctx context.Context, s *openai.ChatCompletionStream, out chan<- stream.Event) (string, []openai.ToolCall, error) {
	var text strings.Builder
	partial := make(map[int]*openai.ToolCall)

	for {
		response, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return text.String(), collectCalls(partial), nil
			}
			return text.String(), nil, err
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if !sendEvent(ctx, out, stream.Event{Kind: stream.KindText, Content: delta.Content}) {
				return text.String(), nil, ctx.Err()
			}
		}
		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if partial[index] == nil {
				partial[index] = &openai.ToolCall{Type: openai.ToolTypeFunction}
			}
			if tc.ID != "" {
				partial[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				partial[index].Function.Name = tc.Function.Name
			}
			partial[index].Function.Arguments += tc.Function.Arguments
		}
	}
}

func collectCalls(partial map[int]*openai.ToolCall) []openai.ToolCall {
	indexes := make([]int, 0, len(partial))
	for i := range partial {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	var calls []openai.ToolCall
	for _, i := range indexes {
		call := partial[i]
		if call.Function.Name == "" {
			continue
		}
		calls = append(calls, *call)
	}
	return calls
}

func openAIMessages(systemPrompt string, history []chat.Message, text string) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, msg := range history {
		if msg.Role == chat.RoleSystem {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
}

func openAITools(tools []Tool) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap(tool.Schema),
			},
		}
	}
	return result
}
