package session

import (
	"context"
	"time"

	"github.com/golgue/golgue/internal/chat"
	"github.com/golgue/golgue/internal/prompt"
)

// EchoResponder streams the user's message back rune by rune. It stands in
// for a real model runner when no LLM is configured, so the rest of the stack
// stays exercisable.
type EchoResponder struct {
	state   *prompt.State
	history []chat.Message
	delay   time.Duration
}

func NewEchoResponder() *EchoResponder {
	return &EchoResponder{state: prompt.NewState(""), delay: 5 * time.Millisecond}
}

func (e *EchoResponder) Respond(ctx context.Context, text string) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		reply := "You said: " + text
		for _, r := range reply {
			select {
			case out <- string(r):
			case <-ctx.Done():
				return
			}
			if e.delay > 0 {
				select {
				case <-time.After(e.delay):
				case <-ctx.Done():
					return
				}
			}
		}
		if ctx.Err() == nil {
			e.history = append(e.history,
				chat.Message{Role: chat.RoleUser, Content: text},
				chat.Message{Role: chat.RoleAssistant, Content: reply},
			)
		}
	}()
	return out
}

func (e *EchoResponder) History() []chat.Message            { return e.history }
func (e *EchoResponder) LoadHistory(messages []chat.Message) { e.history = messages }
func (e *EchoResponder) ExportState() map[string]any        { return e.state.ExportState() }
func (e *EchoResponder) LoadState(meta map[string]any)      { e.state.LoadState(meta) }
func (e *EchoResponder) SetUser(user *prompt.User)          {}
