// Package stream normalizes heterogeneous agent-runtime event streams into a
// linear sequence of text fragments a chat UI can render incrementally. It
// tracks tool-call lifecycle state across the stream and keeps the session's
// message history current when the stream ends.
package stream

import (
	"context"
	"fmt"
	"strings"

	"github.com/golgue/golgue/internal/chat"
	"github.com/golgue/golgue/internal/fragment"
	"github.com/golgue/golgue/internal/prompt"
)

// Kind classifies a normalized runtime event.
type Kind int

const (
	// KindText carries assistant answer content.
	KindText Kind = iota
	// KindReasoning carries model reasoning content.
	KindReasoning
	// KindToolStart announces a tool invocation.
	KindToolStart
	// KindToolResult carries a tool invocation's result.
	KindToolResult
	// KindRunComplete is the terminal event carrying the canonical transcript.
	KindRunComplete
)

// Event is the normalized form every runtime integration translates its own
// event vocabulary into. Which fields are meaningful depends on Kind.
type Event struct {
	Kind Kind

	// Content holds text for KindText and KindReasoning. When Cumulative is
	// set the content is the full accumulated string so far, not a delta.
	Content    string
	Cumulative bool

	// Tool fields for KindToolStart and KindToolResult.
	ToolName string
	CallID   string
	Args     map[string]any
	Result   any

	// Messages holds the canonical transcript for KindRunComplete.
	Messages []chat.Message
}

// Runner drives one streaming turn against an agent runtime. The returned
// channel is closed when the run ends; runners stop early when ctx is
// cancelled.
type Runner interface {
	Run(ctx context.Context, systemPrompt string, history []chat.Message, text string) (<-chan Event, error)
}

type pendingCall struct {
	id   string
	name string
	args map[string]any
}

// Responder adapts a Runner's event stream into UI fragments. It owns the
// session's message history and composes the system prompt per turn from the
// shared prompt state. A Responder serves one session; callers serialize
// turns themselves.
type Responder struct {
	runner          Runner
	state           *prompt.State
	showToolDetails bool

	user    *prompt.User
	history []chat.Message
}

// NewResponder wraps a runner. The prompt state may be shared across several
// responders wrapping the same underlying agent; instructions appended through
// one are visible to all of them.
func NewResponder(runner Runner, state *prompt.State, showToolDetails bool) *Responder {
	if state == nil {
		state = prompt.NewState("")
	}
	return &Responder{runner: runner, state: state, showToolDetails: showToolDetails}
}

// SetUser records the authenticated user woven into the system prompt.
func (r *Responder) SetUser(user *prompt.User) {
	r.user = user
}

// AppendInstructions adds instruction fragments to the shared prompt state.
func (r *Responder) AppendInstructions(entries ...string) {
	for _, entry := range entries {
		r.state.Append(entry)
	}
}

// History returns the current message history.
func (r *Responder) History() []chat.Message {
	return r.history
}

// LoadHistory replaces the message history, typically from an import.
func (r *Responder) LoadHistory(messages []chat.Message) {
	r.history = messages
}

// ExportState snapshots the prompt state for persistence.
func (r *Responder) ExportState() map[string]any {
	return r.state.ExportState()
}

// LoadState restores prompt state from exported metadata. Malformed input is
// ignored.
func (r *Responder) LoadState(meta map[string]any) {
	r.state.LoadState(meta)
}

// Respond streams one turn. Fragments arrive on the returned channel in event
// order; the channel closes when the turn ends. When the turn completes
// without cancellation the responder's history reflects the finished turn,
// either from the runtime's canonical transcript or from a reconstructed
// user/assistant pair. Runner failures degrade to an inline error fragment
// rather than an error return, so the caller always gets a completed turn.
func (r *Responder) Respond(ctx context.Context, text string) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		r.respond(ctx, text, out)
	}()
	return out
}

func (r *Responder) respond(ctx context.Context, text string, out chan<- string) {
	systemPrompt := r.state.Compose(r.user)
	events, err := r.runner.Run(ctx, systemPrompt, r.history, text)
	if err != nil {
		emit(ctx, out, fmt.Sprintf("Error: %v", err))
		return
	}

	pending := make(map[string]pendingCall)
	var order []string
	callCounter := 0

	var streamedText string      // tracked total for cumulative text events
	var streamedReasoning string // tracked total for cumulative reasoning events
	var answer strings.Builder   // concatenation of emitted text deltas
	replaced := false

	for ev := range events {
		switch ev.Kind {
		case KindText:
			delta := computeDelta(&streamedText, ev)
			if delta != "" {
				answer.WriteString(delta)
				if !emit(ctx, out, delta) {
					return
				}
			}
		case KindReasoning:
			delta := computeDelta(&streamedReasoning, ev)
			if delta != "" && !emit(ctx, out, delta) {
				return
			}
		case KindToolStart:
			id := ev.CallID
			if id == "" {
				id = fmt.Sprintf("tool-%d", callCounter)
			}
			callCounter++
			if _, ok := pending[id]; !ok {
				order = append(order, id)
			}
			pending[id] = pendingCall{id: id, name: ev.ToolName, args: ev.Args}
			if !r.showToolDetails && !emit(ctx, out, fragment.StatusRunning(ev.ToolName, ev.Args, id)) {
				return
			}
		case KindToolResult:
			call, ok := popCall(pending, &order, ev.CallID)
			if !ok {
				call = pendingCall{id: ev.CallID, name: ev.ToolName, args: ev.Args}
			}
			if call.name == "" {
				call.name = ev.ToolName
			}
			if call.args == nil {
				call.args = ev.Args
			}
			if !r.showToolDetails && !emit(ctx, out, fragment.StatusDone(call.args, call.id)) {
				return
			}
			html := fragment.ResolveHTML(ev.Result)
			if html == "" && fragment.ShouldRenderRaw(ev.Result) {
				html = ev.Result.(string)
			}
			if html != "" {
				if !emit(ctx, out, "\n\n"+fragment.Wrap(html)+"\n\n") {
					return
				}
			} else if r.showToolDetails {
				if !emit(ctx, out, fragment.Summary(call.name, call.args, ev.Result)) {
					return
				}
			}
		case KindRunComplete:
			if len(ev.Messages) > 0 {
				r.history = ev.Messages
				replaced = true
			}
		}
	}

	// Tool calls whose results never arrived still show up in the transcript,
	// but only in detail mode: compact mode has no "done" signal to anchor a
	// status update to.
	if r.showToolDetails {
		for _, id := range order {
			call := pending[id]
			if !emit(ctx, out, fragment.Summary(call.name, call.args, nil)) {
				return
			}
		}
	}

	if ctx.Err() != nil {
		// Cancelled turns leave history to the caller, which records the
		// partial answer with a stop marker.
		return
	}
	if !replaced {
		r.history = append(r.history,
			chat.Message{Role: chat.RoleUser, Content: text},
			chat.Message{Role: chat.RoleAssistant, Content: answer.String()},
		)
	}
}

// computeDelta returns the new substring for a text event, updating the
// tracked cumulative total. Frameworks that restart content accumulation
// across run boundaries produce a cumulative value that no longer extends the
// tracked total; the whole value is then the delta and tracking resets to it.
func computeDelta(total *string, ev Event) string {
	if !ev.Cumulative {
		*total += ev.Content
		return ev.Content
	}
	if strings.HasPrefix(ev.Content, *total) {
		delta := ev.Content[len(*total):]
		*total = ev.Content
		return delta
	}
	*total = ev.Content
	return ev.Content
}

// popCall removes and returns the pending call for id. An empty id matches
// the oldest pending call, for runtimes that never assign call ids.
func popCall(pending map[string]pendingCall, order *[]string, id string) (pendingCall, bool) {
	if id == "" {
		if len(*order) == 0 {
			return pendingCall{}, false
		}
		id = (*order)[0]
	}
	call, ok := pending[id]
	if !ok {
		return pendingCall{}, false
	}
	delete(pending, id)
	for i, v := range *order {
		if v == id {
			*order = append((*order)[:i], (*order)[i+1:]...)
			break
		}
	}
	return call, true
}

func emit(ctx context.Context, out chan<- string, s string) bool {
	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}
