package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golgue/golgue/internal/chat"
	"github.com/golgue/golgue/internal/prompt"
)

// scriptResponder emits fixed fragments, optionally blocking until released.
type scriptResponder struct {
	fragments []string
	block     chan struct{} // when non-nil, waits after the first fragment
	state     *prompt.State
	history   []chat.Message
}

func newScriptResponder(fragments ...string) *scriptResponder {
	return &scriptResponder{fragments: fragments, state: prompt.NewState("")}
}

func (r *scriptResponder) Respond(ctx context.Context, text string) <-chan string {
	fragments, block := r.fragments, r.block
	out := make(chan string)
	go func() {
		defer close(out)
		for i, frag := range fragments {
			select {
			case out <- frag:
			case <-ctx.Done():
				return
			}
			if i == 0 && block != nil {
				select {
				case <-block:
				case <-ctx.Done():
					return
				}
			}
		}
		if ctx.Err() == nil {
			r.history = append(r.history,
				chat.Message{Role: chat.RoleUser, Content: text},
				chat.Message{Role: chat.RoleAssistant, Content: strings.Join(fragments, "")},
			)
		}
	}()
	return out
}

func (r *scriptResponder) History() []chat.Message             { return r.history }
func (r *scriptResponder) LoadHistory(messages []chat.Message) { r.history = messages }
func (r *scriptResponder) ExportState() map[string]any         { return r.state.ExportState() }
func (r *scriptResponder) LoadState(meta map[string]any)       { r.state.LoadState(meta) }
func (r *scriptResponder) SetUser(user *prompt.User)           {}

func drain(updates <-chan Update) chat.Card {
	var last chat.Card
	for update := range updates {
		last = update.Card
	}
	return last
}

func TestSendStreamsCard(t *testing.T) {
	s := New(newScriptResponder("Hel", "lo"))
	card := drain(s.Send(context.Background(), "hi"))
	if card.Question != "hi" || card.Answer != "Hello" {
		t.Fatalf("card = %+v", card)
	}
	if card.AnswerText != "Hello" {
		t.Fatalf("answer text = %q", card.AnswerText)
	}
	cards := s.Cards()
	if len(cards) != 1 || cards[0].ID != "0" {
		t.Fatalf("cards = %+v", cards)
	}
}

func TestLastMessageWins(t *testing.T) {
	responder := newScriptResponder("partial", " never sent")
	responder.block = make(chan struct{})
	s := New(responder)

	first := s.Send(context.Background(), "first")
	// Wait until the first fragment landed.
	deadline := time.After(2 * time.Second)
	for {
		if len(s.Cards()) == 1 && s.Cards()[0].Answer != "" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("first turn never started")
		case <-time.After(time.Millisecond):
		}
	}

	responder.block = nil
	responder.fragments = []string{"second answer"}
	card := drain(s.Send(context.Background(), "second"))
	drain(first)

	cards := s.Cards()
	if len(cards) != 2 {
		t.Fatalf("cards = %+v", cards)
	}
	if !strings.HasSuffix(cards[0].Answer, stoppedMarker) {
		t.Fatalf("first card must carry the stop marker: %q", cards[0].Answer)
	}
	if !strings.HasPrefix(cards[0].Answer, "partial") {
		t.Fatalf("partial answer must survive: %q", cards[0].Answer)
	}
	if card.Answer != "second answer" {
		t.Fatalf("second card = %+v", card)
	}
}

func TestSequentialTurns(t *testing.T) {
	responder := newScriptResponder("one")
	s := New(responder)
	drain(s.Send(context.Background(), "q1"))
	responder.fragments = []string{"two"}
	drain(s.Send(context.Background(), "q2"))
	cards := s.Cards()
	if len(cards) != 2 || cards[0].Answer != "one" || cards[1].Answer != "two" {
		t.Fatalf("cards = %+v", cards)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	responder := newScriptResponder(`<div class="tool-html">x</div> ok`)
	responder.state = prompt.NewState("B")
	responder.state.Append("A1")
	s := New(responder)
	drain(s.Send(context.Background(), "hi"))
	exported := s.Export()

	fresh := newScriptResponder()
	fresh.state = prompt.NewState("B")
	s2 := New(fresh)
	s2.Import(exported)

	cards := s2.Cards()
	if len(cards) != 1 || cards[0].Question != "hi" {
		t.Fatalf("cards = %+v", cards)
	}
	history := fresh.History()
	if len(history) != 2 {
		t.Fatalf("history = %+v", history)
	}
	if history[1].Content != "Rendered tool output. ok" {
		t.Fatalf("assistant content = %q", history[1].Content)
	}
	if fresh.state.Compose(nil) != responder.state.Compose(nil) {
		t.Fatalf("composed prompts differ: %q vs %q",
			fresh.state.Compose(nil), responder.state.Compose(nil))
	}
}

func TestImportRoleContentPayload(t *testing.T) {
	responder := newScriptResponder()
	s := New(responder)
	s.Import([]byte(`{"messages":[
		{"role":"system","content":"sys"},
		{"role":"user","content":"q1"},
		{"role":"assistant","content":"a1"},
		{"role":"user","content":"in flight"}]}`))

	cards := s.Cards()
	if len(cards) != 1 || cards[0].Question != "q1" || cards[0].Answer != "a1" {
		t.Fatalf("cards = %+v", cards)
	}
	history := responder.History()
	if len(history) != 2 || history[1].Content != "a1" {
		t.Fatalf("history = %+v", history)
	}
}

func TestImportMalformedPayload(t *testing.T) {
	s := New(newScriptResponder())
	s.Import([]byte("not json at all"))
	if len(s.Cards()) != 0 {
		t.Fatalf("cards = %+v", s.Cards())
	}
}

func TestEchoResponder(t *testing.T) {
	echo := NewEchoResponder()
	echo.delay = 0
	s := New(echo)
	card := drain(s.Send(context.Background(), "ping"))
	if card.Answer != "You said: ping" {
		t.Fatalf("answer = %q", card.Answer)
	}
	history := echo.History()
	if len(history) != 2 || history[0].Content != "ping" {
		t.Fatalf("history = %+v", history)
	}
}
