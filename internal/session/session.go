// Package session drives chat turns for one connected conversation. A
// session owns the card transcript, serializes turns, and enforces the
// last-message-wins policy: a message arriving while a turn is still
// streaming cancels the in-flight turn before the new one starts.
package session

import (
	"context"
	"strconv"
	"sync"

	"github.com/golgue/golgue/internal/chat"
	"github.com/golgue/golgue/internal/prompt"
)

// Responder produces the streamed answer for one user message and owns the
// session's native message history.
type Responder interface {
	Respond(ctx context.Context, text string) <-chan string
	History() []chat.Message
	LoadHistory(messages []chat.Message)
	ExportState() map[string]any
	LoadState(meta map[string]any)
	SetUser(user *prompt.User)
}

// Update is one incremental transcript change pushed to the consumer. Card is
// a snapshot of the in-progress card; Done marks the turn's final update.
type Update struct {
	Card chat.Card
	Done bool
}

// stoppedMarker is appended to an answer cut short by a superseding message,
// so the transcript never shows a silently truncated turn.
const stoppedMarker = "\n\n_Stopped._"

type Session struct {
	mu        sync.Mutex
	responder Responder
	cards     []chat.Card
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(responder Responder) *Session {
	return &Session{responder: responder}
}

// SetUser forwards the authenticated user to the responder.
func (s *Session) SetUser(user *prompt.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responder.SetUser(user)
}

// Cards returns a snapshot of the transcript.
func (s *Session) Cards() []chat.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Card, len(s.cards))
	copy(out, s.cards)
	return out
}

// Send starts a turn for text, cancelling any turn still in flight. Updates
// stream on the returned channel until the turn finishes; the final update
// has Done set.
func (s *Session) Send(ctx context.Context, text string) <-chan Update {
	s.mu.Lock()
	prevCancel, prevDone := s.cancel, s.done
	s.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	turnCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	updates := make(chan Update)

	s.mu.Lock()
	s.cancel, s.done = cancel, done
	index := len(s.cards)
	s.cards = append(s.cards, chat.Card{
		ID:       strconv.Itoa(index),
		Question: text,
	})
	s.mu.Unlock()

	go s.run(turnCtx, cancel, done, updates, index, text)
	return updates
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, updates chan<- Update, index int, text string) {
	defer close(updates)
	defer close(done)
	defer cancel()

	for frag := range s.responder.Respond(ctx, text) {
		s.mu.Lock()
		s.cards[index].Answer += frag
		snapshot := s.cards[index]
		s.mu.Unlock()
		select {
		case updates <- Update{Card: snapshot}:
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.cards[index].Answer += stoppedMarker
	}
	s.cards[index].AnswerText = chat.SanitizeAnswer(s.cards[index].Answer)
	if s.done == done {
		s.cancel, s.done = nil, nil
	}
	final := s.cards[index]
	s.mu.Unlock()

	select {
	case updates <- Update{Card: final, Done: true}:
	case <-ctx.Done():
	}
}

// Export serializes the transcript and prompt state.
func (s *Session) Export() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	export := chat.Export{Cards: s.cards, Meta: s.responder.ExportState()}
	return export.JSON()
}

// Import replaces the transcript and prompt state from an exported payload.
// Payloads in the generic role/content message shape are paired back into
// cards. Malformed payloads degrade to an empty transcript.
func (s *Session) Import(data []byte) {
	export := chat.ParseExport(data)
	if len(export.Cards) == 0 {
		export.Cards = chat.MessagesToCards(chat.ParseMessages(data))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = export.Cards
	s.responder.LoadState(export.Meta)
	s.responder.LoadHistory(chat.CardsToMessages(export.Cards, ""))
}
