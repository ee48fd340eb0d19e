package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/golgue/golgue/internal/chat"
	"github.com/golgue/golgue/internal/prompt"
	"github.com/golgue/golgue/internal/session"
)

type wsWriter interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
}

// wsInbound is one client frame: a user message, optionally carrying the
// authenticated user profile.
type wsInbound struct {
	Message string       `json:"message"`
	User    *prompt.User `json:"user,omitempty"`
}

// wsOutbound is one server frame: a card snapshot while streaming, with
// type "done" marking the turn's final state.
type wsOutbound struct {
	Type string    `json:"type"`
	Card chat.Card `json:"card"`
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request, chatID string) {
	sess, err := s.sessionFor(r, chatID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ctx := r.Context()
	// Forwarding goroutines for superseded turns may still hold the
	// connection; one writer at a time.
	var writeMu sync.Mutex
	var turns sync.WaitGroup

	for {
		var inbound wsInbound
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		if err := json.Unmarshal(data, &inbound); err != nil || inbound.Message == "" {
			continue
		}
		if inbound.User != nil {
			sess.SetUser(inbound.User)
		}

		updates := sess.Send(ctx, inbound.Message)
		turns.Add(1)
		go func() {
			defer turns.Done()
			_ = forwardUpdates(ctx, conn, &writeMu, updates)
			// The request context dies with the connection; persistence
			// must outlive it.
			_ = s.Store.SaveTranscript(context.Background(), chatID, sess.Export())
		}()
	}

	turns.Wait()
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func forwardUpdates(ctx context.Context, writer wsWriter, writeMu *sync.Mutex, updates <-chan session.Update) error {
	for update := range updates {
		kind := "card"
		if update.Done {
			kind = "done"
		}
		payload, err := json.Marshal(wsOutbound{Type: kind, Card: update.Card})
		if err != nil {
			return err
		}
		writeMu.Lock()
		err = writer.Write(ctx, websocket.MessageText, payload)
		writeMu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}
