package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golgue/golgue/internal/chat"
	"github.com/golgue/golgue/internal/idgen"
	"github.com/golgue/golgue/internal/session"
	"github.com/golgue/golgue/internal/state"
)

type Server struct {
	Store *state.Store
	// NewResponder builds the responder backing a freshly attached chat.
	NewResponder func() session.Responder
	StartedAt    time.Time

	mu       sync.Mutex
	sessions map[string]*session.Session
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/chats", s.handleChats)
	mux.HandleFunc("/api/chats/", s.handleChatItem)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
		"uptime": time.Since(s.StartedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parseInt(r.URL.Query().Get("limit"), 50)
		chats, err := s.Store.ListChats(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, chats)
	case http.MethodPost:
		var payload struct {
			Title string `json:"title"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := s.Store.CreateChat(r.Context(), payload.Title)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeMethodNotAllowed(w)
	}
}

func (s *Server) handleChatItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/chats/")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		writeError(w, http.StatusNotFound, errNotFound("chat"))
		return
	}
	chatID := segments[0]
	if err := idgen.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleChatGet(w, r, chatID)
		case http.MethodDelete:
			s.handleChatDelete(w, r, chatID)
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	switch segments[1] {
	case "rename":
		s.handleChatRename(w, r, chatID)
	case "export":
		s.handleChatExport(w, r, chatID)
	case "import":
		s.handleChatImport(w, r, chatID)
	case "ws":
		s.handleChatWS(w, r, chatID)
	default:
		writeError(w, http.StatusNotFound, errNotFound("chat action"))
	}
}

func (s *Server) handleChatGet(w http.ResponseWriter, r *http.Request, chatID string) {
	stored, err := s.Store.GetChat(r.Context(), chatID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	cards := s.chatCards(chatID, stored)
	stored.Payload = ""
	writeJSON(w, http.StatusOK, map[string]any{"chat": stored, "cards": cards})
}

// chatCards prefers the live session's transcript over the stored payload.
func (s *Server) chatCards(chatID string, stored state.Chat) []chat.Card {
	s.mu.Lock()
	live := s.sessions[chatID]
	s.mu.Unlock()
	if live != nil {
		return live.Cards()
	}
	if stored.Payload == "" {
		return nil
	}
	return chat.ParseExport([]byte(stored.Payload)).Cards
}

func (s *Server) handleChatDelete(w http.ResponseWriter, r *http.Request, chatID string) {
	if err := s.Store.DeleteChat(r.Context(), chatID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.mu.Lock()
	delete(s.sessions, chatID)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleChatRename(w http.ResponseWriter, r *http.Request, chatID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var payload struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Title) == "" {
		writeError(w, http.StatusBadRequest, errors.New("title is required"))
		return
	}
	if err := s.Store.RenameChat(r.Context(), chatID, payload.Title); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleChatExport(w http.ResponseWriter, r *http.Request, chatID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sess, err := s.sessionFor(r, chatID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(sess.Export())
}

func (s *Server) handleChatImport(w http.ResponseWriter, r *http.Request, chatID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.sessionFor(r, chatID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	sess.Import(body)
	if err := s.persist(r, chatID, sess); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "cards": len(sess.Cards())})
}

// sessionFor returns the live session for a chat, attaching one (and
// restoring its stored transcript) on first use.
func (s *Server) sessionFor(r *http.Request, chatID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[chatID]; ok {
		return sess, nil
	}
	stored, err := s.Store.GetChat(r.Context(), chatID)
	if err != nil {
		return nil, err
	}
	sess := session.New(s.NewResponder())
	if stored.Payload != "" {
		sess.Import([]byte(stored.Payload))
	}
	if s.sessions == nil {
		s.sessions = make(map[string]*session.Session)
	}
	s.sessions[chatID] = sess
	return sess, nil
}

func (s *Server) persist(r *http.Request, chatID string, sess *session.Session) error {
	return s.Store.SaveTranscript(r.Context(), chatID, sess.Export())
}

func statusFor(err error) int {
	if errors.Is(err, state.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func decodeJSON(body io.Reader, dest any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

type notFoundError struct {
	msg string
}

func (e notFoundError) Error() string { return e.msg }

func errNotFound(target string) error {
	return notFoundError{msg: target + " not found"}
}
