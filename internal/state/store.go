package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golgue/golgue/internal/idgen"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Chat is one persisted conversation. Payload holds the exported transcript
// JSON (cards plus prompt state); it is opaque to the store.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Store) CreateChat(ctx context.Context, title string) (Chat, error) {
	id := idgen.New()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO chats (id, title, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, title, "", now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	return Chat{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *Store) GetChat(ctx context.Context, id string) (Chat, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, payload, created_at, updated_at FROM chats WHERE id = ?`, id)
	var chat Chat
	var title, payload sql.NullString
	var createdAtStr, updatedAtStr string
	if err := row.Scan(&chat.ID, &title, &payload, &createdAtStr, &updatedAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Chat{}, ErrNotFound
		}
		return Chat{}, fmt.Errorf("scan chat: %w", err)
	}
	chat.Title = title.String
	chat.Payload = payload.String
	chat.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
	chat.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAtStr)
	return chat, nil
}

func (s *Store) ListChats(ctx context.Context, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, created_at, updated_at FROM chats ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var out []Chat
	for rows.Next() {
		var chat Chat
		var title sql.NullString
		var createdAtStr, updatedAtStr string
		if err := rows.Scan(&chat.ID, &title, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chat.Title = title.String
		chat.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
		chat.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAtStr)
		out = append(out, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return out, nil
}

// SaveTranscript replaces a chat's exported payload and bumps updated_at.
func (s *Store) SaveTranscript(ctx context.Context, id string, payload []byte) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx, `UPDATE chats SET payload = ?, updated_at = ? WHERE id = ?`,
		string(payload), now, id)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return requireRow(result)
}

func (s *Store) RenameChat(ctx context.Context, id, title string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx, `UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`,
		title, now, id)
	if err != nil {
		return fmt.Errorf("rename chat: %w", err)
	}
	return requireRow(result)
}

func (s *Store) DeleteChat(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
