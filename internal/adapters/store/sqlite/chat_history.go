package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bnema/botsmith/internal/domain"
)

func (s *Store) SaveChat(ctx context.Context, userID string, chat domain.ChatHistory) error {
	if userID == "" || chat.ID == "" {
		return errors.New("chat user id and id are required")
	}

	messages := chat.Messages
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	encoded, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode chat %q: %w", chat.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_history (user_id, id, url_id, description, messages_json, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			url_id = excluded.url_id,
			description = excluded.description,
			messages_json = excluded.messages_json,
			timestamp = excluded.timestamp`,
		userID, chat.ID, chat.URLID, chat.Description, string(encoded), formatTime(chat.Timestamp))
	if err != nil {
		return fmt.Errorf("save chat %q: %w", chat.ID, err)
	}
	return nil
}

func (s *Store) GetChat(ctx context.Context, userID, id string) (domain.ChatHistory, error) {
	var (
		chat         domain.ChatHistory
		messagesJSON string
		timestamp    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, url_id, description, messages_json, timestamp
		FROM chat_history WHERE user_id = ? AND (id = ? OR url_id = ?)
		LIMIT 1`, userID, id, id).
		Scan(&chat.ID, &chat.URLID, &chat.Description, &messagesJSON, &timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChatHistory{}, fmt.Errorf("chat %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ChatHistory{}, fmt.Errorf("get chat %q: %w", id, err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &chat.Messages); err != nil {
		return domain.ChatHistory{}, fmt.Errorf("decode chat %q: %w", id, err)
	}
	chat.Timestamp = parseTime(timestamp)
	return chat, nil
}
