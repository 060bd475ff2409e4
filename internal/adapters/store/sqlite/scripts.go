package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bnema/botsmith/internal/domain"
)

func (s *Store) UpsertScript(ctx context.Context, script domain.TradingScript) error {
	if script.UserID == "" || script.Name == "" {
		return errors.New("script user id and name are required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scripts (user_id, name, content, description, chat_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET
			content = excluded.content,
			description = excluded.description,
			chat_id = excluded.chat_id,
			updated_at = excluded.updated_at`,
		script.UserID, script.Name, script.Content, script.Description, script.ChatID, formatTime(script.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert script %q: %w", script.Name, err)
	}
	return nil
}

func (s *Store) GetScript(ctx context.Context, userID, name string) (domain.TradingScript, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, name, content, description, chat_id, updated_at
		FROM scripts WHERE user_id = ? AND name = ?`, userID, name)

	script, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TradingScript{}, fmt.Errorf("script %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return domain.TradingScript{}, fmt.Errorf("get script %q: %w", name, err)
	}
	return script, nil
}

func (s *Store) ListScriptsByChat(ctx context.Context, userID, chatID string) ([]domain.TradingScript, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, name, content, description, chat_id, updated_at
		FROM scripts WHERE user_id = ? AND chat_id = ?
		ORDER BY updated_at, name`, userID, chatID)
	if err != nil {
		return nil, fmt.Errorf("list scripts for chat %q: %w", chatID, err)
	}
	defer rows.Close()

	var scripts []domain.TradingScript
	for rows.Next() {
		script, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		scripts = append(scripts, script)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scripts for chat %q: %w", chatID, err)
	}
	return scripts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScript(row rowScanner) (domain.TradingScript, error) {
	var (
		script    domain.TradingScript
		updatedAt string
	)
	if err := row.Scan(&script.UserID, &script.Name, &script.Content, &script.Description, &script.ChatID, &updatedAt); err != nil {
		return domain.TradingScript{}, err
	}
	script.UpdatedAt = parseTime(updatedAt)
	return script, nil
}
