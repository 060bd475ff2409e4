package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bnema/botsmith/internal/domain"
)

func (s *Store) SaveBotConfiguration(ctx context.Context, cfg domain.BotConfiguration) error {
	if cfg.ID == "" || cfg.UserID == "" {
		return errors.New("bot configuration id and user id are required")
	}

	encoded, err := json.Marshal(cfg.Config)
	if err != nil {
		return fmt.Errorf("encode bot configuration %q: %w", cfg.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bot_configurations (id, user_id, name, strategy, config_json, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			strategy = excluded.strategy,
			config_json = excluded.config_json,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		cfg.ID, cfg.UserID, cfg.Name, cfg.Config.Strategy, string(encoded), cfg.IsActive, formatTime(cfg.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save bot configuration %q: %w", cfg.ID, err)
	}
	return nil
}

// FindByStrategy returns the most recently updated configuration deploying strategy.
func (s *Store) FindByStrategy(ctx context.Context, userID, strategy string) (domain.BotConfiguration, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, config_json, is_active, updated_at
		FROM bot_configurations WHERE user_id = ? AND strategy = ?
		ORDER BY updated_at DESC LIMIT 1`, userID, strategy)

	cfg, err := scanBotConfiguration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BotConfiguration{}, fmt.Errorf("bot configuration for %q: %w", strategy, domain.ErrNotFound)
	}
	if err != nil {
		return domain.BotConfiguration{}, fmt.Errorf("find bot configuration for %q: %w", strategy, err)
	}
	return cfg, nil
}

func (s *Store) ListBotConfigurations(ctx context.Context, userID string) ([]domain.BotConfiguration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, config_json, is_active, updated_at
		FROM bot_configurations WHERE user_id = ?
		ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list bot configurations: %w", err)
	}
	defer rows.Close()

	var configs []domain.BotConfiguration
	for rows.Next() {
		cfg, err := scanBotConfiguration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bot configuration: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bot configurations: %w", err)
	}
	return configs, nil
}

func scanBotConfiguration(row rowScanner) (domain.BotConfiguration, error) {
	var (
		cfg        domain.BotConfiguration
		configJSON string
		updatedAt  string
	)
	if err := row.Scan(&cfg.ID, &cfg.UserID, &cfg.Name, &configJSON, &cfg.IsActive, &updatedAt); err != nil {
		return domain.BotConfiguration{}, err
	}
	if err := json.Unmarshal([]byte(configJSON), &cfg.Config); err != nil {
		return domain.BotConfiguration{}, fmt.Errorf("decode bot configuration %q: %w", cfg.ID, err)
	}
	cfg.UpdatedAt = parseTime(updatedAt)
	return cfg, nil
}
