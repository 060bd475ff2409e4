package ports

import (
	"context"

	"github.com/bnema/botsmith/internal/domain"
)

// ScriptRepository upserts on (UserID, Name): a second save replaces content in place.
type ScriptRepository interface {
	UpsertScript(ctx context.Context, script domain.TradingScript) error
	GetScript(ctx context.Context, userID, name string) (domain.TradingScript, error)
	ListScriptsByChat(ctx context.Context, userID, chatID string) ([]domain.TradingScript, error)
}

type BotConfigRepository interface {
	SaveBotConfiguration(ctx context.Context, cfg domain.BotConfiguration) error
	FindByStrategy(ctx context.Context, userID, strategy string) (domain.BotConfiguration, error)
	ListBotConfigurations(ctx context.Context, userID string) ([]domain.BotConfiguration, error)
}

type ChatHistoryRepository interface {
	SaveChat(ctx context.Context, userID string, chat domain.ChatHistory) error
	GetChat(ctx context.Context, userID, id string) (domain.ChatHistory, error)
}

// StrategyNameRepository is the client-side memory of strategy identities per session.
type StrategyNameRepository interface {
	GetStrategyName(ctx context.Context, session domain.SessionID) (domain.StrategyIdentity, error)
	SaveStrategyName(ctx context.Context, session domain.SessionID, identity domain.StrategyIdentity) error
}
