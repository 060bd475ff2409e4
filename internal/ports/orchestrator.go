package ports

import (
	"context"

	"github.com/bnema/botsmith/internal/domain"
)

type DeployRequest struct {
	Email       string
	Strategy    string
	BotID       string
	AccessToken string
	Config      domain.BotConfig
}

type DeployResult struct {
	Result string
}

// Orchestrator is the deployment backend that schedules bots.
type Orchestrator interface {
	PodStatus(ctx context.Context, botName, userID string) (domain.PodStatus, error)
	PodLogs(ctx context.Context, botName, userID string, lines int) ([]string, error)
	Deploy(ctx context.Context, req DeployRequest) (DeployResult, error)
}

type BotControl string

const (
	BotControlStart BotControl = "start"
	BotControlStop  BotControl = "stop"
)

type ControlResult struct {
	Status  string
	Message string
	Running *bool
}

// BotAPI is the REST surface exposed by each running bot.
type BotAPI interface {
	Health(ctx context.Context, strategy, userID string) (domain.Health, error)
	OpenTrades(ctx context.Context, strategy, userID string) (int, error)
	Control(ctx context.Context, strategy, userID string, action BotControl) (ControlResult, error)
}
