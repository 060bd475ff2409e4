package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultLogLines = 100

type DeployServiceConfig struct {
	Orchestrator ports.Orchestrator
	BotAPI       ports.BotAPI
	Configs      ports.BotConfigRepository
	Auth         ports.AuthProvider
	Clock        ports.Clock
	// SanitizeLog rewrites pod log lines for display.
	SanitizeLog func(string) string
}

// DeployService handles user-initiated deployment work and the automatic redeploy
// that follows a strategy save.
type DeployService struct {
	cfg    DeployServiceConfig
	logger *zap.Logger
}

var _ Redeployer = (*DeployService)(nil)

func NewDeployService(cfg DeployServiceConfig, logger *zap.Logger) *DeployService {
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}
	if cfg.SanitizeLog == nil {
		cfg.SanitizeLog = func(s string) string { return s }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeployService{cfg: cfg, logger: logger.Named("deploy")}
}

// Deploy deploys strategy with its stored configuration, creating the default paper
// trading configuration on first use.
func (s *DeployService) Deploy(ctx context.Context, strategy string) (ports.DeployResult, error) {
	if strings.TrimSpace(strategy) == "" {
		return ports.DeployResult{}, domain.ErrStrategyNameMissing
	}

	user, err := s.cfg.Auth.GetUser(ctx)
	if err != nil {
		return ports.DeployResult{}, fmt.Errorf("get user: %w", err)
	}

	configuration, err := s.EnsureConfiguration(ctx, user, strategy)
	if err != nil {
		return ports.DeployResult{}, err
	}

	return s.deploy(ctx, user, strategy, configuration)
}

// Redeploy deploys strategy again only when a configuration already references it.
func (s *DeployService) Redeploy(ctx context.Context, user domain.User, strategy string) error {
	configuration, err := s.cfg.Configs.FindByStrategy(ctx, user.ID, strategy)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Debug("no bot configured for strategy, skipping redeploy", zap.String("strategy", strategy))
			return nil
		}
		return fmt.Errorf("find bot configuration: %w", err)
	}

	result, err := s.deploy(ctx, user, strategy, configuration)
	if err != nil {
		return err
	}
	s.logger.Info("strategy redeployed", zap.String("strategy", strategy), zap.String("result", result.Result))
	return nil
}

func (s *DeployService) deploy(ctx context.Context, user domain.User, strategy string, configuration domain.BotConfiguration) (ports.DeployResult, error) {
	if err := configuration.Config.Validate(); err != nil {
		return ports.DeployResult{}, err
	}

	session, err := s.cfg.Auth.GetSession(ctx)
	if err != nil {
		return ports.DeployResult{}, fmt.Errorf("get session: %w", err)
	}

	result, err := s.cfg.Orchestrator.Deploy(ctx, ports.DeployRequest{
		Email:       user.Email,
		Strategy:    strategy,
		BotID:       configuration.ID,
		AccessToken: session.AccessToken,
		Config:      configuration.Config,
	})
	if err != nil {
		return ports.DeployResult{}, fmt.Errorf("deploy %s: %w", strategy, err)
	}
	return result, nil
}

// EnsureConfiguration returns the stored configuration for strategy or saves the
// default one.
func (s *DeployService) EnsureConfiguration(ctx context.Context, user domain.User, strategy string) (domain.BotConfiguration, error) {
	configuration, err := s.cfg.Configs.FindByStrategy(ctx, user.ID, strategy)
	if err == nil {
		return configuration, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.BotConfiguration{}, fmt.Errorf("find bot configuration: %w", err)
	}

	configuration = domain.BotConfiguration{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Name:      domain.DefaultBotConfigurationName(strategy),
		Config:    domain.DefaultBotConfig(strategy),
		IsActive:  true,
		UpdatedAt: s.cfg.Clock.Now(),
	}
	if err := s.cfg.Configs.SaveBotConfiguration(ctx, configuration); err != nil {
		return domain.BotConfiguration{}, fmt.Errorf("save default bot configuration: %w", err)
	}
	s.logger.Info("default bot configuration created", zap.String("strategy", strategy), zap.String("bot_id", configuration.ID))
	return configuration, nil
}

// SetConfig validates cfg and stores it for its strategy, keeping an existing bot id.
func (s *DeployService) SetConfig(ctx context.Context, cfg domain.BotConfig) (domain.BotConfiguration, error) {
	if err := cfg.Validate(); err != nil {
		return domain.BotConfiguration{}, err
	}

	user, err := s.cfg.Auth.GetUser(ctx)
	if err != nil {
		return domain.BotConfiguration{}, fmt.Errorf("get user: %w", err)
	}

	configuration, err := s.cfg.Configs.FindByStrategy(ctx, user.ID, cfg.Strategy)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		configuration = domain.BotConfiguration{
			ID:       uuid.NewString(),
			UserID:   user.ID,
			Name:     domain.DefaultBotConfigurationName(cfg.Strategy),
			IsActive: true,
		}
	default:
		return domain.BotConfiguration{}, fmt.Errorf("find bot configuration: %w", err)
	}

	configuration.Config = cfg
	configuration.UpdatedAt = s.cfg.Clock.Now()
	if err := s.cfg.Configs.SaveBotConfiguration(ctx, configuration); err != nil {
		return domain.BotConfiguration{}, fmt.Errorf("save bot configuration: %w", err)
	}
	return configuration, nil
}

func (s *DeployService) Config(ctx context.Context, strategy string) (domain.BotConfiguration, error) {
	user, err := s.cfg.Auth.GetUser(ctx)
	if err != nil {
		return domain.BotConfiguration{}, fmt.Errorf("get user: %w", err)
	}
	configuration, err := s.cfg.Configs.FindByStrategy(ctx, user.ID, strategy)
	if err != nil {
		return domain.BotConfiguration{}, fmt.Errorf("find bot configuration: %w", err)
	}
	return configuration, nil
}

// Control starts or stops a running bot through its REST API.
func (s *DeployService) Control(ctx context.Context, strategy string, action ports.BotControl) (ports.ControlResult, error) {
	user, err := s.cfg.Auth.GetUser(ctx)
	if err != nil {
		return ports.ControlResult{}, fmt.Errorf("get user: %w", err)
	}
	result, err := s.cfg.BotAPI.Control(ctx, strategy, user.ID, action)
	if err != nil {
		return ports.ControlResult{}, fmt.Errorf("%s bot %s: %w", action, strategy, err)
	}
	return result, nil
}

// Logs returns the last lines of the bot pod's log, sanitized for display.
func (s *DeployService) Logs(ctx context.Context, strategy string, lines int) ([]string, error) {
	if lines <= 0 {
		lines = DefaultLogLines
	}
	user, err := s.cfg.Auth.GetUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	raw, err := s.cfg.Orchestrator.PodLogs(ctx, strategy, user.ID, lines)
	if err != nil {
		return nil, fmt.Errorf("fetch pod logs: %w", err)
	}

	out := make([]string, 0, len(raw))
	for _, line := range raw {
		out = append(out, s.cfg.SanitizeLog(line))
	}
	return out, nil
}
