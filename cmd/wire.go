package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bnema/botsmith/internal/adapters/auth"
	"github.com/bnema/botsmith/internal/adapters/credentials/chain"
	credfile "github.com/bnema/botsmith/internal/adapters/credentials/file"
	"github.com/bnema/botsmith/internal/adapters/credentials/pass"
	"github.com/bnema/botsmith/internal/adapters/events/ws"
	"github.com/bnema/botsmith/internal/adapters/orchestrator/httpapi"
	statusadapter "github.com/bnema/botsmith/internal/adapters/render/status"
	tomlrepo "github.com/bnema/botsmith/internal/adapters/repo/toml"
	"github.com/bnema/botsmith/internal/adapters/sandbox/local"
	"github.com/bnema/botsmith/internal/adapters/sanitize"
	"github.com/bnema/botsmith/internal/adapters/store/sqlite"
	"github.com/bnema/botsmith/internal/application"
	"github.com/bnema/botsmith/internal/config"
	"github.com/bnema/botsmith/internal/logging"
	"github.com/bnema/botsmith/internal/ports"
)

const requestTimeout = 30 * time.Second

type globalOptions struct {
	verbose  bool
	jsonLogs bool
	profile  string
}

// app holds every wired dependency. It is populated by wire before a command runs.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	opts   globalOptions

	credentials ports.CredentialStore
	auth        *auth.CredentialProvider
	store       *sqlite.Store
	names       *tomlrepo.Repository
	workspace   *local.Workspace

	orchestrator *httpapi.Orchestrator
	botAPI       *httpapi.BotAPI
	dialer       *ws.Dialer

	authService *application.AuthService
	deploy      *application.DeployService

	statusRenderer func([]application.StatusRow, statusadapter.RenderOptions) (string, error)
	httpClient     *http.Client
	clock          ports.Clock
	now            func() time.Time
	wired          bool
}

func newApp() *app {
	return &app{
		statusRenderer: statusadapter.Render,
		httpClient:     http.DefaultClient,
		clock:          ports.SystemClock{},
		now:            time.Now,
	}
}

func (a *app) wire(ctx context.Context, logOutput io.Writer) error {
	if a.wired {
		return nil
	}

	cfg, err := config.Load(viper.New())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{Verbose: a.opts.verbose, JSON: a.opts.jsonLogs, Output: logOutput})
	if err != nil {
		return err
	}
	a.logger = logger

	credentials, err := newCredentialStore(cfg)
	if err != nil {
		return fmt.Errorf("wire credential store: %w", err)
	}
	a.credentials = credentials
	a.auth = auth.NewCredentialProvider(credentials, a.clock, a.opts.profile)

	store, err := sqlite.Open(ctx, cfg.StorePath)
	if err != nil {
		return fmt.Errorf("wire store: %w", err)
	}
	a.store = store

	names, err := tomlrepo.NewRepository(cfg.NamesPath)
	if err != nil {
		return errors.Join(fmt.Errorf("wire strategy names: %w", err), store.Close())
	}
	a.names = names

	workspace, err := local.NewWorkspace(cfg.WorkspaceDir)
	if err != nil {
		return errors.Join(fmt.Errorf("wire workspace: %w", err), store.Close())
	}
	a.workspace = workspace

	a.orchestrator = httpapi.NewOrchestrator(cfg.APIBaseURL, a.httpClient, requestTimeout)
	a.botAPI = httpapi.NewBotAPI(cfg.BotAPIBaseURL, cfg.BotAPIUser, a.httpClient, requestTimeout)
	a.dialer = ws.NewDialer(cfg.EventsBaseURL, websocket.DefaultDialer)

	a.authService = application.NewAuthService(credentials, a.clock)
	a.deploy = application.NewDeployService(application.DeployServiceConfig{
		Orchestrator: a.orchestrator,
		BotAPI:       a.botAPI,
		Configs:      store,
		Auth:         a.auth,
		Clock:        a.clock,
		SanitizeLog:  sanitize.Content,
	}, logger)

	a.wired = true
	logger.Debug("wired",
		zap.String("store", cfg.StorePath),
		zap.String("workspace", cfg.WorkspaceDir),
		zap.String("credentials", cfg.CredentialsBackend),
	)
	return nil
}

func (a *app) close() error {
	if !a.wired {
		return nil
	}
	a.wired = false
	_ = a.logger.Sync()
	return a.store.Close()
}

func newCredentialStore(cfg config.Config) (ports.CredentialStore, error) {
	switch cfg.CredentialsBackend {
	case config.CredentialsBackendFile:
		return credfile.NewStore(cfg.CredentialsDir), nil
	case config.CredentialsBackendPass:
		return pass.NewStore(), nil
	default:
		return chain.NewPassFirstWithFileFallback(cfg.CredentialsDir)
	}
}

// newWorkbench builds a workbench for one conversation, writing shell output to shellOutput.
func (a *app) newWorkbench(chatID string, shellOutput io.Writer) *application.Workbench {
	return application.NewWorkbench(application.WorkbenchConfig{
		Session: application.NewSessionContext(chatID),
		Namer:   application.NewStrategyNamer(a.names, a.clock, a.logger),
		Runner: application.RunnerConfig{
			Sandbox:     a.workspace,
			Scripts:     a.store,
			Auth:        a.auth,
			Redeployer:  a.deploy,
			Clock:       a.clock,
			Desanitize:  sanitize.Desanitize,
			ShellOutput: shellOutput,
		},
		Sanitize: sanitize.Content,
	}, a.logger)
}

func (a *app) newChannelManager() *application.ChannelManager {
	return application.NewChannelManager(application.ChannelManagerConfig{
		Dialer:               a.dialer,
		MaxReconnectAttempts: a.cfg.MaxReconnectAttempts,
		BackoffBase:          a.cfg.BackoffBase,
		BackoffMax:           a.cfg.BackoffMax,
	}, a.logger)
}
