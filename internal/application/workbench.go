package application

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/reactive"
	"go.uber.org/zap"
)

type WorkbenchConfig struct {
	Session *SessionContext
	Namer   *StrategyNamer
	Runner  RunnerConfig
	// Sanitize rewrites persisted content for display when loading it back.
	Sanitize func(string) string
	// ArtifactElement overrides the placeholder emitted for each artifact.
	ArtifactElement func(messageID string) string
}

// Workbench ties the streaming parser to the action runner for one open conversation
// and tracks the files the runner wrote.
type Workbench struct {
	cfg    WorkbenchConfig
	logger *zap.Logger
	parser *Parser
	runner *ActionRunner

	mu        sync.Mutex
	artifacts []domain.Artifact

	files    *reactive.Cell[map[string]string]
	selected *reactive.Cell[string]
	preview  *reactive.Cell[string]
}

func NewWorkbench(cfg WorkbenchConfig, logger *zap.Logger) *Workbench {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Session == nil {
		cfg.Session = NewSessionContext("")
	}
	if cfg.Namer == nil {
		cfg.Namer = NewStrategyNamer(nil, cfg.Runner.Clock, logger)
	}
	if cfg.Sanitize == nil {
		cfg.Sanitize = func(s string) string { return s }
	}

	w := &Workbench{
		cfg:      cfg,
		logger:   logger.Named("workbench"),
		files:    reactive.NewCell(map[string]string{}),
		selected: reactive.NewCell(""),
		preview:  reactive.NewCell(""),
	}

	runnerCfg := cfg.Runner
	runnerCfg.Session = cfg.Session.Session
	fileWritten := runnerCfg.FileWritten
	runnerCfg.FileWritten = func(filePath, content string) {
		w.recordFile(filePath, content)
		if fileWritten != nil {
			fileWritten(filePath, content)
		}
	}
	w.runner = NewActionRunner(runnerCfg, logger)

	w.parser = NewParser(cfg.Namer, ParserOptions{
		Session:         cfg.Session.Session,
		ArtifactElement: cfg.ArtifactElement,
		Callbacks: ParserCallbacks{
			OnArtifactOpen: func(event ArtifactEvent) {
				w.mu.Lock()
				w.artifacts = append(w.artifacts, event.Artifact)
				w.mu.Unlock()
			},
			OnActionOpen: w.runner.AddAction,
			OnActionClose: func(event ActionEvent) {
				if err := w.runner.RunAction(event); err != nil {
					w.logger.Warn("schedule action", zap.Error(err))
				}
			},
			OnCodeStream: func(content, filePath string) {
				if filePath != "" {
					w.selected.Set(filePath)
				}
				w.preview.Set(content)
			},
		},
	}, logger)

	return w
}

func (w *Workbench) Session() *SessionContext {
	return w.cfg.Session
}

func (w *Workbench) Runner() *ActionRunner {
	return w.runner
}

// Stream feeds one chunk of an assistant reply and returns the prose it released.
func (w *Workbench) Stream(ctx context.Context, messageID, chunk string) string {
	return w.parser.Feed(ctx, messageID, chunk)
}

// FinishMessage ends a reply stream and waits for its actions to run.
func (w *Workbench) FinishMessage(ctx context.Context, messageID string) error {
	w.parser.Discard(messageID)
	return w.runner.Wait(ctx)
}

func (w *Workbench) Artifacts() []domain.Artifact {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Artifact(nil), w.artifacts...)
}

func (w *Workbench) Files() map[string]string {
	return maps.Clone(w.files.Get())
}

func (w *Workbench) SelectedFile() string {
	return w.selected.Get()
}

func (w *Workbench) SubscribeFiles(fn func(map[string]string)) func() {
	return w.files.Subscribe(fn)
}

// Strategy returns the identity bound to the open conversation, if any.
func (w *Workbench) Strategy() (domain.StrategyIdentity, bool) {
	return w.cfg.Namer.Remembered(w.cfg.Session.Session())
}

// LoadStrategyFiles writes every strategy persisted for the open conversation into the
// sandbox and binds the conversation to the first one found.
func (w *Workbench) LoadStrategyFiles(ctx context.Context) ([]string, error) {
	scripts, auth := w.cfg.Runner.Scripts, w.cfg.Runner.Auth
	if scripts == nil || auth == nil {
		return nil, nil
	}

	user, err := auth.GetUser(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	session := w.cfg.Session.Session()
	stored, err := scripts.ListScriptsByChat(ctx, user.ID, string(session))
	if err != nil {
		return nil, fmt.Errorf("list strategy files: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil
	}

	sandbox, err := w.cfg.Runner.Sandbox.Ready(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for sandbox: %w", err)
	}

	loaded := make([]string, 0, len(stored))
	for _, script := range stored {
		filePath := script.Name + domain.StrategyFileExt
		content := w.cfg.Sanitize(script.Content)
		if err := sandbox.WriteFile(ctx, filePath, content); err != nil {
			return loaded, fmt.Errorf("write %s: %w", filePath, err)
		}
		w.recordFile(filePath, content)
		loaded = append(loaded, filePath)
	}

	if first := stored[0].Name; first != "" {
		identity := w.cfg.Namer.Remember(ctx, session, domain.StrategyIdentity{
			FileName:  first + domain.StrategyFileExt,
			ClassName: strings.ToUpper(first[:1]) + first[1:],
		})
		w.selected.Set(identity.FileName)
	}

	w.logger.Info("strategy files loaded", zap.Int("count", len(loaded)), zap.String("session", string(session)))
	return loaded, nil
}

// Reset aborts outstanding actions and forgets everything about the conversation.
func (w *Workbench) Reset() {
	w.runner.Reset()
	w.parser.Reset()

	w.mu.Lock()
	w.artifacts = nil
	w.mu.Unlock()

	w.files.Set(map[string]string{})
	w.selected.Set("")
	w.preview.Set("")
}

func (w *Workbench) recordFile(filePath, content string) {
	w.files.Update(func(prev map[string]string) map[string]string {
		next := maps.Clone(prev)
		next[filePath] = content
		return next
	})
	w.selected.Set(filePath)
}
