package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
	"github.com/bnema/botsmith/internal/reactive"
	"go.uber.org/zap"
)

const (
	shellBinary         = "sh"
	generatedScriptDesc = "Generated trading strategy"
	actionFailedMarker  = "action failed"
	actionAbortedMarker = "action aborted"
	actionIDSeparator   = ":"
)

// Redeployer restarts an existing deployment of strategy with its stored configuration.
type Redeployer interface {
	Redeploy(ctx context.Context, user domain.User, strategy string) error
}

type RunnerConfig struct {
	Sandbox ports.SandboxHandle
	Scripts ports.ScriptRepository
	Auth    ports.AuthProvider
	// Redeployer is optional; nil disables automatic redeploys.
	Redeployer Redeployer
	Clock      ports.Clock
	// Desanitize converts display content back to its canonical form before persisting.
	Desanitize func(string) string
	Session    func() domain.SessionID
	// ShellOutput receives the combined output of shell actions.
	ShellOutput io.Writer
	// FileWritten fires after every successful file action.
	FileWritten func(filePath, content string)
}

type actionEntry struct {
	record domain.ActionRecord
	ctx    context.Context
	cancel context.CancelFunc
}

// ActionRunner executes actions one at a time in the order they were scheduled.
// A failed action is marked failed and the next one still runs.
type ActionRunner struct {
	cfg    RunnerConfig
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*actionEntry
	order   []string
	tail    chan struct{}

	publishMu sync.Mutex
	records   *reactive.Cell[[]domain.ActionRecord]
}

func NewActionRunner(cfg RunnerConfig, logger *zap.Logger) *ActionRunner {
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}
	if cfg.Desanitize == nil {
		cfg.Desanitize = func(s string) string { return s }
	}
	if cfg.Session == nil {
		cfg.Session = func() domain.SessionID { return "" }
	}
	if cfg.ShellOutput == nil {
		cfg.ShellOutput = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ActionRunner{
		cfg:     cfg,
		logger:  logger.Named("runner"),
		entries: map[string]*actionEntry{},
		records: reactive.NewCell[[]domain.ActionRecord](nil),
	}
}

func ActionRecordID(messageID, actionID string) string {
	return messageID + actionIDSeparator + actionID
}

// AddAction registers a pending record for an opened action. Adding the same action
// twice is a no-op.
func (r *ActionRunner) AddAction(event ActionEvent) {
	id := ActionRecordID(event.MessageID, event.ActionID)

	r.mu.Lock()
	if _, ok := r.entries[id]; ok {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.entries[id] = &actionEntry{
		record: domain.ActionRecord{
			ID:         id,
			ArtifactID: event.ArtifactID,
			MessageID:  event.MessageID,
			Action:     event.Action,
			Status:     domain.ActionStatusPending,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.publish()
}

// RunAction schedules a closed action behind everything already scheduled. An action
// runs at most once; later calls for the same id are ignored.
func (r *ActionRunner) RunAction(event ActionEvent) error {
	id := ActionRecordID(event.MessageID, event.ActionID)

	r.mu.Lock()
	entry, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("run action %s: %w", id, domain.ErrActionNotFound)
	}
	if entry.record.Executed {
		r.mu.Unlock()
		return nil
	}
	entry.record.Action = event.Action
	entry.record.Executed = true

	prev := r.tail
	done := make(chan struct{})
	r.tail = done
	r.mu.Unlock()

	r.publish()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		r.execute(id, entry)
	}()

	return nil
}

// Abort cancels one action. A pending action never runs and a running shell action is
// killed; a file write already in progress completes.
func (r *ActionRunner) Abort(id string) error {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("abort action %s: %w", id, domain.ErrActionNotFound)
	}
	r.abortLocked(entry)
	r.mu.Unlock()

	r.publish()
	return nil
}

// AbortAll aborts every action that has not finished.
func (r *ActionRunner) AbortAll() {
	r.mu.Lock()
	for _, id := range r.order {
		r.abortLocked(r.entries[id])
	}
	r.mu.Unlock()

	r.publish()
}

func (r *ActionRunner) abortLocked(entry *actionEntry) {
	if entry.record.Status.Terminal() {
		return
	}
	entry.cancel()
	if entry.record.Status == domain.ActionStatusPending {
		entry.record.Status = domain.ActionStatusAborted
		entry.record.Error = actionAbortedMarker
	}
}

// Wait blocks until every action scheduled so far has finished.
func (r *ActionRunner) Wait(ctx context.Context) error {
	r.mu.Lock()
	tail := r.tail
	r.mu.Unlock()

	if tail == nil {
		return nil
	}
	select {
	case <-tail:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Actions returns the records in the order they were added.
func (r *ActionRunner) Actions() []domain.ActionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *ActionRunner) Action(id string) (domain.ActionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return domain.ActionRecord{}, false
	}
	return entry.record, true
}

// Subscribe observes every change of the record list.
func (r *ActionRunner) Subscribe(fn func([]domain.ActionRecord)) func() {
	return r.records.Subscribe(fn)
}

// Reset aborts outstanding work and forgets every record.
func (r *ActionRunner) Reset() {
	r.AbortAll()

	r.mu.Lock()
	r.entries = map[string]*actionEntry{}
	r.order = nil
	r.mu.Unlock()

	r.publish()
}

func (r *ActionRunner) execute(id string, entry *actionEntry) {
	r.mu.Lock()
	if entry.ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	entry.record.Status = domain.ActionStatusRunning
	action := entry.record.Action
	r.mu.Unlock()
	r.publish()

	logger := r.logger.With(zap.String("action", id), zap.String("type", string(action.Type)))
	logger.Debug("executing action")

	var err error
	switch action.Type {
	case domain.ActionTypeShell:
		err = r.runShell(entry.ctx, action, logger)
	case domain.ActionTypeFile:
		err = r.runFile(context.WithoutCancel(entry.ctx), action, logger)
	default:
		err = fmt.Errorf("unsupported action type %q", action.Type)
	}

	r.mu.Lock()
	switch {
	case err != nil && action.Type == domain.ActionTypeShell && entry.ctx.Err() != nil:
		entry.record.Status = domain.ActionStatusAborted
		entry.record.Error = actionAbortedMarker
	case err != nil:
		entry.record.Status = domain.ActionStatusFailed
		entry.record.Error = actionFailedMarker
		logger.Error("action failed", zap.Error(err))
	default:
		entry.record.Status = domain.ActionStatusComplete
	}
	r.mu.Unlock()
	r.publish()
}

func (r *ActionRunner) runShell(ctx context.Context, action domain.Action, logger *zap.Logger) error {
	sandbox, err := r.cfg.Sandbox.Ready(ctx)
	if err != nil {
		return fmt.Errorf("wait for sandbox: %w", err)
	}

	proc, err := sandbox.Spawn(ctx, shellBinary, "-c", action.Content)
	if err != nil {
		return fmt.Errorf("spawn shell: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		if err := proc.Kill(); err != nil {
			logger.Debug("kill shell process", zap.Error(err))
		}
	})
	defer stop()

	if _, err := io.Copy(r.cfg.ShellOutput, proc.Output()); err != nil {
		logger.Debug("copy shell output", zap.Error(err))
	}

	code, err := proc.Wait()
	if err != nil {
		return fmt.Errorf("wait for shell: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logger.Debug("process terminated", zap.Int("exit_code", code))
	return nil
}

func (r *ActionRunner) runFile(ctx context.Context, action domain.Action, logger *zap.Logger) error {
	if action.FilePath == "" {
		return errors.New("file action without path")
	}

	sandbox, err := r.cfg.Sandbox.Ready(ctx)
	if err != nil {
		return fmt.Errorf("wait for sandbox: %w", err)
	}

	if dir := path.Dir(action.FilePath); dir != "." && dir != "/" {
		if err := sandbox.MkdirAll(ctx, dir); err != nil {
			logger.Debug("create folder", zap.String("dir", dir), zap.Error(err))
		}
	}

	if err := sandbox.WriteFile(ctx, action.FilePath, action.Content); err != nil {
		return fmt.Errorf("write file %s: %w", action.FilePath, err)
	}
	logger.Debug("file written", zap.String("path", action.FilePath))

	if r.cfg.FileWritten != nil {
		r.cfg.FileWritten(action.FilePath, action.Content)
	}

	if domain.IsStrategyPath(action.FilePath) {
		r.persistStrategy(ctx, action, logger)
	}
	return nil
}

// persistStrategy saves strategy source for the signed-in user and redeploys a bot
// already configured for it. Failures are logged and never fail the action.
func (r *ActionRunner) persistStrategy(ctx context.Context, action domain.Action, logger *zap.Logger) {
	if r.cfg.Scripts == nil || r.cfg.Auth == nil {
		return
	}

	user, err := r.cfg.Auth.GetUser(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			logger.Debug("not signed in, strategy not persisted")
		} else {
			logger.Warn("get user", zap.Error(err))
		}
		return
	}

	name := domain.StrategyNameFromPath(action.FilePath)
	script := domain.TradingScript{
		UserID:      user.ID,
		Name:        name,
		Content:     r.cfg.Desanitize(action.Content),
		Description: generatedScriptDesc,
		ChatID:      string(r.cfg.Session()),
		UpdatedAt:   r.cfg.Clock.Now(),
	}
	if err := r.cfg.Scripts.UpsertScript(ctx, script); err != nil {
		logger.Error("save trading script", zap.String("strategy", name), zap.Error(err))
		return
	}
	logger.Info("trading script saved", zap.String("strategy", name))

	if r.cfg.Redeployer == nil {
		return
	}
	if err := r.cfg.Redeployer.Redeploy(ctx, user, name); err != nil {
		logger.Warn("auto redeploy", zap.String("strategy", name), zap.Error(err))
	}
}

func (r *ActionRunner) publish() {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	r.mu.Lock()
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.records.Set(snapshot)
}

func (r *ActionRunner) snapshotLocked() []domain.ActionRecord {
	out := make([]domain.ActionRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].record)
	}
	return out
}
