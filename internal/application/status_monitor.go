package application

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
	"github.com/bnema/botsmith/internal/reactive"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPollInterval = 10 * time.Second
	monitorEventBuffer  = 32
	statusBoardParallel = 4
)

// EventSubscriber is the part of ChannelManager a StatusMonitor depends on.
type EventSubscriber interface {
	Subscribe(ctx context.Context, opts SubscribeOptions) bool
	Unsubscribe(strategy, subscriberID string)
}

type StatusMonitorConfig struct {
	Strategy     string
	UserID       string
	Orchestrator ports.Orchestrator
	BotAPI       ports.BotAPI
	// Events is optional; without it only polling updates the status.
	Events              EventSubscriber
	Clock               ports.Clock
	PollInterval        time.Duration
	HeartbeatInterval   time.Duration
	ThresholdMultiplier float64
}

// StatusMonitor reconciles the pod poll, the bot heartbeat and live events into a
// single status for one (strategy, user) pair.
type StatusMonitor struct {
	cfg    StatusMonitorConfig
	logger *zap.Logger
	status *reactive.Cell[domain.BotStatus]
	trades singleflight.Group
}

func NewStatusMonitor(cfg StatusMonitorConfig, logger *zap.Logger) *StatusMonitor {
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StatusMonitor{
		cfg:    cfg,
		logger: logger.Named("status").With(zap.String("strategy", cfg.Strategy)),
		status: reactive.NewCell(domain.UnknownBotStatus()),
	}
}

func (m *StatusMonitor) Strategy() string {
	return m.cfg.Strategy
}

func (m *StatusMonitor) Status() domain.BotStatus {
	return m.status.Get()
}

func (m *StatusMonitor) Subscribe(fn func(domain.BotStatus)) func() {
	return m.status.Subscribe(fn)
}

// Refresh runs one poll cycle. A failed pod poll records the error state and is
// returned; heartbeat and trade failures keep the previous values.
func (m *StatusMonitor) Refresh(ctx context.Context) error {
	pod, err := m.cfg.Orchestrator.PodStatus(ctx, m.cfg.Strategy, m.cfg.UserID)
	if err != nil {
		m.status.Update(func(prev domain.BotStatus) domain.BotStatus {
			prev.Status = domain.BotStateError
			prev.Running = false
			return prev
		})
		m.logger.Debug("pod status poll failed", zap.Error(err))
		return fmt.Errorf("poll pod status: %w", err)
	}

	// The heartbeat is read whatever the phase: a fresh one overrides it.
	var health *domain.Health
	h, err := m.cfg.BotAPI.Health(ctx, m.cfg.Strategy, m.cfg.UserID)
	if err != nil {
		m.logger.Debug("health check failed", zap.Error(err))
	} else {
		health = &h
	}

	trades, tradesOK := 0, false
	if pod.Ready {
		count, err := m.fetchTrades(ctx)
		if err != nil {
			m.logger.Debug("open trades fetch failed", zap.Error(err))
		} else {
			trades, tradesOK = count, true
		}
	}

	state, running := domain.DeriveBotStatus(domain.StatusInput{
		Pod:                 pod,
		Health:              health,
		Now:                 m.cfg.Clock.Now(),
		HeartbeatInterval:   m.cfg.HeartbeatInterval,
		ThresholdMultiplier: m.cfg.ThresholdMultiplier,
	})

	next := m.status.Update(func(prev domain.BotStatus) domain.BotStatus {
		next := prev
		next.Ready = pod.Ready
		next.Phase = pod.Phase
		next.Reason = pod.Reason

		// An unreadable heartbeat on a ready pod keeps the last known state.
		keepPrevious := health == nil && state == domain.BotStateUnknown && prev.Status != domain.BotStateError
		if !keepPrevious {
			next.Status = state
			next.Running = running
		}

		switch {
		case tradesOK:
			next.OpenTradesCount = trades
		case pod.Phase != domain.PhaseRunning:
			next.OpenTradesCount = 0
		}
		return next
	})

	m.logger.Debug("status refreshed",
		zap.String("status", string(next.Status)),
		zap.Bool("running", next.Running),
		zap.String("phase", next.Phase),
	)
	return nil
}

// HandleEvent applies a live event: status events set the status directly and trade
// events trigger an immediate trade count refetch.
func (m *StatusMonitor) HandleEvent(ctx context.Context, event domain.BotEvent) {
	if raw, ok := event.StatusValue(); ok {
		state := domain.ParseBotState(raw)
		m.status.Update(func(prev domain.BotStatus) domain.BotStatus {
			prev.Status = state
			prev.Running = state == domain.BotStateRunning
			return prev
		})
		return
	}

	if !event.Type.AffectsTrades() {
		return
	}

	count, err := m.fetchTrades(ctx)
	if err != nil {
		m.logger.Debug("open trades refetch failed", zap.Error(err))
		return
	}
	m.status.Update(func(prev domain.BotStatus) domain.BotStatus {
		prev.OpenTradesCount = count
		return prev
	})
}

func (m *StatusMonitor) fetchTrades(ctx context.Context) (int, error) {
	v, err, _ := m.trades.Do("trades", func() (interface{}, error) {
		return m.cfg.BotAPI.OpenTrades(ctx, m.cfg.Strategy, m.cfg.UserID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Run refreshes immediately, then on every poll tick and live event until ctx ends.
func (m *StatusMonitor) Run(ctx context.Context) error {
	events := make(chan domain.BotEvent, monitorEventBuffer)

	if m.cfg.Events != nil {
		subscriberID := "status-" + uuid.NewString()
		ok := m.cfg.Events.Subscribe(ctx, SubscribeOptions{
			Strategy:     m.cfg.Strategy,
			UserID:       m.cfg.UserID,
			SubscriberID: subscriberID,
			EventTypes:   append([]domain.EventType{domain.EventStatus}, domain.TradeEventTypes...),
			OnEvent: func(event domain.BotEvent) {
				select {
				case events <- event:
				default:
					m.logger.Debug("event dropped, monitor busy", zap.String("type", string(event.Type)))
				}
			},
		})
		if ok {
			defer m.cfg.Events.Unsubscribe(m.cfg.Strategy, subscriberID)
		}
	}

	_ = m.Refresh(ctx)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = m.Refresh(ctx)
		case event := <-events:
			m.HandleEvent(ctx, event)
		}
	}
}

// StatusBoard refreshes several monitors concurrently.
type StatusBoard struct {
	monitors []*StatusMonitor
	logger   *zap.Logger
}

func NewStatusBoard(monitors []*StatusMonitor, logger *zap.Logger) *StatusBoard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusBoard{monitors: monitors, logger: logger.Named("status")}
}

func (b *StatusBoard) Monitors() []*StatusMonitor {
	return b.monitors
}

// Refresh polls every monitor once. Poll failures surface as the error status of the
// affected monitor rather than as an error.
func (b *StatusBoard) Refresh(ctx context.Context) ([]domain.BotStatus, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusBoardParallel)

	for _, monitor := range b.monitors {
		monitor := monitor
		g.Go(func() error {
			if err := monitor.Refresh(gctx); err != nil {
				b.logger.Warn("refresh bot status", zap.String("strategy", monitor.Strategy()), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	statuses := make([]domain.BotStatus, 0, len(b.monitors))
	for _, monitor := range b.monitors {
		statuses = append(statuses, monitor.Status())
	}
	return statuses, nil
}

// Watch runs every monitor until ctx ends.
func (b *StatusBoard) Watch(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, monitor := range b.monitors {
		monitor := monitor
		g.Go(func() error {
			return monitor.Run(gctx)
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
