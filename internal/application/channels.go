package application

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
	"go.uber.org/zap"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultBackoffBase          = time.Second
	DefaultBackoffMax           = 30 * time.Second
)

type SubscribeOptions struct {
	Strategy     string
	UserID       string
	SubscriberID string
	// EventTypes filters what OnEvent receives; empty means every event.
	EventTypes []domain.EventType
	OnEvent    func(domain.BotEvent)
}

type ChannelManagerConfig struct {
	Dialer               ports.EventDialer
	MaxReconnectAttempts int
	BackoffBase          time.Duration
	BackoffMax           time.Duration
}

type ChannelStats struct {
	Connections int
	Connected   int
	Subscribers int
}

type channelSubscriber struct {
	types   []domain.EventType
	onEvent func(domain.BotEvent)
}

type channel struct {
	strategy    string
	userID      string
	subscribers map[string]channelSubscriber
	conn        ports.EventConn
	connected   bool
	connecting  bool
	attempts    int
	err         error
	cancel      context.CancelFunc
	done        chan struct{}
}

// ChannelManager shares one event connection per strategy between any number of
// subscribers. The connection opens with the first subscriber, reconnects with
// exponential backoff and closes as soon as the last subscriber leaves.
type ChannelManager struct {
	cfg    ChannelManagerConfig
	logger *zap.Logger
	ctx    context.Context
	stop   context.CancelFunc

	mu       sync.Mutex
	channels map[string]*channel
	wg       sync.WaitGroup
}

func NewChannelManager(cfg ChannelManagerConfig, logger *zap.Logger) *ChannelManager {
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, stop := context.WithCancel(context.Background())
	return &ChannelManager{
		cfg:      cfg,
		logger:   logger.Named("channels"),
		ctx:      ctx,
		stop:     stop,
		channels: map[string]*channel{},
	}
}

// Subscribe registers a subscriber for opts.Strategy and opens the shared connection
// if needed. It reports false when the options are incomplete or the manager is closed.
func (m *ChannelManager) Subscribe(ctx context.Context, opts SubscribeOptions) bool {
	if opts.Strategy == "" || opts.SubscriberID == "" || opts.OnEvent == nil {
		m.logger.Warn("subscribe rejected: strategy, subscriber id and callback are required")
		return false
	}
	if ctx.Err() != nil || m.ctx.Err() != nil {
		return false
	}

	m.mu.Lock()
	ch, ok := m.channels[opts.Strategy]
	if !ok {
		ch = &channel{
			strategy:    opts.Strategy,
			userID:      opts.UserID,
			subscribers: map[string]channelSubscriber{},
		}
		m.channels[opts.Strategy] = ch
	}
	ch.subscribers[opts.SubscriberID] = channelSubscriber{
		types:   slices.Clone(opts.EventTypes),
		onEvent: opts.OnEvent,
	}

	if ch.done == nil || ch.err != nil {
		m.startLocked(ch)
	}

	conn, connected := ch.conn, ch.connected
	types := unionEventTypes(ch)
	m.mu.Unlock()

	if connected && conn != nil {
		if err := conn.Subscribe(ctx, domain.NewSubscribeMessage(types)); err != nil {
			m.logger.Debug("resend subscription", zap.String("strategy", opts.Strategy), zap.Error(err))
		}
	}

	m.logger.Debug("subscribed", zap.String("strategy", opts.Strategy), zap.String("subscriber", opts.SubscriberID))
	return true
}

// Unsubscribe removes a subscriber and tears the connection down when none are left.
func (m *ChannelManager) Unsubscribe(strategy, subscriberID string) {
	m.mu.Lock()
	ch, ok := m.channels[strategy]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(ch.subscribers, subscriberID)
	if len(ch.subscribers) > 0 {
		m.mu.Unlock()
		return
	}

	delete(m.channels, strategy)
	conn := ch.conn
	if ch.cancel != nil {
		ch.cancel()
	}
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.logger.Debug("connection closed, no subscribers left", zap.String("strategy", strategy))
}

func (m *ChannelManager) IsConnected(strategy string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[strategy]
	return ok && ch.connected
}

// Err returns the terminal error of a strategy's connection, if any.
func (m *ChannelManager) Err(strategy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[strategy]; ok {
		return ch.err
	}
	return nil
}

func (m *ChannelManager) Stats() ChannelStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats ChannelStats
	for _, ch := range m.channels {
		stats.Connections++
		stats.Subscribers += len(ch.subscribers)
		if ch.connected {
			stats.Connected++
		}
	}
	return stats
}

// Close drops every subscriber and waits for all connections to shut down.
func (m *ChannelManager) Close() error {
	m.stop()

	m.mu.Lock()
	var conns []ports.EventConn
	for key, ch := range m.channels {
		if ch.conn != nil {
			conns = append(conns, ch.conn)
		}
		delete(m.channels, key)
	}
	m.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.wg.Wait()
	return errors.Join(errs...)
}

func (m *ChannelManager) startLocked(ch *channel) {
	ctx, cancel := context.WithCancel(m.ctx)
	ch.cancel = cancel
	ch.done = make(chan struct{})
	ch.err = nil
	ch.attempts = 0
	ch.connecting = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(ch.done)
		m.run(ctx, ch)
	}()
}

func (m *ChannelManager) run(ctx context.Context, ch *channel) {
	logger := m.logger.With(zap.String("strategy", ch.strategy))

	for {
		conn, err := m.cfg.Dialer.Dial(ctx, ch.strategy, ch.userID)
		if err == nil {
			m.serve(ctx, ch, conn, logger)
		} else {
			logger.Debug("dial event stream", zap.Error(err))
		}

		if ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		if ch.attempts >= m.cfg.MaxReconnectAttempts {
			ch.err = domain.ErrReconnectExhausted
			ch.connecting = false
			m.mu.Unlock()
			logger.Warn("giving up on event stream", zap.Int("attempts", ch.attempts))
			return
		}
		delay := backoffDelay(m.cfg.BackoffBase, m.cfg.BackoffMax, ch.attempts)
		ch.attempts++
		ch.connecting = true
		attempt := ch.attempts
		m.mu.Unlock()

		logger.Debug("reconnecting", zap.Int("attempt", attempt), zap.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *ChannelManager) serve(ctx context.Context, ch *channel, conn ports.EventConn, logger *zap.Logger) {
	defer conn.Close()

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	ch.conn = conn
	ch.connected = true
	ch.connecting = false
	ch.attempts = 0
	types := unionEventTypes(ch)
	m.mu.Unlock()

	logger.Debug("event stream connected")
	if err := conn.Subscribe(ctx, domain.NewSubscribeMessage(types)); err != nil {
		logger.Debug("send subscription", zap.Error(err))
	}

	for {
		event, err := conn.Receive(ctx)
		if err != nil {
			logger.Debug("event stream closed", zap.Error(err))
			break
		}
		m.dispatch(ch, event)
	}

	m.mu.Lock()
	ch.conn = nil
	ch.connected = false
	m.mu.Unlock()
}

func (m *ChannelManager) dispatch(ch *channel, event domain.BotEvent) {
	m.mu.Lock()
	targets := make([]func(domain.BotEvent), 0, len(ch.subscribers))
	for _, sub := range ch.subscribers {
		if len(sub.types) == 0 || slices.Contains(sub.types, event.Type) {
			targets = append(targets, sub.onEvent)
		}
	}
	m.mu.Unlock()

	for _, onEvent := range targets {
		onEvent(event)
	}
}

// unionEventTypes merges the event types requested by every subscriber, falling back
// to the defaults for subscribers that asked for everything.
func unionEventTypes(ch *channel) []domain.EventType {
	var out []domain.EventType
	for _, sub := range ch.subscribers {
		types := sub.types
		if len(types) == 0 {
			types = domain.DefaultEventTypes
		}
		for _, t := range types {
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
	}
	slices.Sort(out)
	return out
}

func backoffDelay(base, limit time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt && delay < limit; i++ {
		delay *= 2
	}
	return min(delay, limit)
}
