package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
	"go.uber.org/zap"
)

const (
	DefaultSyncDebounce = 500 * time.Millisecond
	DefaultSyncTimeout  = 5 * time.Second
)

type pendingSync struct {
	generation int
	chat       domain.ChatHistory
	timer      *time.Timer
	waiters    []chan error
}

// ChatSyncer coalesces rapid chat-history saves into one durable write per chat.
type ChatSyncer struct {
	repo     ports.ChatHistoryRepository
	auth     ports.AuthProvider
	debounce time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingSync
	wg      sync.WaitGroup
}

func NewChatSyncer(repo ports.ChatHistoryRepository, auth ports.AuthProvider, debounce, timeout time.Duration, logger *zap.Logger) *ChatSyncer {
	if debounce < 0 {
		debounce = DefaultSyncDebounce
	}
	if timeout <= 0 {
		timeout = DefaultSyncTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ChatSyncer{
		repo:     repo,
		auth:     auth,
		debounce: debounce,
		timeout:  timeout,
		logger:   logger.Named("chatsync"),
		pending:  map[string]*pendingSync{},
	}
}

// Schedule queues chat for syncing after the debounce window. A later call for the
// same chat id restarts the window and replaces the content; every caller receives
// the result of the single write. The result is domain.ErrUnauthenticated when the
// sync was skipped because nobody is signed in.
func (s *ChatSyncer) Schedule(chat domain.ChatHistory) <-chan error {
	result := make(chan error, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[chat.ID]
	if !ok {
		p = &pendingSync{}
		s.pending[chat.ID] = p
	} else if p.timer != nil && p.timer.Stop() {
		s.wg.Done()
	}
	p.generation++
	p.chat = chat
	p.waiters = append(p.waiters, result)

	generation := p.generation
	s.wg.Add(1)
	p.timer = time.AfterFunc(s.debounce, func() {
		defer s.wg.Done()
		s.fire(chat.ID, generation)
	})

	return result
}

// Flush syncs every pending chat immediately and waits for in-flight syncs.
func (s *ChatSyncer) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := make([]*pendingSync, 0, len(s.pending))
	for id, p := range s.pending {
		if p.timer != nil && p.timer.Stop() {
			s.wg.Done()
		}
		batch = append(batch, p)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	var errs []error
	for _, p := range batch {
		err := s.sync(ctx, p.chat)
		notify(p.waiters, err)
		if err != nil && !errors.Is(err, domain.ErrUnauthenticated) {
			errs = append(errs, err)
		}
	}

	s.wg.Wait()
	return errors.Join(errs...)
}

func (s *ChatSyncer) fire(id string, generation int) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if !ok || p.generation != generation {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	s.mu.Unlock()

	notify(p.waiters, s.sync(context.Background(), p.chat))
}

func (s *ChatSyncer) sync(ctx context.Context, chat domain.ChatHistory) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.auth.GetUser(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			s.logger.Debug("not signed in, chat sync skipped", zap.String("chat", chat.ID))
			return domain.ErrUnauthenticated
		}
		return fmt.Errorf("get user: %w", err)
	}

	if err := s.repo.SaveChat(ctx, user.ID, chat); err != nil {
		s.logger.Error("sync chat history", zap.String("chat", chat.ID), zap.Error(err))
		return fmt.Errorf("save chat %s: %w", chat.ID, err)
	}
	s.logger.Debug("chat history synced", zap.String("chat", chat.ID), zap.Int("messages", len(chat.Messages)))
	return nil
}

func notify(waiters []chan error, err error) {
	for _, waiter := range waiters {
		waiter <- err
	}
}
