package application

import (
	"context"
	"testing"
	"time"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("sync result not delivered")
		return nil
	}
}

func TestChatSyncerCoalescesWrites(t *testing.T) {
	repo := mocks.NewMockChatHistoryRepository(t)
	auth := mocks.NewMockAuthProvider(t)
	syncer := NewChatSyncer(repo, auth, 20*time.Millisecond, time.Second, nil)

	auth.On("GetUser", mockAnyContext()).Return(domain.User{ID: "u1"}, nil).Once()
	repo.On("SaveChat", mockAnyContext(), "u1", mock.MatchedBy(func(chat domain.ChatHistory) bool {
		return chat.ID == "c1" && len(chat.Messages) == 3
	})).Return(nil).Once()

	var results []<-chan error
	for i := 1; i <= 3; i++ {
		chat := domain.ChatHistory{ID: "c1", Messages: make([]domain.ChatMessage, i)}
		results = append(results, syncer.Schedule(chat))
	}
	for _, result := range results {
		assert.NoError(t, receive(t, result))
	}
	require.NoError(t, syncer.Flush(context.Background()))
}

func TestChatSyncerSkipsWhenSignedOut(t *testing.T) {
	repo := mocks.NewMockChatHistoryRepository(t)
	auth := mocks.NewMockAuthProvider(t)
	syncer := NewChatSyncer(repo, auth, time.Hour, time.Second, nil)

	auth.On("GetUser", mockAnyContext()).Return(domain.User{}, domain.ErrUnauthenticated).Once()

	result := syncer.Schedule(domain.ChatHistory{ID: "c1"})
	require.NoError(t, syncer.Flush(context.Background()))
	assert.ErrorIs(t, receive(t, result), domain.ErrUnauthenticated)
	repo.AssertNotCalled(t, "SaveChat", mock.Anything, mock.Anything, mock.Anything)
}

func TestChatSyncerFlushWritesImmediately(t *testing.T) {
	repo := mocks.NewMockChatHistoryRepository(t)
	auth := mocks.NewMockAuthProvider(t)
	syncer := NewChatSyncer(repo, auth, time.Hour, time.Second, nil)

	auth.On("GetUser", mockAnyContext()).Return(domain.User{ID: "u1"}, nil).Twice()
	repo.On("SaveChat", mockAnyContext(), "u1", mock.AnythingOfType("domain.ChatHistory")).Return(nil).Twice()

	first := syncer.Schedule(domain.ChatHistory{ID: "c1"})
	second := syncer.Schedule(domain.ChatHistory{ID: "c2"})
	require.NoError(t, syncer.Flush(context.Background()))

	assert.NoError(t, receive(t, first))
	assert.NoError(t, receive(t, second))
}
