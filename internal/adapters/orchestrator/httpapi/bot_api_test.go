package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
)

func newBotServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *BotAPI {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "meghan", user)
		assert.Equal(t, "user-1", pass)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return NewBotAPI(server.URL, "meghan", server.Client(), 0)
}

func TestHealthDecodesHeartbeat(t *testing.T) {
	t.Parallel()

	api := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/grid/api/v1/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"last_process":"2026-01-01 00:00:00","last_process_ts":1767225600}`))
	})

	health, err := api.Health(context.Background(), "grid", "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Health{LastProcessTs: 1767225600}, health)
}

func TestOpenTradesCountsListOrWrappedList(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
		want int
	}{
		{name: "array", body: `[{"trade_id":1},{"trade_id":2}]`, want: 2},
		{name: "empty array", body: `[]`, want: 0},
		{name: "wrapped", body: `{"open_trades":[{"trade_id":7}]}`, want: 1},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			api := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/user/grid/api/v1/status", r.URL.Path)
				_, _ = w.Write([]byte(tc.body))
			})

			got, err := api.OpenTrades(context.Background(), "grid", "user-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestControlPostsStartAndStop(t *testing.T) {
	t.Parallel()

	for _, action := range []ports.BotControl{ports.BotControlStart, ports.BotControlStop} {
		action := action
		t.Run(string(action), func(t *testing.T) {
			t.Parallel()

			api := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/user/grid/api/v1/"+string(action), r.URL.Path)
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			})

			result, err := api.Control(context.Background(), "grid", "user-1", action)
			require.NoError(t, err)
			assert.Equal(t, "ok", result.Status)
		})
	}
}

func TestControlRejectsUnknownAction(t *testing.T) {
	t.Parallel()

	api := NewBotAPI("http://127.0.0.1:1", "meghan", nil, 0)
	_, err := api.Control(context.Background(), "grid", "user-1", ports.BotControl("restart"))
	require.Error(t, err)
}

func TestBotAPIRequiresStrategy(t *testing.T) {
	t.Parallel()

	api := NewBotAPI("http://127.0.0.1:1", "meghan", nil, 0)
	_, err := api.Health(context.Background(), "", "user-1")
	require.ErrorIs(t, err, domain.ErrStrategyNameMissing)
}

func TestBotAPIUnauthorizedIsStatusError(t *testing.T) {
	t.Parallel()

	api := newBotServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Unauthorized"}`))
	})

	_, err := api.Health(context.Background(), "grid", "user-1")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "Unauthorized", statusErr.Message)
}
