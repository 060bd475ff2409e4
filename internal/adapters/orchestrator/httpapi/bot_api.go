package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
)

// BotAPI calls the REST API of a deployed bot. Requests use HTTP Basic auth
// with the configured username and the user's id as password.
type BotAPI struct {
	client
	username string
}

var _ ports.BotAPI = (*BotAPI)(nil)

func NewBotAPI(baseURL, username string, httpClient *http.Client, requestTimeout time.Duration) *BotAPI {
	return &BotAPI{
		client:   client{baseURL: baseURL, httpClient: httpClient, requestTimeout: requestTimeout},
		username: username,
	}
}

func (b *BotAPI) Health(ctx context.Context, strategy, userID string) (domain.Health, error) {
	var health domain.Health
	if err := b.call(ctx, http.MethodGet, strategy, userID, "health", &health); err != nil {
		return domain.Health{}, err
	}
	return health, nil
}

// OpenTrades counts the entries of /status. Some bot versions wrap the list
// as {"open_trades": [...]}.
func (b *BotAPI) OpenTrades(ctx context.Context, strategy, userID string) (int, error) {
	var raw json.RawMessage
	if err := b.call(ctx, http.MethodGet, strategy, userID, "status", &raw); err != nil {
		return 0, err
	}

	var trades []json.RawMessage
	if err := json.Unmarshal(raw, &trades); err == nil {
		return len(trades), nil
	}

	var wrapped struct {
		OpenTrades []json.RawMessage `json:"open_trades"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return 0, fmt.Errorf("decode open trades: %w", err)
	}
	return len(wrapped.OpenTrades), nil
}

func (b *BotAPI) Control(ctx context.Context, strategy, userID string, action ports.BotControl) (ports.ControlResult, error) {
	switch action {
	case ports.BotControlStart, ports.BotControlStop:
	default:
		return ports.ControlResult{}, fmt.Errorf("unsupported bot control %q", action)
	}

	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Running *bool  `json:"running"`
	}
	if err := b.call(ctx, http.MethodPost, strategy, userID, string(action), &payload); err != nil {
		return ports.ControlResult{}, err
	}
	return ports.ControlResult{Status: payload.Status, Message: payload.Message, Running: payload.Running}, nil
}

func (b *BotAPI) call(ctx context.Context, method, strategy, userID, endpoint string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strategy == "" {
		return domain.ErrStrategyNameMissing
	}

	ctx, cancel := b.requestContext(ctx)
	defer cancel()

	path := "/user/" + url.PathEscape(strategy) + "/api/v1/" + endpoint
	req, err := b.newRequest(ctx, method, path, nil, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(b.username, userID)

	op := fmt.Sprintf("bot %s %s", strategy, endpoint)
	resp, err := b.do(op, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := decodeJSON(resp.Body, out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", op, err)
	}
	return nil
}
