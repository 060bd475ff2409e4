// Package ws connects to the live event stream of a deployed bot over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	closeWriteTimeout       = time.Second
	maxMessageBytes         = 4 << 20
)

type Dialer struct {
	baseURL string
	dialer  *websocket.Dialer
}

var _ ports.EventDialer = (*Dialer)(nil)

// NewDialer takes the ws(s) root of the bot hosts. A nil dialer uses a copy of
// websocket.DefaultDialer with a bounded handshake.
func NewDialer(baseURL string, dialer *websocket.Dialer) *Dialer {
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = defaultHandshakeTimeout
		dialer = &d
	}
	return &Dialer{baseURL: strings.TrimSuffix(baseURL, "/"), dialer: dialer}
}

func (d *Dialer) Dial(ctx context.Context, strategy, userID string) (ports.EventConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strategy == "" {
		return nil, domain.ErrStrategyNameMissing
	}

	endpoint, err := d.endpoint(strategy, userID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := d.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial event stream for %q: status %d: %w", strategy, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial event stream for %q: %w", strategy, err)
	}
	conn.SetReadLimit(maxMessageBytes)

	return &Conn{conn: conn}, nil
}

func (d *Dialer) endpoint(strategy, userID string) (string, error) {
	parsed, err := url.Parse(d.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse events base url: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", errors.New("events base url must use ws or wss")
	}
	if parsed.Host == "" {
		return "", errors.New("events base url host is required")
	}

	query := url.Values{"token": {userID}}
	return d.baseURL + "/user/" + url.PathEscape(strategy) + "/api/v1/message/ws?" + query.Encode(), nil
}

// Conn is one live event stream. Writes are serialized; Close is idempotent and
// unblocks a pending Receive.
type Conn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ ports.EventConn = (*Conn)(nil)

func (c *Conn) Subscribe(ctx context.Context, msg domain.SubscribeMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send subscribe message: %w", err)
	}
	return nil
}

// Receive returns the next event. Frames that are not JSON objects with a type
// are skipped.
func (c *Conn) Receive(ctx context.Context) (domain.BotEvent, error) {
	if err := ctx.Err(); err != nil {
		return domain.BotEvent{}, err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.BotEvent{}, ctxErr
			}
			return domain.BotEvent{}, fmt.Errorf("read event: %w", err)
		}

		var event domain.BotEvent
		if err := json.Unmarshal(data, &event); err != nil || event.Type == "" {
			continue
		}
		return event, nil
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout),
		)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
