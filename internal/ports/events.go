package ports

import (
	"context"

	"github.com/bnema/botsmith/internal/domain"
)

type EventDialer interface {
	Dial(ctx context.Context, strategy, userID string) (EventConn, error)
}

// EventConn is one live event stream. Receive blocks until an event arrives or the
// connection fails; Close unblocks a pending Receive.
type EventConn interface {
	Subscribe(ctx context.Context, msg domain.SubscribeMessage) error
	Receive(ctx context.Context) (domain.BotEvent, error)
	Close() error
}
