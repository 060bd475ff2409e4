package application

import (
	"github.com/bnema/botsmith/internal/domain"
)

// StatusRow is one line of the bot status board.
type StatusRow struct {
	Strategy  string
	Status    domain.BotStatus
	Connected bool
	StreamErr error
}

type Identity struct {
	User      domain.User
	ExpiresAt string
	Profile   string
}
