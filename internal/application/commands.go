package application

import (
	"time"

	"github.com/bnema/botsmith/internal/ports"
)

type LoginCommand struct {
	Profile     string
	UserID      string
	Email       string
	AccessToken string
	ExpiresAt   time.Time
}

type ControlCommand struct {
	Strategy string
	Action   ports.BotControl
}

func (c ControlCommand) Valid() bool {
	switch c.Action {
	case ports.BotControlStart, ports.BotControlStop:
		return c.Strategy != ""
	default:
		return false
	}
}
