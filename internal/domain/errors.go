package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthenticated     = errors.New("not authenticated")
	ErrActionNotFound      = errors.New("action not found")
	ErrInvalidBotConfig    = errors.New("invalid bot configuration")
	ErrReconnectExhausted  = errors.New("maximum reconnection attempts reached")
	ErrSandboxPathEscapes  = errors.New("path escapes sandbox root")
	ErrStrategyNameMissing = errors.New("strategy name is required")
)
