package domain

import (
	"strings"
	"time"
)

// SessionID identifies one conversation/workspace.
type SessionID string

const StrategyFileExt = ".py"

// StrategyIdentity is the canonical file/class name pair locked for a session.
type StrategyIdentity struct {
	FileName  string
	ClassName string
}

func (s StrategyIdentity) IsZero() bool {
	return s.FileName == "" && s.ClassName == ""
}

// StrategyName is the file name without extension. It is the durable-store key for
// scripts and the name the orchestration backend deploys under.
func (s StrategyIdentity) StrategyName() string {
	return StrategyNameFromPath(s.FileName)
}

func StrategyNameFromPath(path string) string {
	base := path
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.TrimSuffix(base, StrategyFileExt)
}

func IsStrategyPath(path string) bool {
	return strings.HasSuffix(path, StrategyFileExt)
}

// TradingScript is one persisted strategy source keyed by (UserID, Name).
type TradingScript struct {
	UserID      string
	Name        string
	Content     string
	Description string
	ChatID      string
	UpdatedAt   time.Time
}
