package application

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/reactive"
)

const derivedSessionPrefix = "ws-"

// SessionContext holds the identity of the conversation currently open. Components
// read it at call time, so switching conversations needs no rewiring.
type SessionContext struct {
	ChatID *reactive.Cell[string]
	URLID  *reactive.Cell[string]
}

func NewSessionContext(chatID string) *SessionContext {
	return &SessionContext{
		ChatID: reactive.NewCell(chatID),
		URLID:  reactive.NewCell(chatID),
	}
}

func (s *SessionContext) Session() domain.SessionID {
	return domain.SessionID(s.ChatID.Get())
}

// Switch moves to another conversation.
func (s *SessionContext) Switch(chatID, urlID string) {
	if urlID == "" {
		urlID = chatID
	}
	s.ChatID.Set(chatID)
	s.URLID.Set(urlID)
}

// ResolveSessionID derives a stable session id for a workspace directory and an
// optional label, used when no explicit chat id is given.
func ResolveSessionID(workspaceRoot, label string) string {
	raw := strings.TrimSpace(workspaceRoot) + "|" + strings.TrimSpace(label)
	hash := sha1.Sum([]byte(raw))
	return derivedSessionPrefix + hex.EncodeToString(hash[:])[:16]
}
