package application

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultStrategyBase = "strategy"
	strategyBaseClass   = "IStrategy"
	randomTokenLength   = 8
)

var (
	brandPattern         = regexp.MustCompile(`(?i)freqtrade|10xtraders`)
	strategyClassPattern = regexp.MustCompile(`class\s+(\w+)\s*\(\s*` + strategyBaseClass + `\s*\)`)
	anyClassPattern      = regexp.MustCompile(`class\s+(\w+)\s*\([^)]*\)`)
)

// StrategyNamer locks one strategy identity per session. Every revision of generated
// code in a session reuses the first identity handed out.
type StrategyNamer struct {
	repo        ports.StrategyNameRepository
	clock       ports.Clock
	randomToken func() string
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[domain.SessionID]domain.StrategyIdentity
	messages map[string]domain.StrategyIdentity
}

// NewStrategyNamer builds a namer. repo may be nil, in which case identities only
// live in memory.
func NewStrategyNamer(repo ports.StrategyNameRepository, clock ports.Clock, logger *zap.Logger) *StrategyNamer {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StrategyNamer{
		repo:        repo,
		clock:       clock,
		randomToken: uuidToken,
		logger:      logger.Named("naming"),
		sessions:    map[domain.SessionID]domain.StrategyIdentity{},
		messages:    map[string]domain.StrategyIdentity{},
	}
}

// SetRandomToken replaces the random suffix source.
func (n *StrategyNamer) SetRandomToken(fn func() string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if fn == nil {
		fn = uuidToken
	}
	n.randomToken = fn
}

// Resolve returns the identity remembered for session, deriving and remembering a new
// one from proposed when none exists. A failing durable write is logged only.
func (n *StrategyNamer) Resolve(ctx context.Context, session domain.SessionID, proposed string) (domain.StrategyIdentity, error) {
	if err := ctx.Err(); err != nil {
		return domain.StrategyIdentity{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if session != "" {
		if identity, ok := n.sessions[session]; ok {
			return identity, nil
		}

		if n.repo != nil {
			identity, err := n.repo.GetStrategyName(ctx, session)
			switch {
			case err == nil && !identity.IsZero():
				n.sessions[session] = identity
				return identity, nil
			case err != nil && !errors.Is(err, domain.ErrNotFound):
				n.logger.Warn("load strategy name", zap.String("session", string(session)), zap.Error(err))
			}
		}
	}

	identity := n.derive(proposed)
	if session == "" {
		n.logger.Warn("no session id, strategy name will not be remembered", zap.String("file", identity.FileName))
		return identity, nil
	}

	n.sessions[session] = identity
	if n.repo != nil {
		if err := n.repo.SaveStrategyName(ctx, session, identity); err != nil {
			n.logger.Warn("save strategy name", zap.String("session", string(session)), zap.Error(err))
		}
	}
	n.logger.Debug("strategy name derived",
		zap.String("session", string(session)),
		zap.String("proposed", proposed),
		zap.String("file", identity.FileName),
	)

	return identity, nil
}

// Remember binds identity to session unless one is already bound, and reports the
// identity in effect.
func (n *StrategyNamer) Remember(ctx context.Context, session domain.SessionID, identity domain.StrategyIdentity) domain.StrategyIdentity {
	n.mu.Lock()
	defer n.mu.Unlock()

	if existing, ok := n.sessions[session]; ok {
		return existing
	}
	n.sessions[session] = identity
	if n.repo != nil {
		if err := n.repo.SaveStrategyName(ctx, session, identity); err != nil {
			n.logger.Warn("save strategy name", zap.String("session", string(session)), zap.Error(err))
		}
	}
	return identity
}

// Remembered returns the identity held in memory for session, if any.
func (n *StrategyNamer) Remembered(session domain.SessionID) (domain.StrategyIdentity, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	identity, ok := n.sessions[session]
	return identity, ok
}

func (n *StrategyNamer) RememberForMessage(messageID string, identity domain.StrategyIdentity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages[messageID] = identity
}

func (n *StrategyNamer) ForMessage(messageID string) (domain.StrategyIdentity, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	identity, ok := n.messages[messageID]
	return identity, ok
}

// Reset drops every in-memory identity. Durable entries are kept.
func (n *StrategyNamer) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessions = map[domain.SessionID]domain.StrategyIdentity{}
	n.messages = map[string]domain.StrategyIdentity{}
}

func (n *StrategyNamer) derive(proposed string) domain.StrategyIdentity {
	base := StrategyBaseName(proposed)
	millis := n.clock.Now().UnixMilli()
	name := base + strconv.FormatInt(millis, 36) + n.randomToken()

	return domain.StrategyIdentity{
		FileName:  name + domain.StrategyFileExt,
		ClassName: strings.ToUpper(name[:1]) + name[1:],
	}
}

// StrategyBaseName reduces a proposed file name to a lower-case alphabetic identifier.
func StrategyBaseName(proposed string) string {
	base := path.Base(strings.ReplaceAll(proposed, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	base = brandPattern.ReplaceAllString(base, "")

	var b strings.Builder
	for _, r := range base {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}

	if b.Len() == 0 {
		return defaultStrategyBase
	}
	return b.String()
}

// RewriteClassName renames the strategy class declaration in content. The first
// IStrategy-derived class names the target and every declaration of that name is
// rewritten; otherwise the first class declaration is rewritten to derive from
// IStrategy. Content without a class declaration is returned unchanged.
func RewriteClassName(content, className string) (string, bool) {
	if match := strategyClassPattern.FindStringSubmatch(content); match != nil {
		declaration := regexp.MustCompile(`(class\s+)` + regexp.QuoteMeta(match[1]) + `(\s*\(\s*` + strategyBaseClass + `\s*\))`)
		return declaration.ReplaceAllString(content, "${1}"+className+"${2}"), true
	}
	if loc := anyClassPattern.FindStringIndex(content); loc != nil {
		return content[:loc[0]] + "class " + className + "(" + strategyBaseClass + ")" + content[loc[1]:], true
	}
	return content, false
}

// IsStrategyCode reports whether an action targets strategy source: a .py path or
// content declaring an IStrategy class.
func IsStrategyCode(filePath, content string) bool {
	if domain.IsStrategyPath(filePath) {
		return true
	}
	return strings.Contains(content, "class") && strings.Contains(content, strategyBaseClass)
}

func uuidToken() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:randomTokenLength]
}
