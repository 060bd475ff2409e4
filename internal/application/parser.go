package application

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bnema/botsmith/internal/domain"
	"go.uber.org/zap"
)

const (
	artifactTagOpen  = "<boltArtifact"
	artifactTagClose = "</boltArtifact>"
	actionTagOpen    = "<boltAction"
	actionTagClose   = "</boltAction>"
)

type ArtifactEvent struct {
	MessageID string
	Artifact  domain.Artifact
}

type ActionEvent struct {
	MessageID  string
	ArtifactID string
	ActionID   string
	Action     domain.Action
}

type ParserCallbacks struct {
	OnArtifactOpen  func(ArtifactEvent)
	OnArtifactClose func(ArtifactEvent)
	OnActionOpen    func(ActionEvent)
	OnActionClose   func(ActionEvent)
	// OnCodeStream receives the partial content of an open file action each time
	// more of it arrives.
	OnCodeStream func(content, filePath string)
}

type ParserOptions struct {
	Callbacks ParserCallbacks
	// ArtifactElement renders the placeholder emitted in place of an artifact.
	ArtifactElement func(messageID string) string
	// Session returns the session whose strategy identity code files are bound to.
	Session func() domain.SessionID
}

type parseState struct {
	position        int
	insideArtifact  bool
	insideAction    bool
	currentArtifact *domain.Artifact
	currentAction   domain.Action
	actionCounter   int
}

// Parser extracts artifact and action tags from a streamed assistant reply while
// passing prose through. State is kept per message id, so a reply may be fed in
// arbitrarily small chunks. A Parser is not safe for concurrent use and callbacks
// must not call back into it.
type Parser struct {
	namer   *StrategyNamer
	opts    ParserOptions
	logger  *zap.Logger
	states  map[string]*parseState
	buffers map[string]string
}

func NewParser(namer *StrategyNamer, opts ParserOptions, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ArtifactElement == nil {
		opts.ArtifactElement = DefaultArtifactElement
	}
	if opts.Session == nil {
		opts.Session = func() domain.SessionID { return "" }
	}

	return &Parser{
		namer:   namer,
		opts:    opts,
		logger:  logger.Named("parser"),
		states:  map[string]*parseState{},
		buffers: map[string]string{},
	}
}

func DefaultArtifactElement(messageID string) string {
	return fmt.Sprintf(`<div class="__boltArtifact__" data-message-id=%q style="display: none;"></div>`, messageID)
}

// Feed appends chunk to the buffer held for messageID and returns newly released prose.
func (p *Parser) Feed(ctx context.Context, messageID, chunk string) string {
	p.buffers[messageID] += chunk
	return p.Parse(ctx, messageID, p.buffers[messageID])
}

// Parse scans input, the full reply received so far for messageID, from where the
// previous call stopped and returns only the prose released by this call.
func (p *Parser) Parse(ctx context.Context, messageID, input string) string {
	state, ok := p.states[messageID]
	if !ok {
		state = &parseState{}
		p.states[messageID] = state
	}

	var output strings.Builder
	i := state.position
	earlyBreak := false

	for i < len(input) {
		if state.insideArtifact {
			if state.insideAction {
				closeIndex := indexFrom(input, actionTagClose, i)
				if closeIndex < 0 {
					if p.opts.Callbacks.OnCodeStream != nil && state.currentAction.Type == domain.ActionTypeFile {
						p.opts.Callbacks.OnCodeStream(input[i:], state.currentAction.FilePath)
					}
					break
				}

				state.currentAction.Content += input[i:closeIndex]
				p.closeAction(ctx, messageID, state)
				i = closeIndex + len(actionTagClose)
				continue
			}

			actionOpenIndex := indexFrom(input, actionTagOpen, i)
			artifactCloseIndex := indexFrom(input, artifactTagClose, i)

			if actionOpenIndex >= 0 && (artifactCloseIndex < 0 || actionOpenIndex < artifactCloseIndex) {
				actionEndIndex := indexFrom(input, ">", actionOpenIndex)
				if actionEndIndex < 0 {
					break
				}
				p.openAction(ctx, messageID, state, input[actionOpenIndex:actionEndIndex+1])
				i = actionEndIndex + 1
				continue
			}

			if artifactCloseIndex < 0 {
				break
			}

			artifact := domain.Artifact{}
			if state.currentArtifact != nil {
				artifact = *state.currentArtifact
			}
			if cb := p.opts.Callbacks.OnArtifactClose; cb != nil {
				cb(ArtifactEvent{MessageID: messageID, Artifact: artifact})
			}
			state.insideArtifact = false
			state.currentArtifact = nil
			i = artifactCloseIndex + len(artifactTagClose)
			continue
		}

		if input[i] != '<' || (i+1 < len(input) && input[i+1] == '/') {
			output.WriteByte(input[i])
			i++
			continue
		}

		j := i
		potentialTag := ""
		for j < len(input) && len(potentialTag) < len(artifactTagOpen) {
			potentialTag += string(input[j])

			if potentialTag == artifactTagOpen {
				if j+1 < len(input) && input[j+1] != '>' && input[j+1] != ' ' {
					output.WriteString(input[i : j+1])
					i = j + 1
					break
				}

				openTagEnd := indexFrom(input, ">", j)
				if openTagEnd < 0 {
					earlyBreak = true
					break
				}

				artifact := p.parseArtifactTag(input[i : openTagEnd+1])
				state.insideArtifact = true
				state.currentArtifact = &artifact
				if cb := p.opts.Callbacks.OnArtifactOpen; cb != nil {
					cb(ArtifactEvent{MessageID: messageID, Artifact: artifact})
				}
				output.WriteString(p.opts.ArtifactElement(messageID))
				i = openTagEnd + 1
				break
			}

			if !strings.HasPrefix(artifactTagOpen, potentialTag) {
				// A '<' that breaks the match may itself open the tag.
				if j > i && input[j] == '<' {
					output.WriteString(input[i:j])
					i = j
					break
				}
				output.WriteString(input[i : j+1])
				i = j + 1
				break
			}

			j++
		}

		if earlyBreak || (j == len(input) && strings.HasPrefix(artifactTagOpen, potentialTag)) {
			break
		}
	}

	state.position = i
	return output.String()
}

// Reset forgets every message and the remembered strategy identities.
func (p *Parser) Reset() {
	p.states = map[string]*parseState{}
	p.buffers = map[string]string{}
	if p.namer != nil {
		p.namer.Reset()
	}
}

// Discard drops the state of a message whose stream has ended.
func (p *Parser) Discard(messageID string) {
	delete(p.states, messageID)
	delete(p.buffers, messageID)
}

func (p *Parser) openAction(ctx context.Context, messageID string, state *parseState, tag string) {
	action := p.parseActionTag(tag)

	if action.Type == domain.ActionTypeFile && domain.IsStrategyPath(action.FilePath) && p.namer != nil {
		identity, err := p.namer.Resolve(ctx, p.opts.Session(), action.FilePath)
		if err != nil {
			p.logger.Warn("resolve strategy name", zap.String("file", action.FilePath), zap.Error(err))
		} else {
			p.namer.RememberForMessage(messageID, identity)
			action.FilePath = identity.FileName
		}
	}

	state.insideAction = true
	state.currentAction = action

	if cb := p.opts.Callbacks.OnActionOpen; cb != nil {
		cb(ActionEvent{
			MessageID:  messageID,
			ArtifactID: currentArtifactID(state),
			ActionID:   strconv.Itoa(state.actionCounter),
			Action:     action,
		})
	}
}

func (p *Parser) closeAction(ctx context.Context, messageID string, state *parseState) {
	action := state.currentAction
	action.Content = strings.TrimSpace(action.Content)

	if action.Type == domain.ActionTypeFile {
		action.Content += "\n"

		if p.namer != nil && IsStrategyCode(action.FilePath, action.Content) {
			action = p.bindStrategyIdentity(ctx, messageID, action)
		}
	}

	if cb := p.opts.Callbacks.OnActionClose; cb != nil {
		cb(ActionEvent{
			MessageID:  messageID,
			ArtifactID: currentArtifactID(state),
			ActionID:   strconv.Itoa(state.actionCounter),
			Action:     action,
		})
	}

	state.actionCounter++
	state.insideAction = false
	state.currentAction = domain.Action{}
}

func (p *Parser) bindStrategyIdentity(ctx context.Context, messageID string, action domain.Action) domain.Action {
	identity, ok := p.namer.ForMessage(messageID)
	if !ok {
		resolved, err := p.namer.Resolve(ctx, p.opts.Session(), action.FilePath)
		if err != nil {
			p.logger.Warn("resolve strategy name", zap.String("file", action.FilePath), zap.Error(err))
			return action
		}
		identity = resolved
		p.namer.RememberForMessage(messageID, identity)
	}

	rewritten, found := RewriteClassName(action.Content, identity.ClassName)
	if !found {
		p.logger.Warn("no class declaration found in strategy code", zap.String("file", identity.FileName))
	}
	action.Content = rewritten
	action.FilePath = identity.FileName
	return action
}

func (p *Parser) parseArtifactTag(tag string) domain.Artifact {
	artifact := domain.Artifact{
		ID:    extractAttribute(tag, "id"),
		Title: extractAttribute(tag, "title"),
	}
	if artifact.ID == "" {
		p.logger.Warn("artifact id missing")
	}
	if artifact.Title == "" {
		p.logger.Warn("artifact title missing")
	}
	return artifact
}

func (p *Parser) parseActionTag(tag string) domain.Action {
	action := domain.Action{Type: domain.ActionType(extractAttribute(tag, "type"))}
	if !action.Type.Valid() {
		p.logger.Warn("unsupported action type", zap.String("type", string(action.Type)))
	}
	if action.Type == domain.ActionTypeFile {
		action.FilePath = extractAttribute(tag, "filePath")
		if action.FilePath == "" {
			p.logger.Debug("file path not specified")
		}
	}
	return action
}

var attributePatterns = map[string]*regexp.Regexp{
	"id":       regexp.MustCompile(`(?i)id="([^"]*)"`),
	"title":    regexp.MustCompile(`(?i)title="([^"]*)"`),
	"type":     regexp.MustCompile(`(?i)type="([^"]*)"`),
	"filePath": regexp.MustCompile(`(?i)filePath="([^"]*)"`),
}

func extractAttribute(tag, name string) string {
	pattern, ok := attributePatterns[name]
	if !ok {
		pattern = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(name) + `="([^"]*)"`)
	}
	match := pattern.FindStringSubmatch(tag)
	if match == nil {
		return ""
	}
	return match[1]
}

func currentArtifactID(state *parseState) string {
	if state.currentArtifact == nil {
		return ""
	}
	return state.currentArtifact.ID
}

func indexFrom(s, substr string, from int) int {
	if from > len(s) {
		return -1
	}
	idx := strings.Index(s[from:], substr)
	if idx < 0 {
		return -1
	}
	return from + idx
}
