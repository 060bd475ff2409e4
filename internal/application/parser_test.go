package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioReply = "Hello <boltArtifact id=\"a1\" title=\"T\"><boltAction type=\"file\" filePath=\"trading_bot.py\">class Foo(IStrategy):\n  pass\n</boltAction></boltArtifact> bye"

type parseEvent struct {
	Kind       string
	ArtifactID string
	Title      string
	ActionID   string
	Action     domain.Action
}

type parserHarness struct {
	parser *Parser
	events []parseEvent
	prose  strings.Builder
}

func newParserHarness(session string) *parserHarness {
	namer := NewStrategyNamer(nil, newFixedClock(namingEpoch), nil)
	namer.SetRandomToken(staticToken("abcdefgh"))

	h := &parserHarness{}
	h.parser = NewParser(namer, ParserOptions{
		Session: sessionOf(session),
		Callbacks: ParserCallbacks{
			OnArtifactOpen: func(e ArtifactEvent) {
				h.events = append(h.events, parseEvent{Kind: "artifact-open", ArtifactID: e.Artifact.ID, Title: e.Artifact.Title})
			},
			OnArtifactClose: func(e ArtifactEvent) {
				h.events = append(h.events, parseEvent{Kind: "artifact-close", ArtifactID: e.Artifact.ID, Title: e.Artifact.Title})
			},
			OnActionOpen: func(e ActionEvent) {
				h.events = append(h.events, parseEvent{Kind: "action-open", ArtifactID: e.ArtifactID, ActionID: e.ActionID, Action: e.Action})
			},
			OnActionClose: func(e ActionEvent) {
				h.events = append(h.events, parseEvent{Kind: "action-close", ArtifactID: e.ArtifactID, ActionID: e.ActionID, Action: e.Action})
			},
		},
	}, nil)
	return h
}

func (h *parserHarness) feed(messageID string, chunks ...string) {
	for _, chunk := range chunks {
		h.prose.WriteString(h.parser.Feed(context.Background(), messageID, chunk))
	}
}

func scenarioIdentity() domain.StrategyIdentity {
	name := "tradingbot" + strconv.FormatInt(namingEpoch.UnixMilli(), 36) + "abcdefgh"
	return domain.StrategyIdentity{FileName: name + ".py", ClassName: "T" + name[1:]}
}

func TestParserScenarioSplitInsideClassBase(t *testing.T) {
	identity := scenarioIdentity()
	split := strings.Index(scenarioReply, "IStrat") + 3

	h := newParserHarness("chat-1")
	h.feed("m1", scenarioReply[:split], scenarioReply[split:])

	want := []parseEvent{
		{Kind: "artifact-open", ArtifactID: "a1", Title: "T"},
		{Kind: "action-open", ArtifactID: "a1", ActionID: "0", Action: domain.Action{Type: domain.ActionTypeFile, FilePath: identity.FileName}},
		{Kind: "action-close", ArtifactID: "a1", ActionID: "0", Action: domain.Action{
			Type:     domain.ActionTypeFile,
			FilePath: identity.FileName,
			Content:  "class " + identity.ClassName + "(IStrategy):\n  pass\n",
		}},
		{Kind: "artifact-close", ArtifactID: "a1", Title: "T"},
	}
	if diff := cmp.Diff(want, h.events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Hello "+DefaultArtifactElement("m1")+" bye", h.prose.String())
}

func TestParserChunkInvariance(t *testing.T) {
	reply := "Intro <b>bold</b> a<bol <boltArtifactX stays\n" +
		"<boltArtifact id=\"art\" title=\"Build\">ignored" +
		"<boltAction type=\"shell\">pip install ta</boltAction>" +
		"<boltAction type=\"file\" filePath=\"strategies/freqtrade_rsi.py\">\n\nclass RSI(IStrategy):\n    x = 1 < 2\n\n</boltAction>" +
		"<boltAction type=\"file\" filePath=\"config.json\">{\"a\": 1}</boltAction>" +
		"</boltArtifact> done </x>"

	whole := newParserHarness("chat-1")
	whole.feed("m1", reply)
	require.Len(t, whole.events, 8)

	for split := 1; split < len(reply); split++ {
		h := newParserHarness("chat-1")
		h.feed("m1", reply[:split], reply[split:])
		if diff := cmp.Diff(whole.events, h.events); diff != "" {
			t.Fatalf("split at %d: events mismatch (-whole +split):\n%s", split, diff)
		}
		require.Equal(t, whole.prose.String(), h.prose.String(), "split at %d", split)
	}

	bytewise := newParserHarness("chat-1")
	for i := 0; i < len(reply); i++ {
		bytewise.feed("m1", reply[i:i+1])
	}
	if diff := cmp.Diff(whole.events, bytewise.events); diff != "" {
		t.Fatalf("byte-by-byte events mismatch (-whole +bytes):\n%s", diff)
	}
	assert.Equal(t, whole.prose.String(), bytewise.prose.String())
}

func TestParserPassesThroughNonTags(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "html", input: "a <b>b</b> c", want: "a <b>b</b> c"},
		{name: "less than", input: "1 < 2 and 3<4", want: "1 < 2 and 3<4"},
		{name: "similar tag", input: "<boltArtifacts>", want: "<boltArtifacts>"},
		{name: "closing tag outside", input: "</boltArtifact>", want: "</boltArtifact>"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newParserHarness("chat-1")
			h.feed("m1", tc.input)
			assert.Equal(t, tc.want, h.prose.String())
			assert.Empty(t, h.events)
		})
	}
}

func TestParserFindsArtifactAfterBrokenTagPrefix(t *testing.T) {
	reply := "x <b<boltArtifact id=\"a\" title=\"t\"><boltAction type=\"shell\">ls</boltAction></boltArtifact> <<boltArtifact id=\"b\" title=\"u\"></boltArtifact>"

	for _, chunk := range []int{len(reply), 1, 3} {
		h := newParserHarness("chat-1")
		for i := 0; i < len(reply); i += chunk {
			h.feed("m1", reply[i:min(i+chunk, len(reply))])
		}

		want := []parseEvent{
			{Kind: "artifact-open", ArtifactID: "a", Title: "t"},
			{Kind: "action-open", ArtifactID: "a", ActionID: "0", Action: domain.Action{Type: domain.ActionTypeShell}},
			{Kind: "action-close", ArtifactID: "a", ActionID: "0", Action: domain.Action{Type: domain.ActionTypeShell, Content: "ls"}},
			{Kind: "artifact-close", ArtifactID: "a", Title: "t"},
			{Kind: "artifact-open", ArtifactID: "b", Title: "u"},
			{Kind: "artifact-close", ArtifactID: "b", Title: "u"},
		}
		if diff := cmp.Diff(want, h.events); diff != "" {
			t.Fatalf("chunk %d: events mismatch (-want +got):\n%s", chunk, diff)
		}
		assert.Equal(t, "x <b"+DefaultArtifactElement("m1")+" <"+DefaultArtifactElement("m1"), h.prose.String(), "chunk %d", chunk)
	}
}

func TestParserHoldsBackPotentialTagPrefix(t *testing.T) {
	h := newParserHarness("chat-1")

	assert.Equal(t, "text ", h.parser.Feed(context.Background(), "m1", "text <boltArt"))
	assert.Equal(t, "<boltArtist", h.parser.Feed(context.Background(), "m1", "ist"))
	assert.Equal(t, "", h.parser.Feed(context.Background(), "m1", "<"))
	assert.Equal(t, "<3", h.parser.Feed(context.Background(), "m1", "3"))
}

func TestParserWaitsForActionClose(t *testing.T) {
	h := newParserHarness("chat-1")
	var streamed []string
	h.parser.opts.Callbacks.OnCodeStream = func(content, _ string) {
		streamed = append(streamed, content)
	}

	h.feed("m1", `<boltArtifact id="a" title="t"><boltAction type="file" filePath="x.txt">hello`)
	require.Len(t, h.events, 2)

	h.feed("m1", " world</boltAc")
	require.Len(t, h.events, 2)

	h.feed("m1", "tion></boltArtifact>")
	require.Len(t, h.events, 4)
	assert.Equal(t, "hello world\n", h.events[2].Action.Content)
	assert.Equal(t, "x.txt", h.events[2].Action.FilePath)
	assert.Equal(t, []string{"hello", "hello world</boltAc"}, streamed)
}

func TestParserKeepsClassNameAcrossMessages(t *testing.T) {
	h := newParserHarness("chat-1")
	identity := scenarioIdentity()

	for i, proposed := range []string{"trading_bot.py", "revised_strategy.py", "v3.py"} {
		messageID := fmt.Sprintf("m%d", i)
		h.feed(messageID, fmt.Sprintf(
			`<boltArtifact id="a%d" title="rev"><boltAction type="file" filePath=%q>class Rev%d(IStrategy):
    pass</boltAction></boltArtifact>`, i, proposed, i))
		h.parser.Discard(messageID)
	}

	var closes []parseEvent
	for _, event := range h.events {
		if event.Kind == "action-close" {
			closes = append(closes, event)
		}
	}
	require.Len(t, closes, 3)
	for _, event := range closes {
		assert.Equal(t, identity.FileName, event.Action.FilePath)
		assert.Equal(t, "class "+identity.ClassName+"(IStrategy):\n    pass\n", event.Action.Content)
	}
}

func TestParserRenamesStrategyContentInNonPythonPath(t *testing.T) {
	h := newParserHarness("chat-1")
	h.feed("m1", `<boltArtifact id="a" title="t"><boltAction type="file" filePath="draft.txt">class X(IStrategy): pass</boltAction></boltArtifact>`)

	require.Len(t, h.events, 4)
	identity := scenarioIdentity()
	assert.Equal(t, "draft"+identity.FileName[len("tradingbot"):], h.events[2].Action.FilePath)
}

func TestParserMissingAttributesAndActionIDs(t *testing.T) {
	h := newParserHarness("chat-1")
	h.feed("m1", `<boltArtifact ><boltAction type="shell">ls</boltAction><boltAction type="shell">  pwd  </boltAction></boltArtifact>`)

	require.Len(t, h.events, 6)
	assert.Equal(t, "", h.events[0].ArtifactID)
	assert.Equal(t, "0", h.events[2].ActionID)
	assert.Equal(t, "1", h.events[4].ActionID)
	assert.Equal(t, "pwd", h.events[4].Action.Content)
}

func TestParserResetClearsState(t *testing.T) {
	h := newParserHarness("chat-1")
	h.feed("m1", "<boltArtifact id=\"a\" title=\"t\">")
	require.Len(t, h.events, 1)

	h.parser.Reset()
	assert.Equal(t, "plain", h.parser.Feed(context.Background(), "m1", "plain"))
}
