package application

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWorkbenchStreamsRepliesIntoSandbox(t *testing.T) {
	sandbox := newFakeSandbox()
	namer := NewStrategyNamer(nil, newFixedClock(namingEpoch), nil)
	namer.SetRandomToken(staticToken("abcdefgh"))

	bench := NewWorkbench(WorkbenchConfig{
		Session: NewSessionContext("chat-1"),
		Namer:   namer,
		Runner:  RunnerConfig{Sandbox: sandbox},
	}, nil)

	var prose strings.Builder
	for _, chunk := range strings.SplitAfter(scenarioReply, "o") {
		prose.WriteString(bench.Stream(context.Background(), "m1", chunk))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bench.FinishMessage(ctx, "m1"))

	identity := scenarioIdentity()
	content, ok := sandbox.File(identity.FileName)
	require.True(t, ok)
	assert.Equal(t, "class "+identity.ClassName+"(IStrategy):\n  pass\n", content)

	assert.Equal(t, map[string]string{identity.FileName: content}, bench.Files())
	assert.Equal(t, identity.FileName, bench.SelectedFile())
	assert.Equal(t, []domain.Artifact{{ID: "a1", Title: "T"}}, bench.Artifacts())
	assert.True(t, strings.HasSuffix(prose.String(), " bye"))

	got, ok := bench.Strategy()
	require.True(t, ok)
	assert.Equal(t, identity, got)

	bench.Reset()
	assert.Empty(t, bench.Files())
	assert.Empty(t, bench.Runner().Actions())
}

func TestWorkbenchLoadStrategyFiles(t *testing.T) {
	sandbox := newFakeSandbox()
	scripts := mocks.NewMockScriptRepository(t)
	auth := mocks.NewMockAuthProvider(t)
	names := mocks.NewMockStrategyNameRepository(t)

	bench := NewWorkbench(WorkbenchConfig{
		Session:  NewSessionContext("chat-1"),
		Namer:    NewStrategyNamer(names, nil, nil),
		Runner:   RunnerConfig{Sandbox: sandbox, Scripts: scripts, Auth: auth},
		Sanitize: func(s string) string { return strings.ReplaceAll(s, "freqtrade", "10xtraders") },
	}, nil)

	auth.On("GetUser", mockAnyContext()).Return(domain.User{ID: "u1"}, nil).Once()
	scripts.On("ListScriptsByChat", mockAnyContext(), "u1", "chat-1").Return([]domain.TradingScript{
		{UserID: "u1", Name: "rsiabc", Content: "from freqtrade.strategy import IStrategy\n"},
	}, nil).Once()
	names.On("SaveStrategyName", mockAnyContext(), domain.SessionID("chat-1"), mock.AnythingOfType("domain.StrategyIdentity")).Return(nil).Once()

	loaded, err := bench.LoadStrategyFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"rsiabc.py"}, loaded)

	content, ok := sandbox.File("rsiabc.py")
	require.True(t, ok)
	assert.Equal(t, "from 10xtraders.strategy import IStrategy\n", content)

	identity, ok := bench.Strategy()
	require.True(t, ok)
	assert.Equal(t, domain.StrategyIdentity{FileName: "rsiabc.py", ClassName: "Rsiabc"}, identity)
}
