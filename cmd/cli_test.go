package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUserID = "user-1"
	testEmail  = "trader@example.com"
	testToken  = "token-1"
)

func TestVersionSkipsWiring(t *testing.T) {
	home := t.TempDir()
	t.Setenv("BOTSMITH_API_BASE_URL", "not a url")

	stdout, _, err := executeCLI(t, home, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestInvalidConfigFailsBeforeCommandRuns(t *testing.T) {
	home := t.TempDir()
	t.Setenv("BOTSMITH_EVENTS_BASE_URL", "https://not-a-socket")

	_, _, err := executeCLI(t, home, "auth", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.base_url")
}

func TestAuthLoginRequiresToken(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "auth", "login", "--user-id", testUserID, "--email", testEmail)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s) \"token\" not set")
}

func TestAuthLoginWhoAmILogout(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "auth", "login",
		"--user-id", testUserID,
		"--email", testEmail,
		"--token", testToken,
		"--expires-in", "1h",
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signed in as "+testEmail)

	info, err := os.Stat(filepath.Join(home, ".botsmith", "credentials", "default.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	stdout, _, err = executeCLI(t, home, "auth", "whoami", "--json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, testEmail)
	assert.Contains(t, stdout, "\"Profile\": \"default\"")

	_, _, err = executeCLI(t, home, "auth", "logout")
	require.NoError(t, err)

	_, _, err = executeCLI(t, home, "auth", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")
}

func TestProfilesAreIndependent(t *testing.T) {
	home := t.TempDir()
	login(t, home)

	_, _, err := executeCLI(t, home, "--profile", "other", "auth", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")
}

const testReply = `Here is your strategy.
<boltArtifact id="rsi" title="RSI strategy">
<boltAction type="file" filePath="freqtrade_rsi.py">
from freqtrade.strategy import IStrategy

class FreqtradeRsi(IStrategy):
    timeframe = "5m"
</boltAction>
<boltAction type="shell">echo sandbox-ready</boltAction>
</boltArtifact>
Deploy it when ready.`

func TestChatApplyRunsActionsAndSavesHistory(t *testing.T) {
	home := t.TempDir()
	login(t, home)

	replyPath := filepath.Join(t.TempDir(), "reply.txt")
	require.NoError(t, os.WriteFile(replyPath, []byte(testReply), 0o600))

	stdout, stderr, err := executeCLI(t, home, "chat", "apply",
		"--chat", "chat-1",
		"--file", replyPath,
		"--prompt", "Build me an RSI bot",
		"--chunk", "7",
	)
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "Here is your strategy.")
	assert.Contains(t, stdout, "Deploy it when ready.")
	assert.NotContains(t, stdout, "boltAction")
	assert.Contains(t, stdout, "[complete] file tradingbot")
	assert.Contains(t, stdout, "[complete] shell echo sandbox-ready")
	assert.Contains(t, stdout, "strategy: tradingbot")
	assert.Contains(t, stderr, "sandbox-ready")

	matches, err := filepath.Glob(filepath.Join(home, ".botsmith", "workspace", "tradingbot*.py"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	content, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "class Tradingbot")

	stdout, _, err = executeCLI(t, home, "chat", "show", "--chat", "chat-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Build me an RSI bot (chat-1)")
	assert.Contains(t, stdout, "user: Build me an RSI bot")
	assert.Contains(t, stdout, "assistant: Here is your strategy.")

	stdout, _, err = executeCLI(t, home, "strategy", "list", "--chat", "chat-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "tradingbot")

	stdout, _, err = executeCLI(t, home, "strategy", "name", "--chat", "chat-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "file: tradingbot")
	assert.Contains(t, stdout, "class: Tradingbot")
}

func TestChatApplyWithoutSignInSkipsHistory(t *testing.T) {
	home := t.TempDir()

	stdout, stderr, err := executeCLI(t, home, "chat", "apply", "--label", "scratch", "--file", "-")
	require.NoError(t, err)
	assert.Equal(t, "\n", stdout)
	assert.Contains(t, stderr, "not signed in, chat history was not saved")
}

func TestStrategyLoadRestoresSavedFiles(t *testing.T) {
	home := t.TempDir()
	login(t, home)

	replyPath := filepath.Join(t.TempDir(), "reply.txt")
	require.NoError(t, os.WriteFile(replyPath, []byte(testReply), 0o600))
	_, _, err := executeCLI(t, home, "chat", "apply", "--chat", "chat-2", "--file", replyPath)
	require.NoError(t, err)

	workspace := filepath.Join(home, ".botsmith", "workspace")
	require.NoError(t, os.RemoveAll(workspace))

	stdout, _, err := executeCLI(t, home, "strategy", "load", "--chat", "chat-2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "tradingbot")

	matches, err := filepath.Glob(filepath.Join(workspace, "tradingbot*.py"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

const testBotConfig = `strategy: rsi_bot
dry_run: false
trading_mode: spot
stake_currency: USDT
stake_amount: 50
max_open_trades: 2
timeframe: 15m
minimal_roi:
  "0": 0.05
stoploss: -0.2
exchange:
  name: kraken
  key: live-key
  secret: live-secret
  pair_whitelist:
    - BTC/USDT
`

func TestBotConfigSetShowAndList(t *testing.T) {
	home := t.TempDir()
	login(t, home)

	cfgPath := filepath.Join(t.TempDir(), "bot.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testBotConfig), 0o600))

	stdout, _, err := executeCLI(t, home, "bot", "config", "set", "--file", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Saved rsi_bot_bot")

	stdout, _, err = executeCLI(t, home, "bot", "config", "show", "--strategy", "rsi_bot")
	require.NoError(t, err)
	assert.Contains(t, stdout, "timeframe: 15m")
	assert.Contains(t, stdout, redacted)
	assert.NotContains(t, stdout, "live-key")
	assert.NotContains(t, stdout, "live-secret")

	stdout, _, err = executeCLI(t, home, "bot", "config", "show", "--strategy", "rsi_bot", "--json", "--reveal")
	require.NoError(t, err)
	assert.Contains(t, stdout, "live-secret")

	stdout, _, err = executeCLI(t, home, "bot", "config", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "rsi_bot_bot")
	assert.Contains(t, stdout, "kraken")
}

func TestBotConfigSetRejectsInvalidConfig(t *testing.T) {
	home := t.TempDir()
	login(t, home)

	cfgPath := filepath.Join(t.TempDir(), "bot.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(strings.Replace(testBotConfig, "timeframe: 15m", "timeframe: 7m", 1)), 0o600))

	_, _, err := executeCLI(t, home, "bot", "config", "set", "--file", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported timeframe")
}

func TestBotDeployPostsDefaultConfig(t *testing.T) {
	home := t.TempDir()
	login(t, home)

	var gotPath, gotAuth string
	var gotConfig map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotConfig))
		_, _ = w.Write([]byte(`{"result":"deployed"}`))
	}))
	t.Cleanup(server.Close)
	t.Setenv("BOTSMITH_API_BASE_URL", server.URL)

	stdout, _, err := executeCLI(t, home, "bot", "deploy", "--strategy", "rsi_bot", "--json")
	require.NoError(t, err)
	assert.Contains(t, stdout, "\"result\": \"deployed\"")
	assert.Equal(t, "/user/"+testEmail+"/rsi_bot", gotPath)
	assert.Equal(t, "Bearer "+testToken, gotAuth)
	assert.Equal(t, true, gotConfig["dry_run"])

	stdout, _, err = executeCLI(t, home, "bot", "config", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "rsi_bot_bot")
}

func TestBotDeployRequiresSignIn(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "bot", "deploy", "--strategy", "rsi_bot", "--json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authenticated")
}

func TestBotControlAndLogs(t *testing.T) {
	home := t.TempDir()
	login(t, home)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/rsi_bot/api/v1/stop":
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "meghan", user)
			assert.Equal(t, testUserID, pass)
			_, _ = w.Write([]byte(`{"status":"stopping trader ..."}`))
		case "/podlogs":
			assert.Equal(t, "5", r.URL.Query().Get("lines"))
			_, _ = w.Write([]byte(`{"logs":"freqtrade started\n\nheartbeat ok\n"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	t.Setenv("BOTSMITH_API_BASE_URL", server.URL)
	t.Setenv("BOTSMITH_BOT_API_BASE_URL", server.URL)

	stdout, _, err := executeCLI(t, home, "bot", "stop", "--strategy", "rsi_bot")
	require.NoError(t, err)
	assert.Equal(t, "stop rsi_bot: stopping trader ...\n", stdout)

	stdout, _, err = executeCLI(t, home, "bot", "logs", "--strategy", "rsi_bot", "--lines", "5")
	require.NoError(t, err)
	assert.Equal(t, "10xtraders started\nheartbeat ok\n", stdout)
}

func TestBotStatusReportsRunningBot(t *testing.T) {
	home := t.TempDir()
	login(t, home)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/podstatus":
			assert.Equal(t, "rsi_bot", r.URL.Query().Get("botName"))
			_, _ = w.Write([]byte(`{"ready":true,"phase":"Running"}`))
		case "/user/rsi_bot/api/v1/health":
			_, _ = fmt.Fprintf(w, `{"last_process_ts":%d}`, time.Now().Unix())
		case "/user/rsi_bot/api/v1/status":
			_, _ = w.Write([]byte(`[{"trade_id":1},{"trade_id":2}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	t.Setenv("BOTSMITH_API_BASE_URL", server.URL)
	t.Setenv("BOTSMITH_BOT_API_BASE_URL", server.URL)

	stdout, _, err := executeCLI(t, home, "bot", "status", "--strategy", "rsi_bot", "--json")
	require.NoError(t, err)

	var rows []statusRowJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "rsi_bot", rows[0].Strategy)
	assert.Equal(t, "running", string(rows[0].Status))
	assert.True(t, rows[0].Running)
	assert.Equal(t, 2, rows[0].OpenTrades)

	stdout, _, err = executeCLI(t, home, "bot", "status", "--strategy", "rsi_bot")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Bot Status")
	assert.Contains(t, stdout, "[running]")
	assert.Contains(t, stdout, "open trades: 2")
}

func TestBotStatusWithoutConfiguredBotsShowsEmptyBoard(t *testing.T) {
	home := t.TempDir()
	login(t, home)

	stdout, _, err := executeCLI(t, home, "bot", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No bots to show.")
}

func TestBotEventsStreamsJSONLines(t *testing.T) {
	home := t.TempDir()
	login(t, home)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/rsi_bot/api/v1/message/ws", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		var subscribe map[string]any
		if err := conn.ReadJSON(&subscribe); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"status","data":{"status":"running"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"entry","data":{"pair":"BTC/USDT"}}`))
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(server.Close)
	t.Setenv("BOTSMITH_EVENTS_BASE_URL", "ws"+strings.TrimPrefix(server.URL, "http"))

	stdout, _, err := executeCLI(t, home, "bot", "events", "--strategy", "rsi_bot", "--count", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"type":"status","data":{"status":"running"}}`, lines[0])
	assert.JSONEq(t, `{"type":"entry","data":{"pair":"BTC/USDT"}}`, lines[1])
}

func TestSplitChunksKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, []string{"ab", "cé", "f"}, splitChunks("abcéf", 2))
	assert.Empty(t, splitChunks("", 3))
}

func login(t *testing.T, home string) {
	t.Helper()

	_, _, err := executeCLI(t, home, "auth", "login",
		"--user-id", testUserID,
		"--email", testEmail,
		"--token", testToken,
	)
	require.NoError(t, err)
}

var executeMu sync.Mutex

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	t.Setenv("BOTSMITH_CREDENTIALS_BACKEND", "file")
	t.Setenv("BOTSMITH_CHAT_SYNC_DEBOUNCE", "0s")

	executeMu.Lock()
	defer executeMu.Unlock()

	root, app := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)

	err := root.Execute()
	if closeErr := app.close(); err == nil {
		err = closeErr
	}
	return stdout.String(), stderr.String(), err
}
