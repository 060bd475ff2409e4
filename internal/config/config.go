// Package config loads botsmith settings from ~/.botsmith/config.toml,
// BOTSMITH_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".botsmith"
	envPrefix  = "BOTSMITH"
)

const (
	KeyAPIBaseURL           = "api.base_url"
	KeyBotAPIBaseURL        = "bot_api.base_url"
	KeyBotAPIUsername       = "bot_api.username"
	KeyEventsBaseURL        = "events.base_url"
	KeyPollInterval         = "status.poll_interval"
	KeyHeartbeatInterval    = "status.heartbeat_interval"
	KeyThresholdMultiplier  = "status.threshold_multiplier"
	KeyMaxReconnectAttempts = "events.max_reconnect_attempts"
	KeyBackoffBase          = "events.backoff_base"
	KeyBackoffMax           = "events.backoff_max"
	KeySyncDebounce         = "chat.sync_debounce"
	KeySyncTimeout          = "chat.sync_timeout"
	KeyWorkspaceDir         = "workspace.dir"
	KeyStorePath            = "store.path"
	KeyNamesPath            = "names.path"
	KeyCredentialsDir       = "credentials.dir"
	KeyCredentialsBackend   = "credentials.backend"
)

// Credential backends accepted by credentials.backend.
const (
	CredentialsBackendAuto = "auto"
	CredentialsBackendFile = "file"
	CredentialsBackendPass = "pass"
)

type Config struct {
	APIBaseURL    string
	BotAPIBaseURL string
	BotAPIUser    string
	EventsBaseURL string

	PollInterval        time.Duration
	HeartbeatInterval   time.Duration
	ThresholdMultiplier int

	MaxReconnectAttempts int
	BackoffBase          time.Duration
	BackoffMax           time.Duration

	SyncDebounce time.Duration
	SyncTimeout  time.Duration

	WorkspaceDir   string
	StorePath      string
	NamesPath      string
	CredentialsDir string

	// CredentialsBackend selects where login credentials live. "auto" tries
	// pass first and falls back to files under CredentialsDir.
	CredentialsBackend string
}

// Load reads configuration into cfg (a fresh viper instance when nil).
// A missing config file is not an error.
func Load(cfg *viper.Viper) (Config, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}
	root := filepath.Join(homeDir, configDir)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(root)
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()
	setDefaults(cfg, root)

	if err := cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	out := Config{
		APIBaseURL:           strings.TrimRight(cfg.GetString(KeyAPIBaseURL), "/"),
		BotAPIBaseURL:        strings.TrimRight(cfg.GetString(KeyBotAPIBaseURL), "/"),
		BotAPIUser:           cfg.GetString(KeyBotAPIUsername),
		EventsBaseURL:        strings.TrimRight(cfg.GetString(KeyEventsBaseURL), "/"),
		PollInterval:         cfg.GetDuration(KeyPollInterval),
		HeartbeatInterval:    cfg.GetDuration(KeyHeartbeatInterval),
		ThresholdMultiplier:  cfg.GetInt(KeyThresholdMultiplier),
		MaxReconnectAttempts: cfg.GetInt(KeyMaxReconnectAttempts),
		BackoffBase:          cfg.GetDuration(KeyBackoffBase),
		BackoffMax:           cfg.GetDuration(KeyBackoffMax),
		SyncDebounce:         cfg.GetDuration(KeySyncDebounce),
		SyncTimeout:          cfg.GetDuration(KeySyncTimeout),
		WorkspaceDir:         cfg.GetString(KeyWorkspaceDir),
		StorePath:            cfg.GetString(KeyStorePath),
		NamesPath:            cfg.GetString(KeyNamesPath),
		CredentialsDir:       cfg.GetString(KeyCredentialsDir),
		CredentialsBackend:   strings.ToLower(strings.TrimSpace(cfg.GetString(KeyCredentialsBackend))),
	}

	for _, p := range []*string{&out.WorkspaceDir, &out.StorePath, &out.NamesPath, &out.CredentialsDir} {
		normalized, err := normalizePath(*p, homeDir)
		if err != nil {
			return Config{}, err
		}
		*p = normalized
	}

	if err := out.Validate(); err != nil {
		return Config{}, err
	}
	return out, nil
}

func setDefaults(cfg *viper.Viper, root string) {
	cfg.SetDefault(KeyAPIBaseURL, "https://10xtraders.ai/apa")
	cfg.SetDefault(KeyBotAPIBaseURL, "https://10xtraders.ai")
	cfg.SetDefault(KeyBotAPIUsername, "meghan")
	cfg.SetDefault(KeyEventsBaseURL, "wss://10xtraders.ai")
	cfg.SetDefault(KeyPollInterval, 10*time.Second)
	cfg.SetDefault(KeyHeartbeatInterval, 60*time.Second)
	cfg.SetDefault(KeyThresholdMultiplier, 2)
	cfg.SetDefault(KeyMaxReconnectAttempts, 5)
	cfg.SetDefault(KeyBackoffBase, time.Second)
	cfg.SetDefault(KeyBackoffMax, 30*time.Second)
	cfg.SetDefault(KeySyncDebounce, 500*time.Millisecond)
	cfg.SetDefault(KeySyncTimeout, 5*time.Second)
	cfg.SetDefault(KeyWorkspaceDir, filepath.Join(root, "workspace"))
	cfg.SetDefault(KeyStorePath, filepath.Join(root, "botsmith.db"))
	cfg.SetDefault(KeyNamesPath, filepath.Join(root, "strategy_names.toml"))
	cfg.SetDefault(KeyCredentialsDir, filepath.Join(root, "credentials"))
	cfg.SetDefault(KeyCredentialsBackend, CredentialsBackendAuto)
}

func (c Config) Validate() error {
	var problems []string

	for key, raw := range map[string]string{
		KeyAPIBaseURL:    c.APIBaseURL,
		KeyBotAPIBaseURL: c.BotAPIBaseURL,
	} {
		if err := checkURL(raw, "http", "https"); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if err := checkURL(c.EventsBaseURL, "ws", "wss"); err != nil {
		problems = append(problems, fmt.Sprintf("%s: %v", KeyEventsBaseURL, err))
	}

	for key, d := range map[string]time.Duration{
		KeyPollInterval:      c.PollInterval,
		KeyHeartbeatInterval: c.HeartbeatInterval,
		KeyBackoffBase:       c.BackoffBase,
		KeyBackoffMax:        c.BackoffMax,
		KeySyncTimeout:       c.SyncTimeout,
	} {
		if d <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive", key))
		}
	}
	if c.SyncDebounce < 0 {
		problems = append(problems, KeySyncDebounce+" must not be negative")
	}
	if c.ThresholdMultiplier <= 0 {
		problems = append(problems, KeyThresholdMultiplier+" must be positive")
	}
	switch c.CredentialsBackend {
	case CredentialsBackendAuto, CredentialsBackendFile, CredentialsBackendPass:
	default:
		problems = append(problems, fmt.Sprintf("%s: unknown backend %q", KeyCredentialsBackend, c.CredentialsBackend))
	}
	if c.MaxReconnectAttempts < 0 {
		problems = append(problems, KeyMaxReconnectAttempts+" must not be negative")
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

func checkURL(raw string, schemes ...string) error {
	if raw == "" {
		return errors.New("is empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme && parsed.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("scheme must be one of %s", strings.Join(schemes, ", "))
}

func normalizePath(path, homeDir string) (string, error) {
	if path == "" {
		return "", errors.New("config path is empty")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		path = filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return filepath.Clean(absPath), nil
}

