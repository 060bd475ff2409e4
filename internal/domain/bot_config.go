package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

type TradingMode string

const (
	TradingModeSpot    TradingMode = "spot"
	TradingModeFutures TradingMode = "futures"
)

var (
	supportedExchanges = []string{"binance", "binanceus", "bybit", "gateio", "htx", "kraken", "kucoin", "okx"}
	validTimeframes    = []string{"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d", "3d", "1w"}
)

type ExchangeConfig struct {
	Name          string         `json:"name" yaml:"name"`
	Key           string         `json:"key,omitempty" yaml:"key,omitempty"`
	Secret        string         `json:"secret,omitempty" yaml:"secret,omitempty"`
	Password      string         `json:"password,omitempty" yaml:"password,omitempty"`
	PairWhitelist []string       `json:"pair_whitelist" yaml:"pair_whitelist"`
	CCXTConfig    map[string]any `json:"ccxt_config" yaml:"ccxt_config,omitempty"`
}

func (e ExchangeConfig) HasCredentials() bool {
	return strings.TrimSpace(e.Key) != "" && strings.TrimSpace(e.Secret) != ""
}

// BotConfig is the deployment configuration sent to the orchestration backend.
type BotConfig struct {
	Strategy      string             `json:"strategy" yaml:"strategy"`
	DryRun        bool               `json:"dry_run" yaml:"dry_run"`
	DryRunWallet  float64            `json:"dry_run_wallet,omitempty" yaml:"dry_run_wallet,omitempty"`
	TradingMode   TradingMode        `json:"trading_mode" yaml:"trading_mode"`
	StakeCurrency string             `json:"stake_currency" yaml:"stake_currency"`
	StakeAmount   float64            `json:"stake_amount" yaml:"stake_amount"`
	MaxOpenTrades int                `json:"max_open_trades" yaml:"max_open_trades"`
	Timeframe     string             `json:"timeframe" yaml:"timeframe"`
	MinimalROI    map[string]float64 `json:"minimal_roi" yaml:"minimal_roi"`
	Stoploss      float64            `json:"stoploss" yaml:"stoploss"`
	Exchange      ExchangeConfig     `json:"exchange" yaml:"exchange"`
}

func (c BotConfig) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Strategy) == "" {
		problems = append(problems, "strategy is required")
	}
	switch c.TradingMode {
	case TradingModeSpot, TradingModeFutures:
	default:
		problems = append(problems, fmt.Sprintf("unsupported trading mode %q", c.TradingMode))
	}
	if strings.TrimSpace(c.StakeCurrency) == "" {
		problems = append(problems, "stake currency is required")
	}
	if c.StakeAmount <= 0 {
		problems = append(problems, "stake amount must be positive")
	}
	if c.MaxOpenTrades <= 0 {
		problems = append(problems, "max open trades must be positive")
	}
	if !slices.Contains(validTimeframes, c.Timeframe) {
		problems = append(problems, fmt.Sprintf("unsupported timeframe %q", c.Timeframe))
	}
	if c.Stoploss >= 0 || c.Stoploss < -1 {
		problems = append(problems, "stoploss must be in [-1, 0)")
	}
	for minutes := range c.MinimalROI {
		if _, err := strconv.Atoi(minutes); err != nil {
			problems = append(problems, fmt.Sprintf("minimal roi key %q is not a minute offset", minutes))
		}
	}
	if !slices.Contains(supportedExchanges, strings.ToLower(c.Exchange.Name)) {
		problems = append(problems, fmt.Sprintf("unsupported exchange %q", c.Exchange.Name))
	}
	if len(c.Exchange.PairWhitelist) == 0 {
		problems = append(problems, "pair whitelist is empty")
	}
	if c.DryRun && c.DryRunWallet <= 0 {
		problems = append(problems, "dry run wallet must be positive")
	}
	if !c.DryRun && !c.Exchange.HasCredentials() {
		problems = append(problems, "live trading requires exchange key and secret")
	}

	if len(problems) > 0 {
		slices.Sort(problems)
		return fmt.Errorf("%w: %s", ErrInvalidBotConfig, strings.Join(problems, "; "))
	}

	return nil
}

// DefaultBotConfig is the paper-trading configuration created for a first strategy.
func DefaultBotConfig(strategy string) BotConfig {
	return BotConfig{
		Strategy:      strategy,
		DryRun:        true,
		DryRunWallet:  1000,
		TradingMode:   TradingModeSpot,
		StakeCurrency: "USDT",
		StakeAmount:   100,
		MaxOpenTrades: 3,
		Timeframe:     "5m",
		MinimalROI:    map[string]float64{"0": 0.04, "30": 0.02, "60": 0.01},
		Stoploss:      -0.1,
		Exchange: ExchangeConfig{
			Name: "binance",
			PairWhitelist: []string{
				"AVAX/USDT", "DOT/USDT", "LINK/USDT", "UNI/USDT", "MATIC/USDT",
				"LTC/USDT", "ATOM/USDT", "NEAR/USDT", "FIL/USDT", "AAVE/USDT",
				"SAND/USDT", "GRT/USDT", "FTM/USDT", "ALGO/USDT", "ICP/USDT",
				"VET/USDT", "SOL/USDT",
			},
			CCXTConfig: map[string]any{},
		},
	}
}

// BotConfiguration is a stored deployment configuration owned by a user.
type BotConfiguration struct {
	ID        string
	UserID    string
	Name      string
	Config    BotConfig
	IsActive  bool
	UpdatedAt time.Time
}

func DefaultBotConfigurationName(strategy string) string {
	return strategy + "_bot"
}
