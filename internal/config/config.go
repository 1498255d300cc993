package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. It is built once at startup
// and treated as read-only afterwards.
type Config struct {
	App struct {
		LogLevel    string `yaml:"log_level" envconfig:"LOG_LEVEL"`
		MetricsAddr string `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`
		StateFile   string `yaml:"state_file" envconfig:"STATE_FILE"`
		RunOnStart  *bool  `yaml:"run_on_start" envconfig:"RUN_ON_START"`
	} `yaml:"app"`
	Schedule struct {
		IntervalMinutes int `yaml:"interval_minutes" envconfig:"RUN_INTERVAL_MIN"`
	} `yaml:"schedule"`
	Solana struct {
		RPCURL          string  `yaml:"rpc_url" envconfig:"RPC_URL"`
		Commitment      string  `yaml:"commitment" envconfig:"SOLANA_COMMITMENT"`
		USDCMint        string  `yaml:"usdc_mint" envconfig:"USDC_MINT"`
		WalletPublicKey string  `yaml:"wallet_public_key" envconfig:"DEV_WALLET_PUBLIC_KEY"`
		FeeReserveSOL   float64 `yaml:"fee_reserve_sol" envconfig:"FEE_RESERVE_SOL"`
	} `yaml:"solana"`
	Jupiter struct {
		BaseURL     string `yaml:"base_url" envconfig:"JUPITER_BASE_URL"`
		SlippageBps int    `yaml:"slippage_bps" envconfig:"JUPITER_SLIPPAGE_BPS"`
	} `yaml:"jupiter"`
	Routing struct {
		DepositAddress  string  `yaml:"deposit_address" envconfig:"EXCHANGE_DEPOSIT_ADDRESS"`
		MinTransferUSDC float64 `yaml:"min_transfer_usdc" envconfig:"MIN_REWARD_USDC"`
	} `yaml:"routing"`
	Trading struct {
		Venue        string  `yaml:"venue" envconfig:"EXCHANGE"`
		Symbol       string  `yaml:"symbol" envconfig:"SYMBOL"`
		NotionalUSDC float64 `yaml:"notional_usdc" envconfig:"TRADE_NOTIONAL_USDC"`
		Leverage     int     `yaml:"leverage" envconfig:"LEVERAGE"`
		Lookback     int     `yaml:"lookback" envconfig:"LOOKBACK"`
	} `yaml:"trading"`
	Exchange struct {
		APIBase    string `yaml:"api_base" envconfig:"EXCHANGE_API_BASE"`
		APIKey     string `yaml:"api_key" envconfig:"EXCHANGE_API_KEY"`
		APISecret  string `yaml:"api_secret" envconfig:"EXCHANGE_API_SECRET"`
		Subaccount string `yaml:"subaccount" envconfig:"EXCHANGE_SUBACCOUNT"`
	} `yaml:"exchange"`
	Telegram struct {
		BotToken string `yaml:"bot_token" envconfig:"TELEGRAM_BOT_TOKEN"`
		ChatID   string `yaml:"chat_id" envconfig:"TELEGRAM_CHAT_ID"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	} `yaml:"database"`
	HTTP struct {
		TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"HTTP_TIMEOUT_SEC"`
		Proxy          string `yaml:"proxy" envconfig:"HTTPS_PROXY"`
	} `yaml:"http"`
}

// Load reads config from a YAML file, then .env, then environment variable
// overrides, then fills defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	_ = godotenv.Load() // .env is optional
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.StateFile == "" {
		c.App.StateFile = "./state.json"
	}
	if c.App.RunOnStart == nil {
		on := true
		c.App.RunOnStart = &on
	}
	if c.Schedule.IntervalMinutes == 0 {
		c.Schedule.IntervalMinutes = 60
	}
	if c.Solana.Commitment == "" {
		c.Solana.Commitment = "confirmed"
	}
	if c.Solana.FeeReserveSOL == 0 {
		c.Solana.FeeReserveSOL = 0.01
	}
	if c.Jupiter.BaseURL == "" {
		c.Jupiter.BaseURL = "https://quote-api.jup.ag"
	}
	if c.Jupiter.SlippageBps == 0 {
		c.Jupiter.SlippageBps = 50
	}
	if c.Routing.MinTransferUSDC == 0 {
		c.Routing.MinTransferUSDC = 25
	}
	c.Trading.Venue = strings.ToLower(strings.TrimSpace(c.Trading.Venue))
	switch c.Trading.Venue {
	case "":
		c.Trading.Venue = "paper"
	case "hyperliquid":
		c.Trading.Venue = "live"
	}
	if c.Trading.Symbol == "" {
		c.Trading.Symbol = "BTC-USD"
	}
	if c.Trading.NotionalUSDC == 0 {
		c.Trading.NotionalUSDC = 200
	}
	if c.Trading.Leverage == 0 {
		c.Trading.Leverage = 20
	}
	if c.Trading.Lookback == 0 {
		c.Trading.Lookback = 300
	}
	if c.Exchange.Subaccount == "" {
		c.Exchange.Subaccount = "default"
	}
	if c.HTTP.TimeoutSeconds == 0 {
		c.HTTP.TimeoutSeconds = 30
	}
}

// StartupRun reports whether a cycle runs before the first scheduled tick.
func (c *Config) StartupRun() bool {
	return c.App.RunOnStart == nil || *c.App.RunOnStart
}

// Interval is the time between scheduled cycles.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}

// HTTPTimeout bounds every outbound call.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// TelegramEnabled reports whether both bot token and chat are set.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("solana.rpc_url (RPC_URL) is required")
	}
	if c.Solana.WalletPublicKey == "" {
		return fmt.Errorf("solana.wallet_public_key (DEV_WALLET_PUBLIC_KEY) is required")
	}
	if c.Solana.USDCMint == "" {
		return fmt.Errorf("solana.usdc_mint (USDC_MINT) is required")
	}
	if c.Solana.FeeReserveSOL <= 0 {
		return fmt.Errorf("solana.fee_reserve_sol must be positive")
	}
	if c.Schedule.IntervalMinutes <= 0 {
		return fmt.Errorf("schedule.interval_minutes must be positive")
	}
	if c.Trading.NotionalUSDC <= 0 {
		return fmt.Errorf("trading.notional_usdc must be positive")
	}
	if c.Trading.Leverage <= 0 {
		return fmt.Errorf("trading.leverage must be positive")
	}
	if c.Trading.Lookback <= 0 {
		return fmt.Errorf("trading.lookback must be positive")
	}
	if c.Routing.MinTransferUSDC < 0 {
		return fmt.Errorf("routing.min_transfer_usdc must not be negative")
	}
	switch c.Trading.Venue {
	case "paper":
	case "live":
		if c.Exchange.APIBase == "" || c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			return fmt.Errorf("live venue requires exchange.api_base, api_key and api_secret")
		}
	default:
		return fmt.Errorf("trading.venue must be paper or live, got %q", c.Trading.Venue)
	}
	return nil
}
