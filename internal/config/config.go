package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	PrivateKey        string `yaml:"private_key"`
	APIKey            string `yaml:"api_key"`
	APISecret         string `yaml:"api_secret"`
	APIPassphrase     string `yaml:"api_passphrase"`
	BuilderKey        string `yaml:"builder_key"`
	BuilderSecret     string `yaml:"builder_secret"`
	BuilderPassphrase string `yaml:"builder_passphrase"`

	ScanInterval        time.Duration `yaml:"scan_interval"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	BuilderSyncInterval time.Duration `yaml:"builder_sync_interval"`
	DryRun              bool          `yaml:"dry_run"`
	TradingMode         string        `yaml:"trading_mode"`
	LogLevel            string        `yaml:"log_level"`
	DataDir             string        `yaml:"data_dir"`

	// Assets is the set of crypto assets C1's PriceCache ingests ticks
	// for and C5's signal engine evaluates. Four supported: bitcoin,
	// ethereum, solana, xrp.
	Assets []string `yaml:"assets"`

	// Windows is the literal, operator-maintained list of currently
	// live "Up or Down" markets to trade. Populating this list is a
	// deployment/ops concern, not an engine component: nothing in this
	// repo scans Gamma or guesses slug patterns to discover markets.
	Windows []WindowConfig `yaml:"windows"`

	Risk     RiskConfig     `yaml:"risk"`
	Paper    PaperConfig    `yaml:"paper"`
	Telegram TelegramConfig `yaml:"telegram"`
	API      APIConfig      `yaml:"api"`
	Killshot KillshotConfig `yaml:"killshot"`
}

// WindowConfig is one statically configured "Up or Down" market
// instance: which window it is, which asset it tracks, and its two
// outcome token IDs. Mirrors windowtracker.DiscoveredWindow's shape.
type WindowConfig struct {
	MarketID    string `yaml:"market_id"`
	Question    string `yaml:"question"`
	Asset       string `yaml:"asset"`
	UpTokenID   string `yaml:"up_token_id"`
	DownTokenID string `yaml:"down_token_id"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// APIConfig now gates internal/metrics's Prometheus scrape endpoint
// instead of a dashboard HTTP surface — the dashboard API is an
// explicit Non-goal, but the addr/enabled toggle shape carries over.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type PaperConfig struct {
	InitialBalanceUSDC float64 `yaml:"initial_balance_usdc"`
	FeeBps             float64 `yaml:"fee_bps"`
	SlippageBps        float64 `yaml:"slippage_bps"`
	AllowShort         bool    `yaml:"allow_short"`
}

type RiskConfig struct {
	MaxOpenOrders           int           `yaml:"max_open_orders"`
	MaxDailyLossUSDC        float64       `yaml:"max_daily_loss_usdc"`
	MaxDailyLossPct         float64       `yaml:"max_daily_loss_pct"`
	AccountCapitalUSDC      float64       `yaml:"account_capital_usdc"`
	MaxPositionPerMarket    float64       `yaml:"max_position_per_market"`
	EmergencyStop           bool          `yaml:"emergency_stop"`
	StopLossPerMarket       float64       `yaml:"stop_loss_per_market"`
	MaxDrawdownPct          float64       `yaml:"max_drawdown_pct"`
	RiskSyncInterval        time.Duration `yaml:"risk_sync_interval"`
	MaxConsecutiveLosses    int           `yaml:"max_consecutive_losses"`
	ConsecutiveLossCooldown time.Duration `yaml:"consecutive_loss_cooldown"`

	MinEdgePct             float64 `yaml:"min_edge_pct"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	MaxTotalExposureUSDC   float64 `yaml:"max_total_exposure_usdc"`
}

// KillshotConfig tunes the C10 late-window direction snipe, kept
// separate from Risk/Paper since it trades independently of the main
// signal-engine path. Mirrors original_source/killshot/config.py.
type KillshotConfig struct {
	Enabled            bool          `yaml:"enabled"`
	DryRun             bool          `yaml:"dry_run"`
	Assets             []string      `yaml:"assets"`
	MaxBetUSD          float64       `yaml:"max_bet_usd"`
	DailyLossCapUSD    float64       `yaml:"daily_loss_cap_usd"`
	DirectionThreshold float64       `yaml:"direction_threshold"`
	WindowSeconds      time.Duration `yaml:"window_seconds"`
	MinWindowSeconds   time.Duration `yaml:"min_window_seconds"`
	BookPriceFloor     float64       `yaml:"book_price_floor"`
	TickInterval       time.Duration `yaml:"tick_interval"`
	SkipCooldown       time.Duration `yaml:"skip_cooldown"`
	PriceMaxAge        time.Duration `yaml:"price_max_age"`
}

func Default() Config {
	return Config{
		ScanInterval:        10 * time.Second,
		HeartbeatInterval:   30 * time.Second,
		BuilderSyncInterval: 10 * time.Minute,
		DryRun:              true,
		TradingMode:         "paper",
		LogLevel:            "info",
		DataDir:             "data",
		Assets:              []string{"bitcoin", "ethereum", "solana", "xrp"},
		Risk: RiskConfig{
			MaxOpenOrders:           6,
			MaxDailyLossUSDC:        0,
			MaxDailyLossPct:         0.02,
			AccountCapitalUSDC:      1000,
			MaxPositionPerMarket:    3,
			StopLossPerMarket:       1,
			MaxDrawdownPct:          0.30,
			RiskSyncInterval:        5 * time.Second,
			MaxConsecutiveLosses:    3,
			ConsecutiveLossCooldown: 30 * time.Minute,
			MinEdgePct:              5,
			MaxConcurrentPositions:  6,
			MaxTotalExposureUSDC:    150,
		},
		Paper: PaperConfig{
			InitialBalanceUSDC: 1000,
			FeeBps:             10,
			SlippageBps:        10,
			AllowShort:         true,
		},
		API: APIConfig{
			Addr: ":8080",
		},
		Killshot: KillshotConfig{
			Enabled:            true,
			DryRun:             true,
			Assets:             []string{"bitcoin"},
			MaxBetUSD:          5,
			DailyLossCapUSD:    15,
			DirectionThreshold: 0.0010,
			WindowSeconds:      60 * time.Second,
			MinWindowSeconds:   10 * time.Second,
			BookPriceFloor:     0.25,
			TickInterval:       100 * time.Millisecond,
			SkipCooldown:       time.Second,
			PriceMaxAge:        15 * time.Second,
		},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() {
	if v := os.Getenv("POLYMARKET_PK"); v != "" {
		c.PrivateKey = v
	}
	if v := os.Getenv("POLYMARKET_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("POLYMARKET_API_SECRET"); v != "" {
		c.APISecret = v
	}
	if v := os.Getenv("POLYMARKET_API_PASSPHRASE"); v != "" {
		c.APIPassphrase = v
	}
	if v := os.Getenv("BUILDER_KEY"); v != "" {
		c.BuilderKey = v
	}
	if v := os.Getenv("BUILDER_SECRET"); v != "" {
		c.BuilderSecret = v
	}
	if v := os.Getenv("BUILDER_PASSPHRASE"); v != "" {
		c.BuilderPassphrase = v
	}
	if v := os.Getenv("TRADER_DRY_RUN"); v != "" {
		c.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
	if v := strings.TrimSpace(os.Getenv("TRADER_TRADING_MODE")); v != "" {
		c.TradingMode = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("TRADER_PAPER_ALLOW_SHORT")); v != "" {
		c.Paper.AllowShort = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("KILLSHOT_DRY_RUN"); v != "" {
		c.Killshot.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("KILLSHOT_ENABLED"); v != "" {
		c.Killshot.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
}
