package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

type Config struct {
	App struct {
		Name     string `toml:"name"`
		LogLevel string `toml:"log_level"`
	} `toml:"app"`

	Feed struct {
		Enabled bool     `toml:"enabled"`
		Name    string   `toml:"name"`
		Symbols []string `toml:"symbols"`

		// {symbol} / {stream} 占位符
		URLTemplate       string `toml:"url_template"`
		StreamTemplate    string `toml:"stream_template"`
		SubscribeTemplate string `toml:"subscribe_template"` // 为空时不发送订阅消息
		LowerCaseSymbol   bool   `toml:"lower_case_symbol"`

		MaxRetries     int `toml:"max_retries"`
		RetryDelayMs   int `toml:"retry_delay_ms"`
		DialTimeoutSec int `toml:"dial_timeout_sec"`
		PingEverySec   int `toml:"ping_every_sec"`
		ReadTimeoutSec int `toml:"read_timeout_sec"`
	} `toml:"feed"`

	Pricing struct {
		SpreadRatio   string            `toml:"spread_ratio"`
		Quotes        []string          `toml:"quotes"`
		CrossPriority []string          `toml:"cross_priority"`
		CrossFallback string            `toml:"cross_fallback"`
		Aliases       map[string]string `toml:"aliases"`
	} `toml:"pricing"`

	Anchor struct {
		Base        string   `toml:"base"`
		Quote       string   `toml:"quote"`
		Equivalents []string `toml:"equivalents"`
		Fallback    string   `toml:"fallback"`
		RefreshSec  int      `toml:"refresh_sec"`
	} `toml:"anchor"`

	Reference struct {
		HTTPBaseURL    string            `toml:"http_base_url"`
		HTTPTimeoutSec int               `toml:"http_timeout_sec"`
		RefreshSec     int               `toml:"refresh_sec"`
		Bootstrap      bool              `toml:"bootstrap"`
		MaxAgeDays     int               `toml:"max_age_days"`
		Assets         []ReferenceAsset  `toml:"assets"`
		AssetIDs       map[string]string `toml:"asset_ids"` // 代码 -> 哈希键中使用的资产 id
	} `toml:"reference"`

	Redis struct {
		Enabled        bool   `toml:"enabled"`
		Addr           string `toml:"addr"`
		Password       string `toml:"password"`
		DB             int    `toml:"db"`
		Prefix         string `toml:"prefix"`
		TTLSeconds     int    `toml:"ttl_seconds"`
		MarketWatchKey string `toml:"market_watch_key"`
		HighLowChannel string `toml:"highlow_channel"`
		AlertChannel   string `toml:"alert_channel"`
		MirrorEverySec int    `toml:"mirror_every_sec"`
	} `toml:"redis"`

	SQLite struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"sqlite"`

	Postgres struct {
		Enabled bool   `toml:"enabled"`
		DSN     string `toml:"dsn"`
	} `toml:"postgres"`

	Console struct {
		Enabled     bool     `toml:"enabled"`
		IntervalSec int      `toml:"interval_sec"`
		Symbols     []string `toml:"symbols"`
	} `toml:"console"`
}

type ReferenceAsset struct {
	Base     string `toml:"base"`
	Fallback string `toml:"fallback"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	applyDefaults(&cfg, md)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode 从字符串解析，测试和内嵌配置使用
func Decode(data string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, err
	}
	applyDefaults(&cfg, md)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config, md toml.MetaData) {
	if cfg.App.Name == "" {
		cfg.App.Name = "xprice"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}

	f := &cfg.Feed
	if f.Name == "" {
		f.Name = "binance"
	}
	// url_template / stream_template 为空时由 pricefeed 预设补齐
	// max_retries = 0 表示首次失败即放弃，只有未配置时才取默认值
	if !md.IsDefined("feed", "max_retries") {
		f.MaxRetries = 5
	}
	if f.RetryDelayMs <= 0 {
		f.RetryDelayMs = 1000
	}
	if f.DialTimeoutSec <= 0 {
		f.DialTimeoutSec = 10
	}
	if f.PingEverySec <= 0 {
		f.PingEverySec = 20
	}
	if f.ReadTimeoutSec <= 0 {
		f.ReadTimeoutSec = 60
	}

	p := &cfg.Pricing
	if p.SpreadRatio == "" {
		p.SpreadRatio = "0"
	}
	if len(p.Quotes) == 0 {
		p.Quotes = []string{"USDT", "VNDC", "VNST"}
	}
	if len(p.CrossPriority) == 0 {
		p.CrossPriority = []string{"VNST", "VNDC", "USDT"}
	}
	if p.CrossFallback == "" {
		p.CrossFallback = "USDT"
	}

	a := &cfg.Anchor
	if a.Base == "" {
		a.Base = "USDT"
	}
	if a.Quote == "" {
		a.Quote = "VNDC"
	}
	if a.Equivalents == nil {
		a.Equivalents = []string{"VNST"}
	}
	if a.Fallback == "" {
		a.Fallback = "23400"
	}
	if a.RefreshSec <= 0 {
		a.RefreshSec = 60
	}

	r := &cfg.Reference
	if r.HTTPTimeoutSec <= 0 {
		r.HTTPTimeoutSec = 10
	}
	if r.RefreshSec <= 0 {
		r.RefreshSec = 3
	}
	if r.MaxAgeDays <= 0 {
		r.MaxAgeDays = 7
	}
	if r.Assets == nil {
		r.Assets = []ReferenceAsset{
			{Base: "NAO", Fallback: "1400"},
			{Base: "NAMI", Fallback: "360"},
		}
	}

	rd := &cfg.Redis
	if rd.Addr == "" {
		rd.Addr = "127.0.0.1:6379"
	}
	if rd.Prefix == "" {
		rd.Prefix = "xprice"
	}
	if rd.TTLSeconds <= 0 {
		rd.TTLSeconds = 60
	}
	if rd.MarketWatchKey == "" {
		rd.MarketWatchKey = "market_watch"
	}
	if rd.MirrorEverySec <= 0 {
		rd.MirrorEverySec = 5
	}

	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "data/xprice.db"
	}
	if cfg.Console.IntervalSec <= 0 {
		cfg.Console.IntervalSec = 60
	}
}

func validate(cfg *Config) error {
	cfg.Feed.Name = strings.ToLower(strings.TrimSpace(cfg.Feed.Name))
	cfg.Feed.Symbols = normalizeSymbols(cfg.Feed.Symbols)
	cfg.Console.Symbols = normalizeSymbols(cfg.Console.Symbols)
	cfg.Pricing.Quotes = normalizeSymbols(cfg.Pricing.Quotes)
	cfg.Pricing.CrossPriority = normalizeSymbols(cfg.Pricing.CrossPriority)
	cfg.Anchor.Equivalents = normalizeSymbols(cfg.Anchor.Equivalents)
	cfg.Anchor.Base = strings.ToUpper(strings.TrimSpace(cfg.Anchor.Base))
	cfg.Anchor.Quote = strings.ToUpper(strings.TrimSpace(cfg.Anchor.Quote))

	if cfg.Feed.Enabled {
		if len(cfg.Feed.Symbols) == 0 {
			return errors.New("feed.symbols is empty but feed enabled")
		}
		if cfg.Feed.URLTemplate != "" && !strings.Contains(cfg.Feed.URLTemplate, "{") && cfg.Feed.SubscribeTemplate == "" {
			return errors.New("feed.url_template has no placeholder and no subscribe_template")
		}
	}

	if cfg.Feed.MaxRetries < 0 {
		return fmt.Errorf("feed.max_retries %d must not be negative", cfg.Feed.MaxRetries)
	}

	spread, err := decimal.NewFromString(cfg.Pricing.SpreadRatio)
	if err != nil {
		return fmt.Errorf("pricing.spread_ratio: %w", err)
	}
	if spread.IsNegative() || spread.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("pricing.spread_ratio %s out of range [0,1)", spread)
	}

	if p, err := decimal.NewFromString(cfg.Anchor.Fallback); err != nil || !p.IsPositive() {
		return fmt.Errorf("anchor.fallback %q must be a positive number", cfg.Anchor.Fallback)
	}
	for i, a := range cfg.Reference.Assets {
		cfg.Reference.Assets[i].Base = strings.ToUpper(strings.TrimSpace(a.Base))
		if cfg.Reference.Assets[i].Base == "" {
			return fmt.Errorf("reference.assets[%d].base empty", i)
		}
		if a.Fallback == "" {
			a.Fallback = "0"
			cfg.Reference.Assets[i].Fallback = a.Fallback
		}
		if _, err := decimal.NewFromString(a.Fallback); err != nil {
			return fmt.Errorf("reference.assets[%d].fallback: %w", i, err)
		}
	}

	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	if cfg.Postgres.Enabled && strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return errors.New("postgres.dsn empty but enabled")
	}
	return nil
}

// SpreadRatio 已校验过，解析不会失败
func (c *Config) SpreadRatio() decimal.Decimal {
	return decimal.RequireFromString(c.Pricing.SpreadRatio)
}

func (c *Config) AnchorFallback() decimal.Decimal {
	return decimal.RequireFromString(c.Anchor.Fallback)
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Feed.RetryDelayMs) * time.Millisecond
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
