package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Sync    SyncConfig    `yaml:"sync"`
	Sources SourcesConfig `yaml:"sources"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type StoreConfig struct {
	Driver   string         `yaml:"driver"`
	Sqlite   SqliteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SqliteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type SyncConfig struct {
	// Count is the default backward-walk count (days walked = count+1).
	Count        int    `yaml:"count"`
	MaxWalk      int    `yaml:"max_walk"`
	IntervalSec  int    `yaml:"interval_sec"`
	UpsertPolicy string `yaml:"upsert_policy"`
	// VerboseEvents also persists skipped rows to sync_events.
	VerboseEvents bool `yaml:"verbose_events"`
}

type SourcesConfig struct {
	HTTP     HTTPConfig     `yaml:"http"`
	TWSE     TWSEConfig     `yaml:"twse"`
	Treasury TreasuryConfig `yaml:"treasury"`
	HTML     []HTMLSource   `yaml:"html"`
}

type HTTPConfig struct {
	TimeoutMs  int    `yaml:"timeout_ms"`
	MaxRetries int    `yaml:"max_retries"`
	PerMinute  int    `yaml:"per_minute"`
	Burst      int    `yaml:"burst"`
	UserAgent  string `yaml:"user_agent"`
}

type TWSEConfig struct {
	Enabled bool `yaml:"enabled"`
	// PriceURLs and FlowURLs are mirrors tried in order. {date} is
	// replaced with YYYYMMDD and {ts} with a cache buster.
	PriceURLs []string `yaml:"price_urls"`
	FlowURLs  []string `yaml:"flow_urls"`
}

type TreasuryConfig struct {
	Enabled bool     `yaml:"enabled"`
	Series  string   `yaml:"series"`
	URLs    []string `yaml:"urls"`
}

type HTMLSource struct {
	Series     string   `yaml:"series"`
	URLs       []string `yaml:"urls"`
	Class      string   `yaml:"class"`
	Columns    []string `yaml:"columns"`
	DateLayout string   `yaml:"date_layout"`
}

type NotifyConfig struct {
	Dingtalk DingtalkConfig `yaml:"dingtalk"`
}

type DingtalkConfig struct {
	Webhook      string `yaml:"webhook"`
	Secret       string `yaml:"secret"`
	TimeoutMs    int    `yaml:"timeout_ms"`
	OnlyProblems bool   `yaml:"only_problems"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info"},
		Store: StoreConfig{
			Driver: "sqlite",
			Sqlite: SqliteConfig{Path: "data/market.db"},
		},
		Sync: SyncConfig{
			Count:        0,
			MaxWalk:      366,
			UpsertPolicy: "unchanged",
		},
		Sources: SourcesConfig{
			HTTP: HTTPConfig{TimeoutMs: 10000, MaxRetries: 3, PerMinute: 20, Burst: 3},
			TWSE: TWSEConfig{
				Enabled:   true,
				PriceURLs: []string{"https://www.twse.com.tw/exchangeReport/MI_INDEX?response=json&type=ALL&date={date}&_={ts}"},
				FlowURLs:  []string{"https://www.twse.com.tw/fund/T86?response=json&selectType=ALL&date={date}&_={ts}"},
			},
			Treasury: TreasuryConfig{
				Enabled: true,
				Series:  "USTY",
				URLs:    []string{"https://www.treasury.gov/resource-center/data-chart-center/interest-rates/Datasets/yield.xml"},
			},
			HTML: []HTMLSource{
				{
					Series:  "DEBY",
					URLs:    []string{"https://www.investing.com/rates-bonds/germany-10-year-bond-yield-historical-data"},
					Class:   "historicalTbl",
					Columns: []string{"date", "close", "open", "high", "low", "-"},
				},
				{
					Series:  "DXY",
					URLs:    []string{"https://m.investing.com/indices/usdollar-historical-data"},
					Class:   "instHistoryTbl",
					Columns: []string{"date", "close", "open", "high", "low"},
				},
				{
					Series:  "MOO",
					URLs:    []string{"https://finance.yahoo.com/quote/MOO/history?p=MOO"},
					Columns: []string{"date", "open", "high", "low", "close", "-", "volume"},
				},
			},
		},
		Notify: NotifyConfig{
			Dingtalk: DingtalkConfig{TimeoutMs: 5000},
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv is Default with environment overrides, for runs without a file.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid PORT: %q", v)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("MARKETSYNC_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.Postgres.DSN = v
	}
	if v := os.Getenv("MARKETSYNC_SQLITE_PATH"); v != "" {
		cfg.Store.Sqlite.Path = v
	}
	if v := os.Getenv("DINGTALK_WEBHOOK"); v != "" {
		cfg.Notify.Dingtalk.Webhook = v
	}
	if v := os.Getenv("DINGTALK_SECRET"); v != "" {
		cfg.Notify.Dingtalk.Secret = v
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Sqlite.Path == "" {
			errs = append(errs, errors.New("store.sqlite.path is empty"))
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			errs = append(errs, errors.New("store.postgres.dsn is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not sqlite or postgres", c.Store.Driver))
	}
	if c.Sync.Count < 0 {
		errs = append(errs, fmt.Errorf("sync.count %d is negative", c.Sync.Count))
	}
	if c.Sync.MaxWalk <= 0 || c.Sync.Count > c.Sync.MaxWalk {
		errs = append(errs, fmt.Errorf("sync.max_walk %d must be positive and >= sync.count", c.Sync.MaxWalk))
	}
	if c.Sync.IntervalSec < 0 {
		errs = append(errs, fmt.Errorf("sync.interval_sec %d is negative", c.Sync.IntervalSec))
	}
	switch c.Sync.UpsertPolicy {
	case "", "unchanged", "filled":
	default:
		errs = append(errs, fmt.Errorf("sync.upsert_policy %q is not unchanged or filled", c.Sync.UpsertPolicy))
	}
	if c.Sources.TWSE.Enabled && len(c.Sources.TWSE.PriceURLs) == 0 && len(c.Sources.TWSE.FlowURLs) == 0 {
		errs = append(errs, errors.New("sources.twse enabled without urls"))
	}
	if c.Sources.Treasury.Enabled && len(c.Sources.Treasury.URLs) == 0 {
		errs = append(errs, errors.New("sources.treasury enabled without urls"))
	}
	for i, h := range c.Sources.HTML {
		if h.Series == "" || len(h.URLs) == 0 || len(h.Columns) == 0 {
			errs = append(errs, fmt.Errorf("sources.html[%d]: series, urls and columns are required", i))
			continue
		}
		hasDate := false
		for _, col := range h.Columns {
			if strings.TrimSpace(col) == "date" {
				hasDate = true
			}
		}
		if !hasDate {
			errs = append(errs, fmt.Errorf("sources.html[%d] %s: columns need a date entry", i, h.Series))
		}
	}
	return errors.Join(errs...)
}
