package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Drix10/hypothesis-arena/decision"
	"github.com/Drix10/hypothesis-arena/journal"
	"github.com/Drix10/hypothesis-arena/market"
	"github.com/Drix10/hypothesis-arena/risk"
)

// Config is the complete arena configuration.
type Config struct {
	Agents   []AgentConfig       `json:"agents" yaml:"agents"`
	Policy   PolicyConfig        `json:"policy" yaml:"policy"`
	Decision decision.Thresholds `json:"decision" yaml:"decision"`
	Risk     RiskConfig          `json:"risk" yaml:"risk"`
	Market   MarketConfig        `json:"market" yaml:"market"`
	Journal  JournalConfig       `json:"journal" yaml:"journal"`
	Logging  LoggingConfig       `json:"logging" yaml:"logging"`
}

// AgentConfig seeds one trading agent.
type AgentConfig struct {
	ID          string  `json:"id" yaml:"id"`
	Methodology string  `json:"methodology" yaml:"methodology"`
	InitialCash float64 `json:"initial_cash" yaml:"initial_cash"`
}

// PolicyConfig contains position sizing limits. Percent fields use the
// 0..100 scale.
type PolicyConfig struct {
	MinTradeValue    float64 `json:"min_trade_value" yaml:"min_trade_value"`
	MaxPositionPct   float64 `json:"max_position_pct" yaml:"max_position_pct"`
	MaxDeployedPct   float64 `json:"max_deployed_pct" yaml:"max_deployed_pct"`
	CashReservePct   float64 `json:"cash_reserve_pct" yaml:"cash_reserve_pct"`
	MaxOpenPositions int     `json:"max_open_positions" yaml:"max_open_positions"`
}

// ToPolicy converts the plain config numbers into the sizing policy.
func (pc PolicyConfig) ToPolicy() risk.Policy {
	return risk.Policy{
		MinTradeValue:    decimal.NewFromFloat(pc.MinTradeValue),
		MaxPositionPct:   pc.MaxPositionPct,
		MaxDeployedPct:   pc.MaxDeployedPct,
		CashReservePct:   pc.CashReservePct,
		MaxOpenPositions: pc.MaxOpenPositions,
	}
}

// RiskConfig contains the drawdown circuit breakers.
type RiskConfig struct {
	PauseDrawdownPct     float64 `json:"pause_drawdown_pct" yaml:"pause_drawdown_pct"`
	LiquidateDrawdownPct float64 `json:"liquidate_drawdown_pct" yaml:"liquidate_drawdown_pct"`
}

// MarketConfig contains quote screening and session parameters.
type MarketConfig struct {
	MaxQuoteAge  string  `json:"max_quote_age,omitempty" yaml:"max_quote_age,omitempty"` // e.g. "5m", "1h"
	MaxJumpPct   float64 `json:"max_jump_pct,omitempty" yaml:"max_jump_pct,omitempty"`
	Hours        string  `json:"hours" yaml:"hours"` // "newyork" or "always"
	EnforceHours bool    `json:"enforce_hours" yaml:"enforce_hours"`
}

// ParseMaxQuoteAge converts the age string to a duration. Empty disables
// the staleness check.
func (mc MarketConfig) ParseMaxQuoteAge() (time.Duration, error) {
	if mc.MaxQuoteAge == "" {
		return 0, nil
	}
	return time.ParseDuration(mc.MaxQuoteAge)
}

// BuildValidator assembles the quote validator from the config.
func (mc MarketConfig) BuildValidator() (market.Validator, error) {
	age, err := mc.ParseMaxQuoteAge()
	if err != nil {
		return market.Validator{}, fmt.Errorf("market.max_quote_age: %w", err)
	}
	return market.Validator{MaxAge: age, MaxJumpPct: mc.MaxJumpPct}, nil
}

// BuildHours resolves the configured trading session.
func (mc MarketConfig) BuildHours() (market.Hours, error) {
	switch mc.Hours {
	case "", "always":
		return market.AlwaysOpen(), nil
	case "newyork":
		return market.NewYorkHours()
	default:
		return market.Hours{}, fmt.Errorf("unknown market.hours %q", mc.Hours)
	}
}

// JournalConfig contains persistence parameters.
type JournalConfig struct {
	Type      string            `json:"type" yaml:"type"` // "sqlite", "csv" or "none"
	DBPath    string            `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	TradesCSV string            `json:"trades_csv,omitempty" yaml:"trades_csv,omitempty"`
	Retention journal.Retention `json:"retention" yaml:"retention"`
}

// LoggingConfig contains structured logging parameters.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// LoadFromFile loads configuration from a file (JSON or YAML based on
// content; YAML is tried first).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on
// extension).
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d].id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
		if a.InitialCash <= 0 {
			return fmt.Errorf("agents[%d].initial_cash must be positive", i)
		}
	}

	if err := c.Policy.ToPolicy().Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	if c.Risk.PauseDrawdownPct < 0 || c.Risk.LiquidateDrawdownPct < 0 {
		return fmt.Errorf("risk drawdown thresholds must not be negative")
	}
	if c.Risk.LiquidateDrawdownPct > 0 && c.Risk.PauseDrawdownPct >= c.Risk.LiquidateDrawdownPct {
		return fmt.Errorf("risk.pause_drawdown_pct must be below liquidate_drawdown_pct")
	}

	if _, err := c.Market.BuildValidator(); err != nil {
		return err
	}
	if _, err := c.Market.BuildHours(); err != nil {
		return err
	}

	switch c.Journal.Type {
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite type")
		}
	case "csv":
		if c.Journal.TradesCSV == "" {
			return fmt.Errorf("journal.trades_csv required for csv type")
		}
	case "none":
	default:
		return fmt.Errorf("journal.type must be 'sqlite', 'csv' or 'none'")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be 'text' or 'json'")
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Agents: []AgentConfig{
			{ID: "momentum-1", Methodology: "momentum", InitialCash: 100000},
			{ID: "value-1", Methodology: "value", InitialCash: 100000},
		},
		Policy: PolicyConfig{
			MinTradeValue:    500,
			MaxPositionPct:   20,
			MaxDeployedPct:   80,
			CashReservePct:   10,
			MaxOpenPositions: 10,
		},
		Decision: decision.DefaultThresholds(),
		Risk: RiskConfig{
			PauseDrawdownPct:     20,
			LiquidateDrawdownPct: 40,
		},
		Market: MarketConfig{
			MaxQuoteAge:  "15m",
			MaxJumpPct:   50,
			Hours:        "always",
			EnforceHours: false,
		},
		Journal: JournalConfig{
			Type:      "sqlite",
			DBPath:    "./arena.db",
			Retention: journal.DefaultRetention(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
