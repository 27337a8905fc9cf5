package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete daemon configuration, loaded from HCL.
type Config struct {
	Server ServerSettings  `hcl:"server,block"`
	Table  *TableSettings  `hcl:"table,block"`
	Sweep  *SweepSettings  `hcl:"sweep,block"`
	Ledger *LedgerSettings `hcl:"ledger,block"`
}

// ServerSettings contains listener and logging configuration.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// TableSettings are the house rules applied to every new table. Timeouts are
// Go duration strings such as "30s".
type TableSettings struct {
	MaxPlayers  int    `hcl:"max_players,optional"`
	MinBet      int64  `hcl:"min_bet,optional"`
	MaxBet      int64  `hcl:"max_bet,optional"`
	TurnTimeout string `hcl:"turn_timeout,optional"`
	WaitTimeout string `hcl:"wait_timeout,optional"`
}

// SweepSettings controls how often the timeout sweeps run.
type SweepSettings struct {
	TurnInterval string `hcl:"turn_interval,optional"`
	WaitInterval string `hcl:"wait_interval,optional"`
}

// LedgerSettings selects the balance store.
type LedgerSettings struct {
	Backend         string `hcl:"backend,optional"`
	Path            string `hcl:"path,optional"`
	StartingBalance int64  `hcl:"starting_balance,optional"`
}

const (
	defaultAddress      = "localhost"
	defaultPort         = 8080
	defaultLogLevel     = "info"
	defaultMinBet       = 10
	defaultMaxBet       = 1_000_000
	defaultTurnTimeout  = "30s"
	defaultWaitTimeout  = "300s"
	defaultTurnInterval = "5s"
	defaultWaitInterval = "300s"
	defaultBackend      = "memory"
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadConfig loads configuration from an HCL file. A missing file yields the
// defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaultLogLevel
	}

	if c.Table == nil {
		c.Table = &TableSettings{}
	}
	if c.Table.MaxPlayers == 0 {
		c.Table.MaxPlayers = 7
	}
	if c.Table.MinBet == 0 {
		c.Table.MinBet = defaultMinBet
	}
	if c.Table.MaxBet == 0 {
		c.Table.MaxBet = defaultMaxBet
	}
	if c.Table.TurnTimeout == "" {
		c.Table.TurnTimeout = defaultTurnTimeout
	}
	if c.Table.WaitTimeout == "" {
		c.Table.WaitTimeout = defaultWaitTimeout
	}

	if c.Sweep == nil {
		c.Sweep = &SweepSettings{}
	}
	if c.Sweep.TurnInterval == "" {
		c.Sweep.TurnInterval = defaultTurnInterval
	}
	if c.Sweep.WaitInterval == "" {
		c.Sweep.WaitInterval = defaultWaitInterval
	}

	if c.Ledger == nil {
		c.Ledger = &LedgerSettings{}
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = defaultBackend
	}
	if c.Ledger.StartingBalance == 0 {
		c.Ledger.StartingBalance = 1000
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Table.MaxPlayers < 1 || c.Table.MaxPlayers > 7 {
		return fmt.Errorf("table: max players must be between 1 and 7")
	}
	if c.Table.MinBet <= 0 {
		return fmt.Errorf("table: min bet must be positive")
	}
	if c.Table.MaxBet < c.Table.MinBet {
		return fmt.Errorf("table: max bet must not be less than min bet")
	}

	durations := []struct{ name, value string }{
		{"table.turn_timeout", c.Table.TurnTimeout},
		{"table.wait_timeout", c.Table.WaitTimeout},
		{"sweep.turn_interval", c.Sweep.TurnInterval},
		{"sweep.wait_interval", c.Sweep.WaitInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s: must be positive", d.name)
		}
	}

	switch c.Ledger.Backend {
	case "memory":
	case "file", "sqlite":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger: %s backend requires a path", c.Ledger.Backend)
		}
	default:
		return fmt.Errorf("ledger: unknown backend %q", c.Ledger.Backend)
	}
	if c.Ledger.StartingBalance < 0 {
		return errors.New("ledger: starting balance must not be negative")
	}

	return nil
}

// ServerAddress returns the full listen address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// ServiceConfig converts the validated file settings into service options.
func (c *Config) ServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxPlayers:        c.Table.MaxPlayers,
		MinBet:            c.Table.MinBet,
		MaxBet:            c.Table.MaxBet,
		TurnTimeout:       mustDuration(c.Table.TurnTimeout),
		WaitTimeout:       mustDuration(c.Table.WaitTimeout),
		TurnSweepInterval: mustDuration(c.Sweep.TurnInterval),
		WaitSweepInterval: mustDuration(c.Sweep.WaitInterval),
	}
}

// mustDuration parses a duration that Validate has already accepted.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
