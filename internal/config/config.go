// Package config loads the runner's YAML configuration. Flags override the
// file; the file overrides defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"gridstone.dev/internal/spec"
)

type Config struct {
	// Server is the world's websocket endpoint.
	Server     string `yaml:"server"`
	ClientName string `yaml:"client_name"`
	// DataDir holds the test index database and run logs.
	DataDir string `yaml:"data_dir"`

	Tests   TestsConfig   `yaml:"tests"`
	Run     RunConfig     `yaml:"run"`
	Packing PackingConfig `yaml:"packing"`
	Index   IndexConfig   `yaml:"index"`
	Record  RecordConfig  `yaml:"record"`
}

type TestsConfig struct {
	Dir       string   `yaml:"dir"`
	Recursive bool     `yaml:"recursive"`
	Tags      []string `yaml:"tags,omitempty"`
}

type RunConfig struct {
	FailFast        bool `yaml:"fail_fast"`
	BreakAfterSetup bool `yaml:"break_after_setup"`
	// ActionDelayMs is slept between world writes, for watching a run live.
	ActionDelayMs int `yaml:"action_delay_ms"`
	// Report is one of summary, json, tap, junit.
	Report     string `yaml:"report"`
	ReportPath string `yaml:"report_path,omitempty"`
	// LogDir overrides DataDir/runlogs; empty disables run logs.
	LogDir     string `yaml:"log_dir,omitempty"`
	DisableLog bool   `yaml:"disable_log"`
}

type PackingConfig struct {
	Origin   [3]int `yaml:"origin,flow"`
	CellSize int    `yaml:"cell_size"`
	Margin   int    `yaml:"margin"`
}

type IndexConfig struct {
	Disable bool `yaml:"disable"`
	// Path overrides DataDir/index.sqlite.
	Path string `yaml:"path,omitempty"`
}

type RecordConfig struct {
	Radius int `yaml:"radius"`
	// PollIntervalMs drives the snapshot-diff fallback when the server does
	// not stream block changes.
	PollIntervalMs int `yaml:"poll_interval_ms"`
	// OutDir receives saved recordings.
	OutDir string `yaml:"out_dir,omitempty"`
}

// ReportFormats are the accepted run.report values.
var ReportFormats = []string{"summary", "json", "tap", "junit"}

// Load reads the config file at path, or returns defaults when path is
// empty.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Server:     "ws://127.0.0.1:7777/world",
		ClientName: "gridstone",
		DataDir:    "data",
		Tests: TestsConfig{
			Dir:       "tests",
			Recursive: true,
		},
		Run: RunConfig{
			Report: "summary",
		},
		Packing: PackingConfig{
			Origin:   [3]int{0, 64, 0},
			CellSize: 48,
			Margin:   2,
		},
		Record: RecordConfig{
			Radius:         16,
			PollIntervalMs: 250,
			OutDir:         "tests/recorded",
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.ClientName) == "" {
		c.ClientName = "gridstone"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "data"
	}
	if strings.TrimSpace(c.Tests.Dir) == "" {
		c.Tests.Dir = "tests"
	}
	if strings.TrimSpace(c.Run.Report) == "" {
		c.Run.Report = "summary"
	}
	if c.Packing.CellSize <= 0 {
		c.Packing.CellSize = 48
	}
	if c.Packing.Margin < 0 {
		c.Packing.Margin = 0
	}
	if c.Record.Radius <= 0 {
		c.Record.Radius = 16
	}
	if c.Record.PollIntervalMs <= 0 {
		c.Record.PollIntervalMs = 250
	}
	if strings.TrimSpace(c.Record.OutDir) == "" {
		c.Record.OutDir = "tests/recorded"
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return fmt.Errorf("server must not be empty")
	}
	if !strings.HasPrefix(c.Server, "ws://") && !strings.HasPrefix(c.Server, "wss://") {
		return fmt.Errorf("server %q must be a ws:// or wss:// URL", c.Server)
	}
	ok := false
	for _, f := range ReportFormats {
		if c.Run.Report == f {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("run.report %q must be one of %s", c.Run.Report, strings.Join(ReportFormats, ", "))
	}
	if c.Run.ActionDelayMs < 0 {
		return fmt.Errorf("run.action_delay_ms must be >= 0")
	}
	return nil
}

// PackOrigin returns the packing origin as a position.
func (c Config) PackOrigin() spec.Vec3i {
	return spec.Vec3i{X: c.Packing.Origin[0], Y: c.Packing.Origin[1], Z: c.Packing.Origin[2]}
}
