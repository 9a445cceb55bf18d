package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/train-control/tcc/internal/adapter"
	"github.com/train-control/tcc/internal/logging"
)

// Config is the complete runtime configuration.
type Config struct {
	Timing    TimingConfig    `koanf:"timing"`
	Vehicle   VehicleConfig   `koanf:"vehicle"`
	Speed     SpeedConfig     `koanf:"speed"`
	Steering  SteeringConfig  `koanf:"steering"`
	Decoder   DecoderConfig   `koanf:"decoder"`
	Programs  ProgramsConfig  `koanf:"programs"`
	Audit     AuditConfig     `koanf:"audit"`
	API       APIConfig       `koanf:"api"`
	Auth      AuthConfig      `koanf:"auth"`
	Logging   logging.Config  `koanf:"logging"`
	Simulator SimulatorConfig `koanf:"simulator"`
}

// VehicleConfig selects the vehicle and its error table.
type VehicleConfig struct {
	// Vendor selects the error mapping table.
	Vendor string `koanf:"vendor"`
	// Adapter is "sim" for the simulated track.
	Adapter string `koanf:"adapter"`
}

// SpeedConfig holds the cruise level used by START, FORWARD and BACKWARD.
type SpeedConfig struct {
	Cruise int `koanf:"cruise"`
}

// SteeringConfig holds the initial default decision.
type SteeringConfig struct {
	Default string `koanf:"default"`
}

// DecoderConfig controls color sequence decoding.
type DecoderConfig struct {
	MaxSequenceLength int  `koanf:"max_sequence_length"`
	IgnoreMarks       bool `koanf:"ignore_marks"`
}

// ProgramsConfig points at the programs file.
type ProgramsConfig struct {
	File  string `koanf:"file"`
	Watch bool   `koanf:"watch"`
}

// AuditConfig controls the audit log and its rotation.
type AuditConfig struct {
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// APIConfig controls the HTTP control API.
type APIConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// AuthConfig controls bearer token verification on the API.
type AuthConfig struct {
	Enabled bool `koanf:"enabled"`
	// HMACSecret enables HS256 tokens.
	HMACSecret string `koanf:"hmac_secret"`
	// PublicKeyFile enables RS256 tokens signed by the matching private key.
	PublicKeyFile string `koanf:"public_key_file"`
}

// SimulatorConfig drives the simulated track.
type SimulatorConfig struct {
	Name string `koanf:"name"`
	// Track is the comma-separated color loop read while moving.
	Track string `koanf:"track"`
	// StepInterval is the time per reading at speed level 1.
	StepInterval time.Duration `koanf:"step_interval"`
	// SplitEvery emits a split after this many readings. Zero disables splits.
	SplitEvery int `koanf:"split_every"`
	// ScanDelay simulates discovery time.
	ScanDelay time.Duration `koanf:"scan_delay"`
}

// Baseline returns the default configuration.
func Baseline() *Config {
	return &Config{
		Timing: *LoadTimingBaseline(),
		Vehicle: VehicleConfig{
			Vendor:  "intelino",
			Adapter: "sim",
		},
		Speed:    SpeedConfig{Cruise: 2},
		Steering: SteeringConfig{Default: "straight"},
		Decoder:  DecoderConfig{MaxSequenceLength: 16},
		Audit: AuditConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		API: APIConfig{
			Enabled:      true,
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0,
		},
		Logging: logging.Config{Level: "info", Format: "console"},
		Simulator: SimulatorConfig{
			Name:         "intelino-sim",
			Track:        "white, black, cyan, red, black, white, red, yellow, black, white, black, red, cyan, black",
			StepInterval: 400 * time.Millisecond,
			SplitEvery:   7,
			ScanDelay:    200 * time.Millisecond,
		},
	}
}

// DefaultSteering parses Steering.Default.
func (c *Config) DefaultSteering() (adapter.Steering, error) {
	switch strings.ToLower(strings.TrimSpace(c.Steering.Default)) {
	case "straight", "":
		return adapter.SteeringStraight, nil
	case "left":
		return adapter.SteeringLeft, nil
	case "right":
		return adapter.SteeringRight, nil
	default:
		return adapter.SteeringStraight, fmt.Errorf("steering.default must be left, right or straight, got %q", c.Steering.Default)
	}
}

// CruiseSpeed returns the cruise level.
func (c *Config) CruiseSpeed() adapter.SpeedLevel {
	return adapter.SpeedLevel(c.Speed.Cruise)
}
