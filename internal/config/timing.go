package config

import (
	"time"
)

// TimingConfig groups session and telemetry timing parameters.
type TimingConfig struct {
	// Session lifecycle
	ScanTimeout       time.Duration `koanf:"scan_timeout"`
	PollInterval      time.Duration `koanf:"poll_interval"`
	CommandTimeout    time.Duration `koanf:"command_timeout"`
	DisconnectTimeout time.Duration `koanf:"disconnect_timeout"`

	// Telemetry heartbeat
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	HeartbeatJitter   time.Duration `koanf:"heartbeat_jitter"`

	// Telemetry replay buffer
	EventBufferSize      int           `koanf:"event_buffer_size"`
	EventBufferRetention time.Duration `koanf:"event_buffer_retention"`
}

// LoadTimingBaseline returns the baseline timing values.
func LoadTimingBaseline() *TimingConfig {
	return &TimingConfig{
		ScanTimeout:       10 * time.Second,
		PollInterval:      500 * time.Millisecond,
		CommandTimeout:    2 * time.Second,
		DisconnectTimeout: 3 * time.Second,

		HeartbeatInterval: 15 * time.Second,
		HeartbeatJitter:   2 * time.Second,

		EventBufferSize:      50,
		EventBufferRetention: 1 * time.Hour,
	}
}
