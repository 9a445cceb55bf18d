package config

import (
	"fmt"
	"strings"

	"github.com/train-control/tcc/internal/adapter"
)

// Validate enforces configuration ranges.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := ValidateTiming(&cfg.Timing); err != nil {
		return fmt.Errorf("timing validation failed: %w", err)
	}

	if !cfg.CruiseSpeed().Valid() {
		return fmt.Errorf("speed.cruise must be within [%d, %d], got %d", adapter.SpeedMin, adapter.SpeedMax, cfg.Speed.Cruise)
	}

	if _, err := cfg.DefaultSteering(); err != nil {
		return err
	}

	if cfg.Decoder.MaxSequenceLength < 2 {
		return fmt.Errorf("decoder.max_sequence_length must be >= 2, got %d", cfg.Decoder.MaxSequenceLength)
	}

	if _, ok := adapter.VendorErrorMappings[cfg.Vehicle.Vendor]; !ok {
		return fmt.Errorf("vehicle.vendor %q has no error mapping table", cfg.Vehicle.Vendor)
	}
	if cfg.Vehicle.Adapter != "sim" {
		return fmt.Errorf("vehicle.adapter %q is not supported", cfg.Vehicle.Adapter)
	}

	if cfg.Programs.Watch && cfg.Programs.File == "" {
		return fmt.Errorf("programs.watch requires programs.file")
	}

	if err := validateAudit(&cfg.Audit); err != nil {
		return fmt.Errorf("audit validation failed: %w", err)
	}

	if cfg.API.Enabled && strings.TrimSpace(cfg.API.Addr) == "" {
		return fmt.Errorf("api.addr is required when the API is enabled")
	}

	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" && cfg.Auth.PublicKeyFile == "" {
		return fmt.Errorf("auth requires auth.hmac_secret or auth.public_key_file")
	}

	if err := cfg.Logging.Validate(); err != nil {
		return err
	}

	if cfg.Simulator.StepInterval <= 0 {
		return fmt.Errorf("simulator.step_interval must be positive, got %v", cfg.Simulator.StepInterval)
	}
	if cfg.Simulator.SplitEvery < 0 {
		return fmt.Errorf("simulator.split_every must be non-negative, got %d", cfg.Simulator.SplitEvery)
	}

	return nil
}

// ValidateTiming enforces timing rules.
func ValidateTiming(config *TimingConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if config.ScanTimeout <= 0 {
		return fmt.Errorf("scan timeout must be positive, got %v", config.ScanTimeout)
	}
	if config.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", config.PollInterval)
	}
	if config.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive, got %v", config.CommandTimeout)
	}
	if config.DisconnectTimeout <= 0 {
		return fmt.Errorf("disconnect timeout must be positive, got %v", config.DisconnectTimeout)
	}

	if err := validateHeartbeat(config); err != nil {
		return fmt.Errorf("heartbeat validation failed: %w", err)
	}

	if config.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", config.EventBufferSize)
	}
	if config.EventBufferRetention <= 0 {
		return fmt.Errorf("event buffer retention must be positive, got %v", config.EventBufferRetention)
	}

	return nil
}

// validateHeartbeat validates heartbeat timing parameters.
func validateHeartbeat(config *TimingConfig) error {
	if config.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", config.HeartbeatInterval)
	}

	// Jitter must be non-negative and at most half the interval.
	maxJitter := config.HeartbeatInterval / 2
	if config.HeartbeatJitter < 0 {
		return fmt.Errorf("heartbeat jitter must be non-negative, got %v", config.HeartbeatJitter)
	}
	if config.HeartbeatJitter > maxJitter {
		return fmt.Errorf("heartbeat jitter %v exceeds 50%% of interval %v", config.HeartbeatJitter, config.HeartbeatInterval)
	}

	return nil
}

func validateAudit(a *AuditConfig) error {
	if a.Path == "" {
		return nil
	}
	if a.MaxSizeMB <= 0 {
		return fmt.Errorf("max size must be positive, got %d", a.MaxSizeMB)
	}
	if a.MaxBackups < 0 {
		return fmt.Errorf("max backups must be non-negative, got %d", a.MaxBackups)
	}
	if a.MaxAgeDays < 0 {
		return fmt.Errorf("max age must be non-negative, got %d", a.MaxAgeDays)
	}
	return nil
}
