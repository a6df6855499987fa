package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/renameio/v2"
)

// LoadConfig reads and parses the block-session config. A missing file is
// treated as "not blocking" rather than an error — the front-end deletes
// or omits it between sessions (spec.md §7: missing optional inputs fall
// back to a safe default instead of failing the tick).
func LoadConfig() (*Config, error) {
	data, err := os.ReadFile(ConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", ConfigFile, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", ConfigFile, err)
	}
	return &cfg, nil
}

// LoadLockState reads the front-end's lock-state file. A missing file
// means no lock is in effect.
func LoadLockState() (*LockState, error) {
	data, err := os.ReadFile(LockStateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return &LockState{LockType: LockNone}, nil
		}
		return nil, fmt.Errorf("reading lock state file %s: %w", LockStateFile, err)
	}

	var ls LockState
	if err := json.Unmarshal(data, &ls); err != nil {
		return nil, fmt.Errorf("parsing lock state file %s: %w", LockStateFile, err)
	}
	return &ls, nil
}

// LoadRestartLock reads the persisted restart-lock record. A missing file
// means no restart lock has ever been armed.
func LoadRestartLock() (*RestartLockRecord, error) {
	data, err := os.ReadFile(RestartLockFile)
	if err != nil {
		if os.IsNotExist(err) {
			return &RestartLockRecord{}, nil
		}
		return nil, fmt.Errorf("reading restart lock file %s: %w", RestartLockFile, err)
	}

	var rec RestartLockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing restart lock file %s: %w", RestartLockFile, err)
	}
	return &rec, nil
}

// SaveRestartLock persists the restart-lock record atomically so a crash
// mid-write never leaves a torn JSON document behind (spec.md §4.7: the
// decrement must be durable before the Enforcer acts on it again).
func SaveRestartLock(rec *RestartLockRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling restart lock record: %w", err)
	}
	if err := os.MkdirAll(ConfigDir, 0o777); err != nil {
		return fmt.Errorf("creating config dir %s: %w", ConfigDir, err)
	}
	if err := renameio.WriteFile(RestartLockFile, data, 0o666); err != nil {
		return fmt.Errorf("writing restart lock file %s: %w", RestartLockFile, err)
	}
	return nil
}

// SetupLogging initializes the structured logging system based on the
// config's log level.
func SetupLogging(cfg *Config) {
	var level slog.Level

	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Debug("logging initialized", "level", level.String())
}
