package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultGatewayPort = 18790
	DefaultDebounceMs  = 800
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: DefaultGatewayPort,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Directory: DirectoryConfig{
			Backend: "sqlite",
		},
		Sync: SyncConfig{
			DebounceMs:       DefaultDebounceMs,
			WriteTimeoutMs:   10000,
			AgentsCollection: "agents",
			ConfigCollection: "config",
			PointerDoc:       "global",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleLevel: "info",
			ConsoleStyle: "pretty",
		},
	}
}

// Debounce returns the edit debounce interval.
func (s SyncConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMs) * time.Millisecond
}

// WriteTimeout returns the bound on a single remote write.
func (s SyncConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMs) * time.Millisecond
}

// DatabasePath returns the sqlite file for the directory, falling back to
// roster.db under the data dir.
func (d DirectoryConfig) DatabasePath(p Paths) string {
	if d.DBPath != "" {
		return d.DBPath
	}
	return filepath.Join(p.Data, "roster.db")
}

// FilePath returns the log file, resolving a relative File against the
// logs dir. Empty means file logging is off.
func (l LoggingConfig) FilePath(p Paths) string {
	if l.File == "" || filepath.IsAbs(l.File) {
		return l.File
	}
	return filepath.Join(p.Logs, l.File)
}
