package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind is custom",
		})
	}

	validAuthModes := []string{"token", "password"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.auth.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode),
		})
	}

	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls",
			Message: "certPath and keyPath are required when TLS is enabled",
		})
	}

	// Directory validation
	validBackends := []string{"memory", "sqlite", "gateway"}
	if cfg.Directory.Backend != "" && !slices.Contains(validBackends, cfg.Directory.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "directory.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", validBackends, cfg.Directory.Backend),
		})
	}
	if cfg.Directory.Backend == "gateway" {
		if cfg.Directory.URL == "" {
			issues = append(issues, ValidationIssue{
				Path:    "directory.url",
				Message: "required when backend is gateway",
			})
		} else if u, err := url.Parse(cfg.Directory.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			issues = append(issues, ValidationIssue{
				Path:    "directory.url",
				Message: fmt.Sprintf("must be a ws:// or wss:// URL, got %q", cfg.Directory.URL),
			})
		}
	}

	// Sync validation
	if cfg.Sync.DebounceMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "sync.debounceMs",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Sync.DebounceMs),
		})
	}
	if cfg.Sync.WriteTimeoutMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "sync.writeTimeoutMs",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Sync.WriteTimeoutMs),
		})
	}
	if cfg.Sync.AgentsCollection != "" && cfg.Sync.AgentsCollection == cfg.Sync.ConfigCollection {
		issues = append(issues, ValidationIssue{
			Path:    "sync.configCollection",
			Message: "must differ from agentsCollection",
		})
	}

	// Identity validation
	for i, email := range cfg.Identity.AdminEmails {
		if !strings.Contains(email, "@") {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("identity.adminEmails[%d]", i),
				Message: fmt.Sprintf("not an e-mail address: %q", email),
			})
		}
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}
	if cfg.Logging.ConsoleLevel != "" && !slices.Contains(validLogLevels, cfg.Logging.ConsoleLevel) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleLevel",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.ConsoleLevel),
		})
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// Hooks validation
	for name, entries := range map[string][]HookEntry{
		"currentChanged":   cfg.Hooks.CurrentChanged,
		"directoryChanged": cfg.Hooks.DirectoryChanged,
		"seeded":           cfg.Hooks.Seeded,
		"writeFailed":      cfg.Hooks.WriteFailed,
		"serverStart":      cfg.Hooks.ServerStart,
		"serverStop":       cfg.Hooks.ServerStop,
	} {
		for i, h := range entries {
			if strings.TrimSpace(h.Command) == "" {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("hooks.%s[%d].command", name, i),
					Message: "command is required",
				})
			}
		}
	}

	slices.SortStableFunc(issues, func(a, b ValidationIssue) int {
		return strings.Compare(a.Path, b.Path)
	})
	return issues
}
