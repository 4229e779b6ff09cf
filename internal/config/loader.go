package config

import (
	"cmp"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvRefs replaces ${VAR} with the variable's value. References to
// unset variables are kept verbatim.
func expandEnvRefs(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if val, ok := os.LookupEnv(ref[2 : len(ref)-1]); ok {
			return val
		}
		return ref
	})
}

// secrets are the fields that may be written as ${ENV_VAR} in the file.
func (c *Config) secrets() []*string {
	return []*string{
		&c.Gateway.Auth.Token,
		&c.Gateway.Auth.Password,
		&c.Directory.Token,
		&c.Directory.Password,
		&c.Identity.AdminPassword,
	}
}

// Load reads path over Defaults, then applies ROSTER_* overrides and
// expands secret references. A missing file yields the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, nil
	}
	if err != nil {
		return Defaults(), err
	}

	cfg, err := decode(data, "failed to parse config: ")
	if err != nil {
		return cfg, err
	}
	applyEnvOverrides(&cfg)
	for _, s := range cfg.secrets() {
		*s = expandEnvRefs(*s)
	}
	return cfg, nil
}

// LoadFromRaw decodes a raw map the way Load decodes the file, without
// environment overrides. Edits are checked with it before they are saved.
func LoadFromRaw(raw map[string]any) (Config, error) {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return Defaults(), err
	}
	return decode(data, "invalid config: ")
}

func decode(data []byte, errPrefix string) (Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: errPrefix + err.Error()}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// LoadRaw reads the file as a plain map for key-based edits. A missing file
// is an empty map.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	return raw, nil
}

// SaveRaw writes raw as YAML through a temp file and rename, so readers
// never see a partial config.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// applyDefaults fills zero fields that the file left out or blanked.
func applyDefaults(cfg *Config) {
	d := Defaults()
	cfg.Gateway.Port = cmp.Or(cfg.Gateway.Port, d.Gateway.Port)
	cfg.Gateway.Bind = cmp.Or(cfg.Gateway.Bind, d.Gateway.Bind)
	cfg.Gateway.Auth.Mode = cmp.Or(cfg.Gateway.Auth.Mode, d.Gateway.Auth.Mode)
	cfg.Directory.Backend = cmp.Or(cfg.Directory.Backend, d.Directory.Backend)

	s := &cfg.Sync
	s.DebounceMs = cmp.Or(s.DebounceMs, d.Sync.DebounceMs)
	s.WriteTimeoutMs = cmp.Or(s.WriteTimeoutMs, d.Sync.WriteTimeoutMs)
	s.AgentsCollection = cmp.Or(s.AgentsCollection, d.Sync.AgentsCollection)
	s.ConfigCollection = cmp.Or(s.ConfigCollection, d.Sync.ConfigCollection)
	s.PointerDoc = cmp.Or(s.PointerDoc, d.Sync.PointerDoc)

	l := &cfg.Logging
	l.Level = cmp.Or(l.Level, d.Logging.Level)
	l.ConsoleLevel = cmp.Or(l.ConsoleLevel, d.Logging.ConsoleLevel)
	l.ConsoleStyle = cmp.Or(l.ConsoleStyle, d.Logging.ConsoleStyle)
}

// envOverrides maps ROSTER_* variables onto config fields. Numeric
// variables that do not parse are ignored.
var envOverrides = map[string]func(*Config, string){
	"ROSTER_GATEWAY_PORT":      func(c *Config, v string) { setInt(&c.Gateway.Port, v) },
	"ROSTER_GATEWAY_BIND":      func(c *Config, v string) { c.Gateway.Bind = v },
	"ROSTER_DIRECTORY_BACKEND": func(c *Config, v string) { c.Directory.Backend = strings.ToLower(v) },
	"ROSTER_DIRECTORY_URL":     func(c *Config, v string) { c.Directory.URL = v },
	"ROSTER_DIRECTORY_TOKEN":   func(c *Config, v string) { c.Directory.Token = v },
	"ROSTER_DEBOUNCE_MS":       func(c *Config, v string) { setInt(&c.Sync.DebounceMs, v) },
	"ROSTER_ADMIN_PASSWORD":    func(c *Config, v string) { c.Identity.AdminPassword = v },
	"ROSTER_LOG_LEVEL":         func(c *Config, v string) { c.Logging.Level = strings.ToLower(v) },
}

func applyEnvOverrides(cfg *Config) {
	for name, apply := range envOverrides {
		if v := os.Getenv(name); v != "" {
			apply(cfg, v)
		}
	}
}

func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
