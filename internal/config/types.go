package config

// Config is the root configuration for roster.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Directory DirectoryConfig `yaml:"directory,omitempty"`
	Sync      SyncConfig      `yaml:"sync,omitempty"`
	Identity  IdentityConfig  `yaml:"identity,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	Hooks     HooksConfig     `yaml:"hooks,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server that shares the
// directory between clients.
type GatewayConfig struct {
	Port           int              `yaml:"port,omitempty"`
	Bind           string           `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string           `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth      `yaml:"auth,omitempty"`
	TLS            GatewayTLS       `yaml:"tls,omitempty"`
	ControlUI      GatewayControlUI `yaml:"controlUi,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// GatewayControlUI configures browser access to the gateway.
type GatewayControlUI struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// DirectoryConfig selects where the shared agent directory lives.
type DirectoryConfig struct {
	Backend  string `yaml:"backend,omitempty"` // "memory" | "sqlite" | "gateway"
	URL      string `yaml:"url,omitempty"`     // gateway WebSocket URL, e.g. ws://127.0.0.1:18790/ws
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
	DBPath   string `yaml:"dbPath,omitempty"` // sqlite file; defaults to <data>/roster.db
}

// SyncConfig controls the sync engine.
type SyncConfig struct {
	DebounceMs       int    `yaml:"debounceMs,omitempty"`
	WriteTimeoutMs   int    `yaml:"writeTimeoutMs,omitempty"`
	AgentsCollection string `yaml:"agentsCollection,omitempty"`
	ConfigCollection string `yaml:"configCollection,omitempty"`
	PointerDoc       string `yaml:"pointerDoc,omitempty"`
	PresetsFile      string `yaml:"presetsFile,omitempty"` // YAML list replacing the built-in presets
}

// IdentityConfig configures the local user and who counts as an admin.
type IdentityConfig struct {
	Name          string   `yaml:"name,omitempty"`
	Email         string   `yaml:"email,omitempty"`
	Info          string   `yaml:"info,omitempty"` // free text handed to agents about the user
	AdminEmails   []string `yaml:"adminEmails,omitempty"`
	AdminPassword string   `yaml:"adminPassword,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleLevel string `yaml:"consoleLevel,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// HooksConfig defines shell commands run on engine and server events.
type HooksConfig struct {
	CurrentChanged   []HookEntry `yaml:"currentChanged,omitempty"`
	DirectoryChanged []HookEntry `yaml:"directoryChanged,omitempty"`
	Seeded           []HookEntry `yaml:"seeded,omitempty"`
	WriteFailed      []HookEntry `yaml:"writeFailed,omitempty"`
	ServerStart      []HookEntry `yaml:"serverStart,omitempty"`
	ServerStop       []HookEntry `yaml:"serverStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
