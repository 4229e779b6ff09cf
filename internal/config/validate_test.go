package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	var paths []string
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Port(t *testing.T) {
	cfg := Defaults()
	for _, port := range []int{0, 8080, 65535} {
		cfg.Gateway.Port = port
		assert.Empty(t, Validate(&cfg), "port %d", port)
	}
	for _, port := range []int{-1, 70000} {
		cfg.Gateway.Port = port
		assert.Equal(t, []string{"gateway.port"}, issuePaths(Validate(&cfg)), "port %d", port)
	}
}

func TestValidate_Bind(t *testing.T) {
	cfg := Defaults()
	for _, bind := range []string{"auto", "lan", "loopback"} {
		cfg.Gateway.Bind = bind
		assert.Empty(t, Validate(&cfg), bind)
	}

	cfg.Gateway.Bind = "tailnet"
	assert.Equal(t, []string{"gateway.bind"}, issuePaths(Validate(&cfg)))

	cfg.Gateway.Bind = "custom"
	assert.Equal(t, []string{"gateway.customBindHost"}, issuePaths(Validate(&cfg)))
	cfg.Gateway.CustomBindHost = "10.1.2.3"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_AuthMode(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Auth.Mode = "oauth"
	assert.Equal(t, []string{"gateway.auth.mode"}, issuePaths(Validate(&cfg)))

	cfg.Gateway.Auth.Mode = "password"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_TLSRequiresFiles(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.TLS.Enabled = true
	cfg.Gateway.TLS.CertPath = "/etc/roster/cert.pem"
	assert.Equal(t, []string{"gateway.tls"}, issuePaths(Validate(&cfg)))

	cfg.Gateway.TLS.KeyPath = "/etc/roster/key.pem"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_DirectoryBackend(t *testing.T) {
	cfg := Defaults()
	for _, b := range []string{"memory", "sqlite"} {
		cfg.Directory.Backend = b
		assert.Empty(t, Validate(&cfg), b)
	}

	cfg.Directory.Backend = "firestore"
	assert.Equal(t, []string{"directory.backend"}, issuePaths(Validate(&cfg)))
}

func TestValidate_GatewayBackendURL(t *testing.T) {
	cfg := Defaults()
	cfg.Directory.Backend = "gateway"
	assert.Equal(t, []string{"directory.url"}, issuePaths(Validate(&cfg)))

	cfg.Directory.URL = "http://localhost:18790/ws"
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "ws://")

	cfg.Directory.URL = "wss://roster.example.com/ws"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Sync(t *testing.T) {
	cfg := Defaults()
	cfg.Sync.DebounceMs = -5
	cfg.Sync.WriteTimeoutMs = -1
	assert.Equal(t, []string{"sync.debounceMs", "sync.writeTimeoutMs"}, issuePaths(Validate(&cfg)))

	cfg = Defaults()
	cfg.Sync.ConfigCollection = cfg.Sync.AgentsCollection
	assert.Equal(t, []string{"sync.configCollection"}, issuePaths(Validate(&cfg)))
}

func TestValidate_AdminEmails(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.AdminEmails = []string{"ok@example.com", "nope"}
	assert.Equal(t, []string{"identity.adminEmails[1]"}, issuePaths(Validate(&cfg)))
}

func TestValidate_Logging(t *testing.T) {
	cfg := Defaults()
	for _, lvl := range []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"} {
		cfg.Logging.Level = lvl
		cfg.Logging.ConsoleLevel = lvl
		assert.Empty(t, Validate(&cfg), lvl)
	}

	cfg.Logging.Level = "verbose"
	cfg.Logging.ConsoleLevel = "loud"
	cfg.Logging.ConsoleStyle = "fancy"
	assert.Equal(t,
		[]string{"logging.consoleLevel", "logging.consoleStyle", "logging.level"},
		issuePaths(Validate(&cfg)))
}

func TestValidate_HookCommands(t *testing.T) {
	cfg := Defaults()
	cfg.Hooks.Seeded = []HookEntry{{Command: "echo seeded"}}
	cfg.Hooks.ServerStart = []HookEntry{{Command: "true"}, {Command: "  "}}
	assert.Equal(t, []string{"hooks.serverStart[1].command"}, issuePaths(Validate(&cfg)))
}

func TestValidationIssueString(t *testing.T) {
	i := ValidationIssue{Path: "gateway.port", Message: "bad"}
	assert.Equal(t, "gateway.port: bad", i.String())
}
