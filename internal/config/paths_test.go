package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathsAt(t *testing.T) {
	p := PathsAt("/srv/roster")
	assert.Equal(t, Paths{
		Base:   "/srv/roster",
		Config: filepath.Join("/srv/roster", "config.yaml"),
		Logs:   filepath.Join("/srv/roster", "logs"),
		Data:   filepath.Join("/srv/roster", "data"),
	}, p)
}

func TestResolvePaths_Default(t *testing.T) {
	t.Setenv("ROSTER_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	paths, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".roster"), paths.Base)
	assert.Equal(t, filepath.Join(home, ".roster", "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(home, ".roster", "logs"), paths.Logs)
	assert.Equal(t, filepath.Join(home, ".roster", "data"), paths.Data)
}

func TestResolvePaths_CustomHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("ROSTER_HOME", tmp)

	paths, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, tmp, paths.Base)
	assert.Equal(t, filepath.Join(tmp, "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(tmp, "data"), paths.Data)
}

func TestEnsureDirs(t *testing.T) {
	t.Setenv("ROSTER_HOME", filepath.Join(t.TempDir(), "nested"))
	paths, err := ResolvePaths()
	require.NoError(t, err)

	require.NoError(t, paths.EnsureDirs())
	require.NoError(t, paths.EnsureDirs(), "second call is a no-op")

	for _, d := range []string{paths.Base, paths.Logs, paths.Data} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestDatabasePath(t *testing.T) {
	p := Paths{Data: "/tmp/roster/data"}
	assert.Equal(t, "/tmp/roster/data/roster.db", DirectoryConfig{}.DatabasePath(p))
	assert.Equal(t, "/srv/dir.db", DirectoryConfig{DBPath: "/srv/dir.db"}.DatabasePath(p))
}

func TestLogFilePath(t *testing.T) {
	p := PathsAt("/srv/roster")
	assert.Empty(t, LoggingConfig{}.FilePath(p))
	assert.Equal(t, filepath.Join("/srv/roster", "logs", "roster.log"), LoggingConfig{File: "roster.log"}.FilePath(p))
	assert.Equal(t, "/var/log/roster.log", LoggingConfig{File: "/var/log/roster.log"}.FilePath(p))
}
