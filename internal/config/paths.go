package config

import (
	"os"
	"path/filepath"
)

// Paths locates roster's files under one base directory.
type Paths struct {
	Base   string
	Config string
	Logs   string
	Data   string
}

// PathsAt lays out the standard files under base.
func PathsAt(base string) Paths {
	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Logs:   filepath.Join(base, "logs"),
		Data:   filepath.Join(base, "data"),
	}
}

// ResolvePaths uses $ROSTER_HOME as the base, or ~/.roster when unset.
func ResolvePaths() (Paths, error) {
	if base := os.Getenv("ROSTER_HOME"); base != "" {
		return PathsAt(base), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, err
	}
	return PathsAt(filepath.Join(home, ".roster")), nil
}

// EnsureDirs creates the base, log and data directories.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Logs, p.Data} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
