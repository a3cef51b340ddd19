package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".crewdesk"

// Paths holds resolved filesystem paths for crewdesk data.
type Paths struct {
	Base   string // ~/.crewdesk
	Config string // ~/.crewdesk/config.yaml
	Data   string // ~/.crewdesk/data
	Logs   string // ~/.crewdesk/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If CREWDESK_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("CREWDESK_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return PathsAt(base), nil
}

// PathsAt lays out the standard files under base.
func PathsAt(base string) Paths {
	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// DatabasePath returns the configured store path, falling back to the data dir.
func (p Paths) DatabasePath(cfg StoreConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(p.Data, "crewdesk.db")
}
