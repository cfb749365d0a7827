package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader loads and caches calibration profiles from the filesystem. The
// built-in default is always present and may be overridden by a file that
// names itself "default".
type Loader struct {
	profiles map[string]Profile
	mu       sync.RWMutex
}

// NewLoader creates a loader and reads every *.yaml profile under rootDir.
// An empty rootDir yields a loader with only the built-in default.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		profiles: map[string]Profile{"default": Default()},
	}

	if rootDir != "" {
		if err := l.loadAll(rootDir); err != nil {
			return nil, fmt.Errorf("loading profiles: %w", err)
		}
	}

	slog.Info("calibration profiles loaded", "count", len(l.profiles))
	return l, nil
}

// Get returns a profile by name.
func (l *Loader) Get(name string) (Profile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.profiles[name]
	return p, ok
}

// Names returns the loaded profile names.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.profiles))
	for n := range l.profiles {
		names = append(names, n)
	}
	return names
}

func (l *Loader) loadAll(rootDir string) error {
	return filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		return l.loadProfile(path)
	})
}

func (l *Loader) loadProfile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	p := Default() // file values override the built-in calibration
	if err := yaml.Unmarshal(data, &p); err != nil {
		slog.Warn("skipping invalid profile YAML", "path", path, "error", err)
		return nil
	}
	if p.Name == "" {
		return nil // not a profile file
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	l.mu.Lock()
	l.profiles[p.Name] = p
	l.mu.Unlock()

	return nil
}
