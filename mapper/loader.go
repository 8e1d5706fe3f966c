// Package mapper resolves style and brand references to theme tokens and
// Tailwind classes from a hot-reloadable mappings dictionary.
package mapper

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// MappingsData is the on-disk shape of the mappings dictionary.
type MappingsData struct {
	Brands           map[string]map[string]any `json:"brands"`
	Styles           map[string]map[string]any `json:"styles"`
	TailwindTokenMap map[string]string         `json:"tailwind_token_map"`
}

// Loader owns the parsed mappings and swaps them atomically on reload. A
// file that fails to parse keeps the previous data in place.
type Loader struct {
	path string

	mu      sync.RWMutex
	data    *MappingsData
	modTime time.Time
}

func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads the file unconditionally and swaps the data on success.
func (l *Loader) Reload() error {
	info, err := os.Stat(l.path)
	if err != nil {
		return fmt.Errorf("stat mappings file: %w", err)
	}

	raw, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read mappings file: %w", err)
	}

	var data MappingsData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse mappings file: %w", err)
	}

	l.mu.Lock()
	l.data = &data
	l.modTime = info.ModTime()
	l.mu.Unlock()

	slog.Info("mapper: mappings loaded",
		"path", l.path, "brands", len(data.Brands), "styles", len(data.Styles))
	return nil
}

// maybeReload reloads only when the file's mtime has advanced past the
// last successful load.
func (l *Loader) maybeReload() {
	info, err := os.Stat(l.path)
	if err != nil {
		slog.Warn("mapper: mappings file stat failed", "path", l.path, "error", err)
		return
	}

	l.mu.RLock()
	stale := info.ModTime().After(l.modTime)
	l.mu.RUnlock()
	if !stale {
		return
	}

	if err := l.Reload(); err != nil {
		slog.Error("mapper: hot reload failed, keeping previous mappings", "error", err)
	}
}

// Watch hot-reloads the mappings when the file changes, until stop closes.
// The watch is on the parent directory so editors that replace the file
// still trigger events.
func (l *Loader) Watch(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	slog.Info("mapper: hot reload watching", "dir", dir)

	go func() {
		defer watcher.Close()
		base := filepath.Base(l.path)
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					l.maybeReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("mapper: watcher error", "error", err)
			}
		}
	}()
	return nil
}

// BrandProps returns the property map for a brand, nil when unknown.
// Lookups are case-insensitive.
func (l *Loader) BrandProps(name string) map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.data == nil {
		return nil
	}
	return l.data.Brands[strings.ToLower(name)]
}

// StyleProps returns the property map for a style, nil when unknown.
func (l *Loader) StyleProps(name string) map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.data == nil {
		return nil
	}
	return l.data.Styles[strings.ToLower(name)]
}

// TokenMap returns the token-to-class dictionary. The returned map is the
// loaded snapshot and must not be mutated.
func (l *Loader) TokenMap() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.data == nil {
		return nil
	}
	return l.data.TailwindTokenMap
}
