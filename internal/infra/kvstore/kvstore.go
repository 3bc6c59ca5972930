// Package kvstore implements a lazily-populated persistent dictionary:
// plain key=value text lines, one per line, order-independent, with missing
// keys auto-created at file end on first read. Both the settings file and
// the language catalogs are instances of this store.
package kvstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/arcworks/realistic-survival/server/internal/platform/logger"
)

// Store is a file-backed string map. All methods are safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	path   string
	order  []string // insertion order, so rewrites keep the file stable
	values map[string]string
}

// Open loads (or creates) the store file at path.
func Open(path string) (*Store, error) {
	s := &Store{
		path:   path,
		values: make(map[string]string),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open store file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.Contains(line, "=") {
			continue
		}
		key, value, _ := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		if _, seen := s.values[key]; !seen {
			s.order = append(s.order, key)
		}
		s.values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	return s, nil
}

// Get returns the value for key. A key that has never been seen is appended
// to the backing file with an empty value; empty values report ok=false.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, exists := s.values[key]
	if !exists {
		s.values[key] = ""
		s.order = append(s.order, key)
		// Best effort: the in-memory entry stands even if the append fails.
		if f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			fmt.Fprintf(f, "\n%s=", key)
			f.Close()
		}
		return "", false
	}
	if value == "" {
		return "", false
	}
	return value, true
}

// Set upserts key=value in memory and rewrites the backing file immediately.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.values[key]; !exists {
		s.order = append(s.order, key)
	}
	s.values[key] = value

	var b strings.Builder
	for _, k := range s.order {
		fmt.Fprintf(&b, "%s=%s\n", k, s.values[k])
	}
	if err := os.WriteFile(s.path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to rewrite store file: %w", err)
	}
	return nil
}

// Catalog is a Store used for user-facing text. Empty resolutions are logged
// so missing translations surface in the server log instead of silently
// rendering blank strings.
type Catalog struct {
	store  *Store
	name   string
	logger *logger.Logger
}

// NewCatalog wraps a store as a text catalog. name identifies the catalog in
// log lines (typically the language code).
func NewCatalog(store *Store, name string, log *logger.Logger) *Catalog {
	return &Catalog{store: store, name: name, logger: log}
}

// Text returns the catalog entry for key, or "" when the key is missing or
// empty. Missing keys are auto-created in the backing file.
func (c *Catalog) Text(key string) string {
	value, ok := c.store.Get(key)
	if !ok {
		if c.logger != nil {
			c.logger.Warn("Text key " + key + " is empty in catalog " + c.name)
		}
		return ""
	}
	return value
}
