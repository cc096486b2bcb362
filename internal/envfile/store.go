// Package envfile is the key/value store behind the application's .env file.
//
// Reads are served from an in-memory snapshot taken by Reload; writes rewrite the
// single KEY=value line on disk and leave every other byte of the file alone. A
// write is not visible through Get until the next Reload, which mirrors how the
// application itself caches its configuration.
package envfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/joho/godotenv"
)

var ErrKeyNotFound = errors.New("key not found in env file")

type Store struct {
	path string

	mu    sync.RWMutex
	cache map[string]string
}

// Open loads path into a new store.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the env file location.
func (s *Store) Path() string {
	return s.path
}

// Get returns the cached value for key. Keys missing from the file fall back to
// the process environment.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	value, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return value, true
	}
	return os.LookupEnv(key)
}

// Set replaces the KEY=<cached value> line with KEY=value. It is a no-op when the
// cached value already equals value.
func (s *Store) Set(key, value string) error {
	return s.SetAll(map[string]string{key: value})
}

// SetAll rewrites every key in values with one atomic write. Keys whose cached
// value already matches are skipped. If any line to change is missing from the
// file, nothing is written.
func (s *Store) SetAll(values map[string]string) error {
	keys := make([]string, 0, len(values))
	current := make(map[string]string, len(values))
	for key, value := range values {
		cached, _ := s.Get(key)
		if cached == value {
			continue
		}
		keys = append(keys, key)
		current[key] = cached
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read env file: %w", err)
	}

	for _, key := range keys {
		updated, replaced := replaceValue(data, key, current[key], values[key])
		if !replaced {
			return fmt.Errorf("%w: %s=%s in %s", ErrKeyNotFound, key, current[key], s.path)
		}
		data = updated
	}

	return writeAtomic(s.path, data)
}

// Reload re-reads the file so subsequent Gets reflect what is on disk.
func (s *Store) Reload() error {
	values, err := godotenv.Read(s.path)
	if err != nil {
		return fmt.Errorf("failed to parse env file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.cache = values
	s.mu.Unlock()
	return nil
}

// replaceValue rewrites lines of the form [export ]KEY=old, keeping the key's
// spacing, quoting and any trailing comment.
func replaceValue(data []byte, key, oldValue, newValue string) ([]byte, bool) {
	pattern := regexp.MustCompile(`(?m)^([ \t]*(?:export[ \t]+)?` + regexp.QuoteMeta(key) + `[ \t]*=[ \t]*)(["']?)` +
		regexp.QuoteMeta(oldValue) + `(["']?)([ \t]*(?:#[^\r\n]*)?)(\r?)$`)

	replaced := false
	out := pattern.ReplaceAllFunc(data, func(line []byte) []byte {
		m := pattern.FindSubmatch(line)
		if string(m[2]) != string(m[3]) {
			return line
		}
		replaced = true
		result := make([]byte, 0, len(line)+len(newValue))
		result = append(result, m[1]...)
		result = append(result, m[2]...)
		result = append(result, newValue...)
		result = append(result, m[3]...)
		result = append(result, m[4]...)
		result = append(result, m[5]...)
		return result
	})
	return out, replaced
}

func writeAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp env file: %w", err)
	}
	tempPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write env file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write env file: %w", err)
	}
	if err := os.Chmod(tempPath, mode); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to set env file mode: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename env file: %w", err)
	}
	return nil
}
