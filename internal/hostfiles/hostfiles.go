// Package hostfiles manages the sentinel files in DOKKU_ROOT that record the
// global hostname and whether virtual host naming is enabled.
package hostfiles

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	HostnameFile = "HOSTNAME"
	VhostFile    = "VHOST"
)

// Store reads and writes sentinel files under Root.
type Store struct {
	Root string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Root: dir}
}

// WriteHostname records hostname in HOSTNAME.
func (s *Store) WriteHostname(hostname string) error {
	return s.write(HostnameFile, hostname)
}

// SetVhost writes hostname to VHOST when enabled, and removes VHOST otherwise.
// Removing an absent VHOST is not an error.
func (s *Store) SetVhost(enabled bool, hostname string) error {
	if enabled {
		return s.write(VhostFile, hostname)
	}

	path := filepath.Join(s.Root, VhostFile)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Hostname returns the contents of HOSTNAME, or "" when absent.
func (s *Store) Hostname() (string, error) {
	return s.read(HostnameFile)
}

func (s *Store) write(name, content string) error {
	path := filepath.Join(s.Root, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *Store) read(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.Root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}
