package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Backend stores raw snapshot bytes. Implementations must make Write atomic
// with respect to concurrent readers.
type Backend interface {
	// Read returns the stored snapshot bytes, or nil if none exists yet.
	Read(ctx context.Context) ([]byte, error)

	// Write durably replaces the stored snapshot.
	Write(ctx context.Context, data []byte) error

	// Lock acquires an exclusive lock on the stack state.
	Lock() error

	// Unlock releases the lock.
	Unlock() error
}

// BackendConfig selects and configures a state backend.
type BackendConfig struct {
	Type   string            // "local" or "s3"
	Config map[string]string // backend-specific settings
}

// NewBackend creates a state backend from configuration.
func NewBackend(cfg *BackendConfig) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend configuration is nil")
	}
	switch cfg.Type {
	case "local", "":
		path := cfg.Config["path"]
		if path == "" {
			return nil, fmt.Errorf("local backend requires 'path' configuration")
		}
		return NewFileBackend(path), nil
	case "s3":
		return newS3Backend(cfg.Config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}

// fileBackend keeps the snapshot in a single local file, guarded by a
// sibling lock file.
type fileBackend struct {
	path string
}

// NewFileBackend returns a Backend storing the snapshot at path.
func NewFileBackend(path string) Backend {
	return &fileBackend{path: path}
}

func (b *fileBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", b.path, err)
	}
	return data, nil
}

func (b *fileBackend) Write(ctx context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Write-then-rename so a crash mid-write never truncates the snapshot.
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

const staleLockAge = 10 * time.Minute

func (b *fileBackend) Lock() error {
	lockPath := b.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(lockPath); err == nil {
		if time.Since(info.ModTime()) > staleLockAge {
			os.Remove(lockPath)
		} else {
			return fmt.Errorf("state is locked by another process (lock file: %s). "+
				"If this is an error, remove the lock file manually", lockPath)
		}
	}

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	return nil
}

func (b *fileBackend) Unlock() error {
	if err := os.Remove(b.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (b *fileBackend) lockPath() string {
	return b.path + ".lock"
}
