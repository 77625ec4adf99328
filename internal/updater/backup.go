package updater

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	backupFilename     = "hearthtale.backup"
	backupInfoFilename = "backup.json"
)

type backupInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExecPath  string    `json:"exec_path"`
}

// backupStore keeps one copy of a previous binary.
type backupStore struct {
	mu       sync.RWMutex
	dir      string
	execPath func() (string, error)
	info     *backupInfo
	logger   *slog.Logger
}

func newBackupStore(dir string, execPath func() (string, error), logger *slog.Logger) (*backupStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	s := &backupStore{dir: dir, execPath: execPath, logger: logger}
	s.load()
	return s, nil
}

func (s *backupStore) load() {
	data, err := os.ReadFile(filepath.Join(s.dir, backupInfoFilename))
	if err != nil {
		return
	}

	var info backupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		s.logger.Warn("Failed to parse backup info", "error", err)
		return
	}
	if _, err := os.Stat(filepath.Join(s.dir, backupFilename)); err != nil {
		s.logger.Warn("Backup file missing", "dir", s.dir)
		return
	}

	s.mu.Lock()
	s.info = &info
	s.mu.Unlock()
}

func (s *backupStore) create(currentVersion string) error {
	execPath, err := s.execPath()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	backupPath := filepath.Join(s.dir, backupFilename)
	if err := copyFile(execPath, backupPath); err != nil {
		return err
	}

	info := backupInfo{
		Version:   currentVersion,
		CreatedAt: time.Now(),
		ExecPath:  execPath,
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal backup info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, backupInfoFilename), data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup info: %w", err)
	}

	s.mu.Lock()
	s.info = &info
	s.mu.Unlock()

	s.logger.Info("Backup created", "version", info.Version, "path", backupPath)
	return nil
}

func (s *backupStore) restore() error {
	s.mu.RLock()
	info := s.info
	s.mu.RUnlock()
	if info == nil {
		return fmt.Errorf("no backup available")
	}

	if err := copyFile(filepath.Join(s.dir, backupFilename), info.ExecPath); err != nil {
		return err
	}
	s.logger.Info("Backup restored", "version", info.Version)
	return nil
}

func (s *backupStore) has() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info != nil
}

func (s *backupStore) version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return ""
	}
	return s.info.Version
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", from, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", to, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy %s: %w", from, err)
	}
	return dst.Close()
}
