// Package updater replaces the running binary with the latest GitHub release.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/smazurov/hearthtale/internal/version"
)

// DefaultRepository is the GitHub slug releases are fetched from.
const DefaultRepository = "smazurov/hearthtale"

// Options configures an Updater.
type Options struct {
	Repository string // GitHub slug, default DefaultRepository
	Prerelease bool
	BackupDir  string // default ~/.cache/hearthtale/backup
	Logger     *slog.Logger
}

// UpdateInfo describes the latest release relative to the running binary.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	AssetSize       int       `json:"asset_size,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

// Updater checks for and applies releases.
type Updater struct {
	repository selfupdate.Repository
	updater    *selfupdate.Updater
	backups    *backupStore
	logger     *slog.Logger
}

// New creates an updater. The backup store is optional; without it an
// update cannot be rolled back.
func New(opts Options) (*Updater, error) {
	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub source: %w", err)
	}

	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}

	dir := opts.BackupDir
	if dir == "" {
		dir, err = defaultBackupDir()
		if err != nil {
			logger.Warn("Backups disabled", "error", err)
		}
	}

	var backups *backupStore
	if dir != "" {
		backups, err = newBackupStore(dir, selfupdate.ExecutablePath, logger)
		if err != nil {
			logger.Warn("Backups disabled", "error", err)
		}
	}

	return &Updater{
		repository: selfupdate.ParseSlug(opts.Repository),
		updater:    updater,
		backups:    backups,
		logger:     logger,
	}, nil
}

// Check compares the latest release with the running version. A dev build
// is always considered outdated.
func (u *Updater) Check(ctx context.Context) (*UpdateInfo, error) {
	info, _, err := u.detect(ctx)
	return info, err
}

func (u *Updater) detect(ctx context.Context) (*UpdateInfo, *selfupdate.Release, error) {
	current := version.Version

	release, found, err := u.updater.DetectLatest(ctx, u.repository)
	if err != nil {
		return nil, nil, newError(ErrCodeCheckFailed, "failed to check for updates", err)
	}
	if !found {
		return nil, nil, newError(ErrCodeNotFound, "repository not found or has no releases", nil)
	}

	info := &UpdateInfo{
		CurrentVersion:  current,
		LatestVersion:   release.Version(),
		ReleaseNotes:    release.ReleaseNotes,
		ReleaseURL:      release.URL,
		PublishedAt:     release.PublishedAt,
		AssetSize:       release.AssetByteSize,
		UpdateAvailable: current == "dev" || release.GreaterThan(current),
	}
	u.logger.Debug("Checked for update", "current", current, "latest", info.LatestVersion, "available", info.UpdateAvailable)
	return info, release, nil
}

// Apply downloads the latest release over the running binary. The current
// binary is backed up first and restored if the update fails.
func (u *Updater) Apply(ctx context.Context) (*UpdateInfo, error) {
	info, release, err := u.detect(ctx)
	if err != nil {
		return nil, err
	}
	if !info.UpdateAvailable {
		return info, newError(ErrCodeNoUpdate, "already at latest version", nil).forRelease(info.LatestVersion)
	}

	if u.backups != nil {
		if backupErr := u.backups.create(version.Version); backupErr != nil {
			return nil, newError(ErrCodeBackupFailed, "failed to create backup", backupErr).forRelease(info.LatestVersion)
		}
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return nil, newError(ErrCodeApplyFailed, "failed to get executable path", err)
	}

	u.logger.Info("Applying update", "from", info.CurrentVersion, "to", info.LatestVersion)
	if err := u.updater.UpdateTo(ctx, release, exe); err != nil {
		uerr := newError(ErrCodeApplyFailed, "failed to apply update", err).forRelease(info.LatestVersion)
		uerr.Restored = u.restoreAfterFailure()
		return nil, uerr
	}

	u.logger.Info("Update applied", "version", info.LatestVersion)
	return info, nil
}

// Rollback restores the binary saved by the last Apply.
func (u *Updater) Rollback() (string, error) {
	if u.backups == nil || !u.backups.has() {
		return "", newError(ErrCodeNoBackup, "no backup available for rollback", nil)
	}
	if err := u.backups.restore(); err != nil {
		return "", newError(ErrCodeRollbackFailed, "failed to restore backup", err)
	}
	return u.backups.version(), nil
}

// restoreAfterFailure puts the backed up binary back and reports whether it did.
func (u *Updater) restoreAfterFailure() bool {
	if u.backups == nil || !u.backups.has() {
		u.logger.Error("No backup available for automatic rollback")
		return false
	}
	if err := u.backups.restore(); err != nil {
		u.logger.Error("Failed to restore backup", "error", err)
		return false
	}
	u.logger.Info("Automatic rollback completed")
	return true
}

func defaultBackupDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "hearthtale", "backup"), nil
}
