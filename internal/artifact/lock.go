package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/harunnryd/tabletalk/internal/config"

	"github.com/gofrs/flock"
)

const lockFileName = ".artifacts.lock"

type LockConfig struct {
	Timeout  time.Duration
	Retry    time.Duration
	MaxRetry int
}

func DefaultLockConfig() LockConfig {
	timeout, _ := config.DurationOrDefault(config.DefaultArtifactsLockTimeout, config.DefaultArtifactsLockTimeout)
	retry, _ := config.DurationOrDefault(config.DefaultArtifactsLockRetry, config.DefaultArtifactsLockRetry)

	return LockConfig{
		Timeout:  timeout,
		Retry:    retry,
		MaxRetry: config.DefaultArtifactsLockMaxRetry,
	}
}

func lockConfigFrom(cfg config.ArtifactsConfig) (LockConfig, error) {
	timeout, err := config.DurationOrDefault(cfg.LockTimeout, config.DefaultArtifactsLockTimeout)
	if err != nil {
		return LockConfig{}, fmt.Errorf("artifacts.lock_timeout: %w", err)
	}
	retry, err := config.DurationOrDefault(cfg.LockRetry, config.DefaultArtifactsLockRetry)
	if err != nil {
		return LockConfig{}, fmt.Errorf("artifacts.lock_retry: %w", err)
	}
	maxRetry := cfg.LockMaxRetry
	if maxRetry <= 0 {
		maxRetry = config.DefaultArtifactsLockMaxRetry
	}
	return LockConfig{Timeout: timeout, Retry: retry, MaxRetry: maxRetry}, nil
}

// dirLock serializes writers that share one artifacts directory, including
// writers in other processes.
type dirLock struct {
	fileLock   *flock.Flock
	path       string
	acquiredAt time.Time
}

func acquireDirLock(ctx context.Context, dir string, cfg LockConfig) (*dirLock, error) {
	path := filepath.Join(dir, lockFileName)
	l := &dirLock{fileLock: flock.New(path), path: path}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	for i := 0; i < cfg.MaxRetry; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("artifacts lock acquisition cancelled: %w", ctx.Err())
		default:
		}

		locked, err := l.fileLock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to attempt artifacts lock: %w", err)
		}
		if locked {
			l.acquiredAt = time.Now()
			return l, nil
		}

		if i < cfg.MaxRetry-1 {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.Retry):
			}
		}
	}

	return nil, fmt.Errorf("artifacts directory %s is locked by another writer (timeout after %v)", dir, cfg.Timeout)
}

func (l *dirLock) release() {
	held := time.Since(l.acquiredAt)
	if err := l.fileLock.Unlock(); err != nil {
		slog.Error("Failed to release artifacts lock", "path", l.path, "error", err)
		return
	}
	slog.Debug("Artifacts lock released", "path", l.path, "held_duration_ms", held.Milliseconds())
}
