// Package artifact persists query results as parquet side files.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harunnryd/tabletalk/internal/config"
	"github.com/harunnryd/tabletalk/internal/dataset"
	talkErrors "github.com/harunnryd/tabletalk/internal/errors"
	"github.com/harunnryd/tabletalk/internal/logger"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

const (
	filePrefix  = "temp_dataframe_"
	fileExt     = ".parquet"
	stampLayout = "20060102150405"
)

type Store struct {
	dir  string
	lock LockConfig
	now  func() time.Time
}

func NewStore(cfg config.ArtifactsConfig) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, talkErrors.InvalidInput("artifacts.dir is required")
	}
	lock, err := lockConfigFrom(cfg)
	if err != nil {
		return nil, talkErrors.InvalidInput(err.Error())
	}
	return NewStoreWithLock(cfg.Dir, lock), nil
}

func NewStoreWithLock(dir string, lock LockConfig) *Store {
	return &Store{dir: dir, lock: lock, now: time.Now}
}

func (s *Store) Dir() string {
	return s.dir
}

// Write persists table as temp_dataframe_<YYYYMMDDHHMMSS>_<ulid>.parquet and
// returns the file path.
func (s *Store) Write(ctx context.Context, table *dataset.Table) (string, error) {
	if table == nil {
		return "", talkErrors.InvalidInput("cannot persist a nil table")
	}

	data, err := encode(table)
	if err != nil {
		return "", fmt.Errorf("encode dataframe: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}

	lock, err := acquireDirLock(ctx, s.dir, s.lock)
	if err != nil {
		return "", talkErrors.WrapWithCategory(err, "persist dataframe", talkErrors.ErrTransient)
	}
	defer lock.release()

	now := s.now()
	name := filePrefix + now.Format(stampLayout) + "_" + ulid.Make().String() + fileExt
	path := filepath.Join(s.dir, name)

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	slog.Info("Dataframe persisted",
		"path", path,
		"rows", table.Len(),
		"columns", len(table.Columns),
		"bytes", len(data),
		"trace_id", logger.GetTraceID(ctx),
	)
	return path, nil
}

// Read loads a side file fully into memory.
func (s *Store) Read(path string) (*dataset.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, talkErrors.NotFound(fmt.Sprintf("side file %s does not exist", path))
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	table, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return table, nil
}

// List returns the side files in the directory, oldest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		out = append(out, filepath.Join(s.dir, name))
	}
	return out, nil
}
