package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/padsync/internal/config"
	"github.com/openmined/padsync/internal/hub"
	"github.com/openmined/padsync/internal/locks"
	"github.com/openmined/padsync/internal/storage"
	"github.com/openmined/padsync/internal/versioning"
	"github.com/openmined/padsync/internal/watcher"
)

type Services struct {
	Store   *storage.FileStore
	Locks   *locks.Table
	Watcher *watcher.FileWatcher
	Hub     *hub.Hub

	// nil when versioning is disabled
	Git        *versioning.GitRepo
	Versioning *versioning.Scheduler
}

func NewServices(cfg *config.Config) (*Services, error) {
	store, err := storage.NewFileStore(cfg.DataDir, cfg.Watcher.Extensions)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	own := watcher.NewOwnWrites(cfg.Watcher.SuppressWindow, cfg.Watcher.OwnWriteTTL)
	store.SetRecorder(own)

	fw := watcher.NewFileWatcher(watcher.Config{
		Root:       store.Root(),
		Extensions: cfg.Watcher.Extensions,
		Debounce:   cfg.Watcher.Debounce,
	}, own)

	table := locks.NewTable()
	h := hub.New(store, table, hub.Config{
		AutosaveDebounce: cfg.Autosave.Debounce,
	})

	svc := &Services{
		Store:   store,
		Locks:   table,
		Watcher: fw,
		Hub:     h,
	}

	if cfg.Versioning.Enabled {
		svc.Git = versioning.NewGitRepo(store.Root(), cfg.Versioning.AuthorName, cfg.Versioning.AuthorEmail)
		svc.Versioning = versioning.NewScheduler(svc.Git, versioning.Config{
			Interval:   cfg.Versioning.Interval,
			OnConflict: h.NotifyConflict,
		})
	}

	return svc, nil
}

// Start claims the data directory and starts the file watcher. Versioning that cannot
// initialise is logged and left off rather than failing the daemon.
func (s *Services) Start(ctx context.Context) error {
	if err := s.Store.Lock(); err != nil {
		return fmt.Errorf("lock data dir: %w", err)
	}

	if s.Git != nil {
		if err := s.Git.Init(ctx); err != nil {
			if errors.Is(err, versioning.ErrGitNotAvailable) {
				slog.Warn("versioning disabled", "reason", err)
			} else {
				slog.Error("versioning init", "error", err)
			}
		}
	}

	if err := s.Watcher.Start(ctx); err != nil {
		s.Store.Unlock()
		return fmt.Errorf("start watcher: %w", err)
	}
	return nil
}

func (s *Services) Shutdown(ctx context.Context) error {
	s.Hub.Shutdown(ctx)
	s.Watcher.Stop()

	if err := s.Store.Unlock(); err != nil {
		return fmt.Errorf("unlock data dir: %w", err)
	}
	return nil
}
