package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	// a steady stream of writes still flushes at least this often
	defaultMaxLatency = 5 * time.Second
	eventBufferSize   = 64
)

type Config struct {
	Root       string
	Extensions []string
	Debounce   time.Duration
	MaxLatency time.Duration
}

// FileWatcher turns raw filesystem notifications under Root into coalesced Events.
type FileWatcher struct {
	root       string
	debounce   time.Duration
	maxLatency time.Duration
	ignore     *IgnoreList
	own        *OwnWrites
	buf        *buffer

	rawEvents chan notify.EventInfo
	events    chan Event
	done      chan struct{}
	wg        sync.WaitGroup

	timerMu    sync.Mutex
	timer      *time.Timer
	timerGen   uint64
	cycleStart time.Time
}

func NewFileWatcher(cfg Config, own *OwnWrites) *FileWatcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxLatency < cfg.Debounce {
		cfg.MaxLatency = defaultMaxLatency
	}
	if own == nil {
		own = NewOwnWrites(DefaultSuppressWindow, DefaultOwnWriteTTL)
	}

	fw := &FileWatcher{
		root:       cfg.Root,
		debounce:   cfg.Debounce,
		maxLatency: cfg.MaxLatency,
		ignore:     NewIgnoreList(cfg.Root, cfg.Extensions),
		own:        own,
		events:     make(chan Event, eventBufferSize),
		done:       make(chan struct{}),
	}
	fw.buf = newBuffer(fw.exists, own)
	return fw
}

// OwnWrites exposes the recorder the Storage Layer should report writes to.
func (fw *FileWatcher) OwnWrites() *OwnWrites {
	return fw.own
}

func (fw *FileWatcher) Events() <-chan Event {
	return fw.events
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.root, "debounce", fw.debounce)

	fw.ignore.Load()
	fw.scan()
	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)

	recursivePath := filepath.Join(fw.root, "...")
	if err := notify.Watch(recursivePath, fw.rawEvents, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.loop(ctx)
	return nil
}

func (fw *FileWatcher) Stop() {
	slog.Info("file watcher stopping")

	select {
	case <-fw.done:
		return
	default:
		close(fw.done)
	}

	if fw.rawEvents != nil {
		notify.Stop(fw.rawEvents)
	}
	fw.wg.Wait()

	fw.timerMu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
		fw.timer = nil
	}
	fw.timerMu.Unlock()

	slog.Info("file watcher stopped")
}

func (fw *FileWatcher) loop(ctx context.Context) {
	defer fw.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case ei, ok := <-fw.rawEvents:
			if !ok {
				return
			}
			fw.handleRaw(ei.Path(), ei.Event(), time.Now())
		}
	}
}

func (fw *FileWatcher) handleRaw(absPath string, ev notify.Event, at time.Time) {
	rel, err := filepath.Rel(fw.root, absPath)
	if err != nil {
		slog.Warn("file watcher rel", "path", absPath, "error", err)
		return
	}
	rel = filepath.ToSlash(rel)

	if rel == ignoreFileName {
		fw.ignore.Load()
		return
	}
	if rel == "." || fw.ignore.ShouldIgnore(rel) {
		return
	}

	fw.enqueue(rel, toRawKind(ev), at)
}

func (fw *FileWatcher) enqueue(rel string, kind rawKind, at time.Time) {
	fw.buf.add(rel, kind, at)

	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()

	if fw.timer == nil {
		fw.cycleStart = at
	} else if at.Sub(fw.cycleStart) >= fw.maxLatency {
		return
	} else {
		fw.timer.Stop()
	}

	fw.timerGen++
	gen := fw.timerGen
	fw.timer = time.AfterFunc(fw.debounce, func() {
		fw.flushCycle(gen)
	})
}

func (fw *FileWatcher) flushCycle(gen uint64) {
	fw.timerMu.Lock()
	if gen != fw.timerGen {
		fw.timerMu.Unlock()
		return
	}
	fw.timer = nil
	fw.timerMu.Unlock()

	for _, ev := range fw.buf.flush() {
		slog.Debug("file watcher", "event", ev.Kind, "path", ev.Path, "origin", ev.Origin)
		select {
		case fw.events <- ev:
		case <-fw.done:
			return
		}
	}
}

// scan records the documents already under the root so that replacing one is reported
// as a modification rather than a creation.
func (fw *FileWatcher) scan() {
	var paths []string
	err := filepath.WalkDir(fw.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("file watcher scan", "path", p, "error", err)
			return nil
		}
		rel, err := filepath.Rel(fw.root, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if fw.ignore.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !fw.ignore.ShouldIgnore(rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		slog.Warn("file watcher scan", "dir", fw.root, "error", err)
	}

	fw.buf.seed(paths...)
	slog.Debug("file watcher scanned", "dir", fw.root, "documents", len(paths))
}

func (fw *FileWatcher) exists(rel string) bool {
	_, err := os.Lstat(filepath.Join(fw.root, filepath.FromSlash(rel)))
	if err == nil {
		return true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		// unreadable but present, report it as a modification
		slog.Warn("file watcher stat", "path", rel, "error", err)
		return true
	}
	return false
}

func toRawKind(ev notify.Event) rawKind {
	switch ev {
	case notify.Create:
		return rawCreate
	case notify.Remove:
		return rawRemove
	case notify.Rename:
		return rawRename
	default:
		return rawWrite
	}
}
