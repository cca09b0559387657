// Package autosave holds the per-session save state machine: it debounces edits for the
// current document and flushes them through the Storage Layer without ever writing
// one document's content under another document's path.
package autosave

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const DefaultDebounce = time.Second

var (
	ErrNoDocument = errors.New("autosave: no document open")
	ErrClosed     = errors.New("autosave: scheduler closed")
	ErrSaveFailed = errors.New("autosave: save failed")
	// ErrWriteDenied is wrapped by Writer errors when another session owns the document.
	ErrWriteDenied = errors.New("autosave: write denied")
)

// Writer is the slice of the Storage Layer the scheduler writes through. A writer that
// refuses a write because the document is locked by someone else wraps ErrWriteDenied.
type Writer interface {
	WriteAs(origin string, path string, content []byte) (time.Time, error)
}

type State uint8

const (
	Clean State = iota
	Dirty
	Flushing
)

func (s State) String() string {
	switch s {
	case Dirty:
		return "dirty"
	case Flushing:
		return "saving"
	default:
		return "saved"
	}
}

// Status is reported after every state change worth showing to the user.
type Status struct {
	Path    string
	State   State
	Err     error
	SavedAt time.Time
}

type Config struct {
	Origin   string
	Debounce time.Duration
	OnStatus func(Status)
}

type Scheduler struct {
	mu sync.Mutex
	// emitMu is taken before mu is released, so statuses go out in transition order
	emitMu   sync.Mutex
	writer   Writer
	origin   string
	debounce time.Duration
	onStatus func(Status)

	docID    string
	baseline string
	live     string
	state    State
	timer    *time.Timer
	gen      uint64
	closed   bool
}

func New(w Writer, cfg Config) *Scheduler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Scheduler{
		writer:   w,
		origin:   cfg.Origin,
		debounce: cfg.Debounce,
		onStatus: cfg.OnStatus,
	}
}

// Current returns the open document and its state.
func (s *Scheduler) Current() (string, State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docID, s.state
}

// OnEdit records the live editor content for the current document.
func (s *Scheduler) OnEdit(content string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.docID == "" {
		s.mu.Unlock()
		return ErrNoDocument
	}

	s.live = content
	if content == s.baseline {
		// back at baseline, nothing to save
		s.cancelLocked()
		changed := s.state != Clean
		s.state = Clean
		if changed {
			s.unlockAndEmit(Status{Path: s.docID, State: Clean})
		} else {
			s.mu.Unlock()
		}
		return nil
	}

	s.cancelLocked()
	s.gen++
	doc, gen := s.docID, s.gen
	s.timer = time.AfterFunc(s.debounce, func() {
		s.fire(doc, gen)
	})

	changed := s.state != Dirty
	s.state = Dirty
	if changed {
		s.unlockAndEmit(Status{Path: doc, State: Dirty})
	} else {
		s.mu.Unlock()
	}
	return nil
}

// OnDocumentSwitch makes newDoc current with the given baseline. Pending edits for the
// outgoing document are flushed first; if that flush fails the switch is refused and the
// outgoing document stays current. Edits the writer denied because another session owns
// the document are reported as failed and do not hold the switch back.
func (s *Scheduler) OnDocumentSwitch(newDoc string, baseline string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	s.cancelLocked()
	var statuses []Status
	if s.docID != "" && s.live != s.baseline {
		st, err := s.flushLocked()
		statuses = append(statuses, st)
		if err != nil && !errors.Is(err, ErrWriteDenied) {
			s.unlockAndEmit(statuses...)
			return fmt.Errorf("switch from %s: %w", st.Path, err)
		}
	}

	s.docID = newDoc
	s.baseline = baseline
	s.live = baseline
	s.state = Clean
	s.gen++
	s.unlockAndEmit(statuses...)
	return nil
}

// FlushNow synchronously writes pending edits for the current document.
func (s *Scheduler) FlushNow() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	s.cancelLocked()
	if s.docID == "" || s.live == s.baseline {
		s.mu.Unlock()
		return nil
	}

	st, err := s.flushLocked()
	s.unlockAndEmit(st)
	return err
}

// Close flushes pending edits and stops the scheduler. Later calls are no-ops.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.cancelLocked()
	var (
		statuses []Status
		err      error
	)
	if s.docID != "" && s.live != s.baseline {
		var st Status
		st, err = s.flushLocked()
		statuses = append(statuses, st)
	}
	s.closed = true
	s.gen++
	s.unlockAndEmit(statuses...)
	return err
}

// Rename follows a document that was renamed while open. A pending save is
// rescheduled under the new path.
func (s *Scheduler) Rename(from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.docID == "" || s.docID != from {
		return
	}

	pending := s.timer != nil
	s.cancelLocked()
	s.docID = to
	s.gen++
	if pending {
		doc, gen := s.docID, s.gen
		s.timer = time.AfterFunc(s.debounce, func() {
			s.fire(doc, gen)
		})
	}
}

// fire runs on the debounce timer. The timer is tagged with the document and generation
// it was scheduled for, anything else means it has been superseded.
func (s *Scheduler) fire(doc string, gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || doc != s.docID {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.live == s.baseline {
		s.mu.Unlock()
		return
	}

	st, _ := s.flushLocked()
	s.unlockAndEmit(st)
}

// flushLocked writes the live content of the current document. The mutex stays held for
// the write so no switch or edit can interleave with it.
func (s *Scheduler) flushLocked() (Status, error) {
	doc, content := s.docID, s.live
	s.state = Flushing

	savedAt, err := s.writer.WriteAs(s.origin, doc, []byte(content))
	if err != nil {
		s.state = Dirty
		if errors.Is(err, ErrWriteDenied) {
			slog.Info("autosave flush denied", "path", doc, "origin", s.origin, "error", err)
		} else {
			slog.Warn("autosave flush failed", "path", doc, "origin", s.origin, "error", err)
		}
		err = fmt.Errorf("%w: %s: %w", ErrSaveFailed, doc, err)
		return Status{Path: doc, State: Dirty, Err: err}, err
	}

	s.baseline = content
	if s.live == content {
		s.state = Clean
	} else {
		s.state = Dirty
	}
	slog.Debug("autosave flushed", "path", doc, "origin", s.origin, "bytes", len(content))
	return Status{Path: doc, State: Clean, SavedAt: savedAt}, nil
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// unlockAndEmit releases mu and reports statuses. The callback must not call back into
// the scheduler.
func (s *Scheduler) unlockAndEmit(statuses ...Status) {
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	if s.onStatus == nil {
		return
	}
	for _, st := range statuses {
		s.onStatus(st)
	}
}
