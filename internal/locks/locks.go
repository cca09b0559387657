// Package locks tracks which session currently holds edit intent on a document path.
//
// At most one record exists per path. Acquisition is first-come-first-served with no
// queueing, and records never expire on their own: they are removed by an explicit
// release, by the holder disconnecting (ReleaseAll), or moved by a rename.
package locks

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrLockDenied      = errors.New("locks: held by another session")
	ErrNotHolder       = errors.New("locks: session does not hold the lock")
	ErrNotLocked       = errors.New("locks: path is not locked")
	ErrInvalidKind     = errors.New("locks: invalid lock kind")
	ErrEmptyPath       = errors.New("locks: empty path")
	ErrEmptySessionID  = errors.New("locks: empty session id")
	ErrDestinationHeld = errors.New("locks: rename destination is locked")
)

// Kind distinguishes the UI surface that claims write intent.
type Kind string

const (
	KindEditor         Kind = "editor"
	KindStructuredView Kind = "structured_view"
)

// ParseKind accepts the wire names of a lock kind. "task_view" is kept as an alias
// for the structured view used by older clients.
func ParseKind(s string) (Kind, error) {
	switch s {
	case string(KindEditor):
		return KindEditor, nil
	case string(KindStructuredView), "task_view":
		return KindStructuredView, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Record is a single lock held on a path.
type Record struct {
	Path       string    `json:"path"`
	Holder     string    `json:"holder"`
	Kind       Kind      `json:"kind"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// DeniedError is returned by Acquire when another session holds the path.
type DeniedError struct {
	Current Record
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("locks: %s already locked by %s (%s)", e.Current.Path, e.Current.Holder, e.Current.Kind)
}

func (e *DeniedError) Unwrap() error {
	return ErrLockDenied
}

// Table is the in-memory lock table. All operations are atomic with respect to each other.
type Table struct {
	mu    sync.Mutex
	locks map[string]Record
	now   func() time.Time
}

func NewTable() *Table {
	return &Table{
		locks: make(map[string]Record),
		now:   time.Now,
	}
}

// Acquire grants the lock on path to session. A session re-acquiring its own lock is granted
// again without creating a second record; the kind is updated in place.
func (t *Table) Acquire(path, session string, kind Kind) (Record, error) {
	if path == "" {
		return Record{}, ErrEmptyPath
	}
	if session == "" {
		return Record{}, ErrEmptySessionID
	}
	if kind != KindEditor && kind != KindStructuredView {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.locks[path]; ok {
		if existing.Holder != session {
			return Record{}, &DeniedError{Current: existing}
		}
		existing.Kind = kind
		t.locks[path] = existing
		return existing, nil
	}

	rec := Record{
		Path:       path,
		Holder:     session,
		Kind:       kind,
		AcquiredAt: t.now(),
	}
	t.locks[path] = rec
	return rec, nil
}

// Release removes the lock on path if session holds it.
func (t *Table) Release(path, session string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.locks[path]
	if !ok {
		return ErrNotLocked
	}
	if existing.Holder != session {
		return ErrNotHolder
	}
	delete(t.locks, path)
	return nil
}

// ReleaseAll drops every lock held by session and returns the released paths in sorted order.
func (t *Table) ReleaseAll(session string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var released []string
	for path, rec := range t.locks {
		if rec.Holder == session {
			released = append(released, path)
		}
	}
	for _, path := range released {
		delete(t.locks, path)
	}

	sort.Strings(released)
	return released
}

// Lookup returns the lock record for path, if any.
func (t *Table) Lookup(path string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.locks[path]
	return rec, ok
}

// Move re-keys a lock after the document was renamed. It reports whether a lock was moved.
func (t *Table) Move(from, to string) (Record, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.locks[from]
	if !ok {
		return Record{}, false, nil
	}
	if dst, held := t.locks[to]; held && dst.Holder != rec.Holder {
		return Record{}, false, ErrDestinationHeld
	}

	delete(t.locks, from)
	rec.Path = to
	t.locks[to] = rec
	return rec, true, nil
}

// List returns all lock records sorted by path.
func (t *Table) List() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, len(t.locks))
	for _, rec := range t.locks {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
