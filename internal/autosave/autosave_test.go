package autosave

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type write struct {
	origin  string
	path    string
	content string
}

type memWriter struct {
	mu     sync.Mutex
	files  map[string]string
	writes []write
	fail   error
}

func newMemWriter() *memWriter {
	return &memWriter{files: make(map[string]string)}
}

func (m *memWriter) WriteAs(origin string, path string, content []byte) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return time.Time{}, m.fail
	}
	m.files[path] = string(content)
	m.writes = append(m.writes, write{origin, path, string(content)})
	return time.Now(), nil
}

func (m *memWriter) get(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[path]
	return c, ok
}

func (m *memWriter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func (m *memWriter) setFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// slow debounce so tests drive the timer by calling fire directly
func newTestScheduler(w Writer, statuses *[]Status) *Scheduler {
	var mu sync.Mutex
	return New(w, Config{
		Origin:   "s1",
		Debounce: time.Hour,
		OnStatus: func(st Status) {
			if statuses == nil {
				return
			}
			mu.Lock()
			*statuses = append(*statuses, st)
			mu.Unlock()
		},
	})
}

func (s *Scheduler) pendingGen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func TestEditWithoutDocument(t *testing.T) {
	s := newTestScheduler(newMemWriter(), nil)
	assert.ErrorIs(t, s.OnEdit("x"), ErrNoDocument)
}

func TestEditBackToBaselineCancels(t *testing.T) {
	w := newMemWriter()
	s := newTestScheduler(w, nil)
	require.NoError(t, s.OnDocumentSwitch("a.md", "base"))

	require.NoError(t, s.OnEdit("base!"))
	gen := s.pendingGen()
	_, state := s.Current()
	assert.Equal(t, Dirty, state)

	require.NoError(t, s.OnEdit("base"))
	_, state = s.Current()
	assert.Equal(t, Clean, state)

	s.fire("a.md", gen)
	assert.Zero(t, w.count())
}

func TestTimerFireFlushes(t *testing.T) {
	w := newMemWriter()
	var statuses []Status
	s := newTestScheduler(w, &statuses)
	require.NoError(t, s.OnDocumentSwitch("a.md", "base"))

	require.NoError(t, s.OnEdit("one"))
	require.NoError(t, s.OnEdit("two"))
	gen := s.pendingGen()

	s.fire("a.md", gen)
	got, _ := w.get("a.md")
	assert.Equal(t, "two", got)
	assert.Equal(t, []write{{"s1", "a.md", "two"}}, w.writes)

	_, state := s.Current()
	assert.Equal(t, Clean, state)

	// the same content again is a no-op against the new baseline
	require.NoError(t, s.OnEdit("two"))
	assert.Equal(t, 1, w.count())

	require.NotEmpty(t, statuses)
	last := statuses[len(statuses)-1]
	assert.Equal(t, Clean, last.State)
	assert.False(t, last.SavedAt.IsZero())
}

func TestSupersededTimerIsNoop(t *testing.T) {
	w := newMemWriter()
	s := newTestScheduler(w, nil)
	require.NoError(t, s.OnDocumentSwitch("a.md", "base"))

	require.NoError(t, s.OnEdit("first"))
	stale := s.pendingGen()
	require.NoError(t, s.OnEdit("second"))

	s.fire("a.md", stale)
	assert.Zero(t, w.count())
}

func TestSwitchFlushesPendingEdit(t *testing.T) {
	w := newMemWriter()
	s := newTestScheduler(w, nil)
	require.NoError(t, s.OnDocumentSwitch("a.md", "a-base"))
	require.NoError(t, s.OnEdit("a-edited"))

	require.NoError(t, s.OnDocumentSwitch("b.md", "b-base"))

	got, ok := w.get("a.md")
	require.True(t, ok)
	assert.Equal(t, "a-edited", got)

	doc, state := s.Current()
	assert.Equal(t, "b.md", doc)
	assert.Equal(t, Clean, state)
}

func TestTimerAfterSwitchWritesNothing(t *testing.T) {
	w := newMemWriter()
	s := newTestScheduler(w, nil)
	require.NoError(t, s.OnDocumentSwitch("a.md", "a-base"))
	require.NoError(t, s.OnEdit("a-edited"))
	oldGen := s.pendingGen()

	require.NoError(t, s.OnDocumentSwitch("b.md", "b-base"))
	require.NoError(t, s.OnEdit("b-edited"))

	writesBefore := w.count()
	s.fire("a.md", oldGen)
	assert.Equal(t, writesBefore, w.count())

	got, _ := w.get("a.md")
	assert.Equal(t, "a-edited", got, "old path never receives post-switch content")
	_, ok := w.get("b.md")
	assert.False(t, ok)
}

func TestFailedFlushKeepsBaseline(t *testing.T) {
	w := newMemWriter()
	var statuses []Status
	s := newTestScheduler(w, &statuses)
	require.NoError(t, s.OnDocumentSwitch("a.md", "base"))

	w.setFail(errors.New("disk full"))
	require.NoError(t, s.OnEdit("changed"))
	s.fire("a.md", s.pendingGen())

	_, state := s.Current()
	assert.Equal(t, Dirty, state)
	last := statuses[len(statuses)-1]
	assert.ErrorIs(t, last.Err, ErrSaveFailed)

	// next edit retries
	w.setFail(nil)
	require.NoError(t, s.OnEdit("changed"))
	s.fire("a.md", s.pendingGen())

	got, _ := w.get("a.md")
	assert.Equal(t, "changed", got)
}

func TestSwitchRefusedWhenFlushFails(t *testing.T) {
	w := newMemWriter()
	s := newTestScheduler(w, nil)
	require.NoError(t, s.OnDocumentSwitch("a.md", "base"))
	require.NoError(t, s.OnEdit("unsaved"))

	w.setFail(errors.New("read-only fs"))
	err := s.OnDocumentSwitch("b.md", "b-base")
	assert.ErrorIs(t, err, ErrSaveFailed)

	doc, state := s.Current()
	assert.Equal(t, "a.md", doc)
	assert.Equal(t, Dirty, state)

	w.setFail(nil)
	require.NoError(t, s.OnDocumentSwitch("b.md", "b-base"))
	got, _ := w.get("a.md")
	assert.Equal(t, "unsaved", got)
}

func TestFlushNow(t *testing.T) {
	w := newMemWriter()
	s := newTestScheduler(w, nil)

	assert.NoError(t, s.FlushNow())

	require.NoError(t, s.OnDocumentSwitch("a.md", "base"))
	assert.NoError(t, s.FlushNow())
	assert.Zero(t, w.count())

	require.NoError(t, s.OnEdit("now"))
	gen := s.pendingGen()
	require.NoError(t, s.FlushNow())
	got, _ := w.get("a.md")
	assert.Equal(t, "now", got)

	s.fire("a.md", gen)
	assert.Equal(t, 1, w.count())
}

func TestCloseFlushesAndStops(t *testing.T) {
	w := newMemWriter()
	s := newTestScheduler(w, nil)
	require.NoError(t, s.OnDocumentSwitch("a.md", "base"))
	require.NoError(t, s.OnEdit("pending"))
	gen := s.pendingGen()

	require.NoError(t, s.Close())
	got, _ := w.get("a.md")
	assert.Equal(t, "pending", got)

	s.fire("a.md", gen)
	assert.Equal(t, 1, w.count())

	assert.ErrorIs(t, s.OnEdit("more"), ErrClosed)
	assert.ErrorIs(t, s.OnDocumentSwitch("b.md", ""), ErrClosed)
	assert.NoError(t, s.Close())
}

func TestRealDebounce(t *testing.T) {
	w := newMemWriter()
	s := New(w, Config{Origin: "s1", Debounce: 20 * time.Millisecond})
	defer s.Close()

	require.NoError(t, s.OnDocumentSwitch("a.md", ""))
	require.NoError(t, s.OnEdit("typed"))

	assert.Eventually(t, func() bool {
		got, ok := w.get("a.md")
		return ok && got == "typed"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "saved", Clean.String())
	assert.Equal(t, "dirty", Dirty.String())
	assert.Equal(t, "saving", Flushing.String())
}

func TestRenameFollowsOpenDocument(t *testing.T) {
	w := newMemWriter()
	s := newTestScheduler(w, nil)
	require.NoError(t, s.OnDocumentSwitch("old.md", "base"))
	require.NoError(t, s.OnEdit("edited"))
	stale := s.pendingGen()

	s.Rename("other.md", "x.md")
	doc, _ := s.Current()
	assert.Equal(t, "old.md", doc)

	s.Rename("old.md", "new.md")
	doc, state := s.Current()
	assert.Equal(t, "new.md", doc)
	assert.Equal(t, Dirty, state)

	s.fire("old.md", stale)
	assert.Zero(t, w.count())

	s.fire("new.md", s.pendingGen())
	got, ok := w.get("new.md")
	require.True(t, ok)
	assert.Equal(t, "edited", got)
	_, ok = w.get("old.md")
	assert.False(t, ok)
}

func TestDeniedWriteDoesNotBlockSwitch(t *testing.T) {
	w := newMemWriter()
	var statuses []Status
	s := newTestScheduler(w, &statuses)
	require.NoError(t, s.OnDocumentSwitch("a.md", "base"))
	require.NoError(t, s.OnEdit("unsaved"))

	w.setFail(fmt.Errorf("%w: held by s2", ErrWriteDenied))
	err := s.FlushNow()
	assert.ErrorIs(t, err, ErrWriteDenied)
	assert.ErrorIs(t, err, ErrSaveFailed)

	_, state := s.Current()
	assert.Equal(t, Dirty, state)

	require.NoError(t, s.OnDocumentSwitch("b.md", "b-base"))
	doc, state := s.Current()
	assert.Equal(t, "b.md", doc)
	assert.Equal(t, Clean, state)
	assert.Zero(t, w.count())

	require.Len(t, statuses, 3)
	assert.Equal(t, Dirty, statuses[0].State)
	assert.ErrorIs(t, statuses[1].Err, ErrWriteDenied)
	assert.ErrorIs(t, statuses[2].Err, ErrWriteDenied)
}

func TestStatusesKeepTransitionOrder(t *testing.T) {
	w := newMemWriter()

	var (
		mu      sync.Mutex
		got     []State
		entered = make(chan struct{})
		release = make(chan struct{})
	)
	s := New(w, Config{
		Origin:   "s1",
		Debounce: time.Hour,
		OnStatus: func(st Status) {
			mu.Lock()
			got = append(got, st.State)
			mu.Unlock()
			if st.State == Clean {
				close(entered)
				<-release
			}
		},
	})
	require.NoError(t, s.OnDocumentSwitch("a.md", "base"))
	require.NoError(t, s.OnEdit("one"))

	flushed := make(chan error, 1)
	go func() { flushed <- s.FlushNow() }()
	<-entered

	edited := make(chan error, 1)
	go func() { edited <- s.OnEdit("two") }()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, []State{Dirty, Clean}, got, "a later transition is not reported before an earlier one")
	mu.Unlock()

	close(release)
	require.NoError(t, <-flushed)
	require.NoError(t, <-edited)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Dirty, Clean, Dirty}, got)
}
