// Package hub fans out lock, change and versioning notifications to connected sessions
// and applies their inbound lock and edit messages.
//
// Every state transition and the enqueue of the messages it produces happen under one
// mutex, so each session observes transitions in the order the hub applied them.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/openmined/padsync/internal/autosave"
	"github.com/openmined/padsync/internal/locks"
	"github.com/openmined/padsync/internal/padmsg"
	"github.com/openmined/padsync/internal/version"
	"github.com/openmined/padsync/internal/watcher"
)

const defaultQueueSize = 256

type Config struct {
	AutosaveDebounce time.Duration
	QueueSize        int
}

type Hub struct {
	store Store
	locks *locks.Table

	autosaveDebounce time.Duration
	queueSize        int

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup

	// writeMu keeps lock grants from landing between a session's ownership check and
	// its write. Order: mu, then a session's scheduler, then writeMu.
	writeMu sync.Mutex
}

func New(store Store, table *locks.Table, cfg Config) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if table == nil {
		table = locks.NewTable()
	}
	return &Hub{
		store:            store,
		locks:            table,
		autosaveDebounce: cfg.AutosaveDebounce,
		queueSize:        cfg.QueueSize,
		sessions:         make(map[string]*Session),
	}
}

// Register creates a session whose first queued message is `connected`. kick is called
// if the hub has to drop the session because its queue overflowed.
func (h *Hub) Register(info *ClientInfo, kick func()) *Session {
	if info == nil {
		info = &ClientInfo{}
	}

	s := &Session{
		ID:          uuid.NewString(),
		Info:        info,
		ConnectedAt: time.Now(),
		MsgTx:       make(chan *padmsg.Message, h.queueSize),
		done:        make(chan struct{}),
		kick:        kick,
	}

	id := s.ID
	s.editor = autosave.New(sessionWriter{h: h, id: id}, autosave.Config{
		Origin:   id,
		Debounce: h.autosaveDebounce,
		OnStatus: func(st autosave.Status) {
			h.Send(id, saveStatusMessage(st))
		},
	})

	h.mu.Lock()
	h.sessions[id] = s
	h.wg.Add(1)
	h.enqueueLocked(s, padmsg.NewConnected(id, version.Version))
	active := len(h.sessions)
	h.mu.Unlock()

	slog.Info("hub registered", "sessionId", id, "ipAddr", info.IPAddr, "active", active)
	return s
}

// Unregister flushes the session's pending edits, releases every lock it held and
// broadcasts one file_unlocked per released path. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	if err := s.editor.Close(); err != nil {
		slog.Warn("hub unregister flush", "sessionId", id, "error", err)
	}

	h.mu.Lock()
	released := h.locks.ReleaseAll(id)
	for _, p := range released {
		h.broadcastLocked(padmsg.NewFileUnlocked(p), nil)
	}
	active := len(h.sessions)
	h.mu.Unlock()

	s.markDone()
	h.wg.Done()
	slog.Info("hub unregistered", "sessionId", id, "released", len(released), "active", active)
}

// Broadcast queues msg for every session except the excluded ones.
func (h *Hub) Broadcast(msg *padmsg.Message, exclude ...string) {
	var skip mapset.Set[string]
	if len(exclude) > 0 {
		skip = mapset.NewThreadUnsafeSet(exclude...)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(msg, skip)
}

// Send queues msg for a single session. It reports false if the session is gone.
func (h *Hub) Send(id string, msg *padmsg.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return false
	}
	return h.enqueueLocked(s, msg)
}

// Run turns watcher events into broadcasts until ctx is done or events is closed.
// Own writes are delivered to every session except the one that made them.
func (h *Hub) Run(ctx context.Context, events <-chan watcher.Event) {
	slog.Info("hub started")
	defer slog.Info("hub stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.NotifyChange(ev)
		}
	}
}

func (h *Hub) NotifyChange(ev watcher.Event) {
	var msg *padmsg.Message
	switch ev.Kind {
	case watcher.Created:
		msg = padmsg.NewFileCreated(ev.Path)
	case watcher.Deleted:
		msg = padmsg.NewFileDeleted(ev.Path)
	default:
		msg = padmsg.NewFileModified(ev.Path)
	}

	slog.Debug("hub change", "path", ev.Path, "kind", ev.Kind, "origin", ev.Origin)
	if ev.Origin != "" {
		h.Broadcast(msg, ev.Origin)
	} else {
		h.Broadcast(msg)
	}
}

// NotifyConflict warns every session that versioning is blocked by conflicted files.
func (h *Hub) NotifyConflict(files []string) {
	slog.Warn("hub conflict", "files", files)
	h.Broadcast(padmsg.NewConflict(files))
}

// NotifyRename moves any lock on from to to and tells every session about it.
func (h *Hub) NotifyRename(from, to string) error {
	h.mu.Lock()
	h.writeMu.Lock()
	_, _, err := h.locks.Move(from, to)
	h.writeMu.Unlock()
	if err != nil {
		h.mu.Unlock()
		return err
	}
	editors := make([]*autosave.Scheduler, 0, len(h.sessions))
	for _, s := range h.sessions {
		editors = append(editors, s.editor)
	}
	h.broadcastLocked(padmsg.NewFileRenamed(from, to), nil)
	h.mu.Unlock()

	for _, e := range editors {
		e.Rename(from, to)
	}
	return nil
}

// CheckWritable returns a DeniedError if a session other than origin holds path.
func (h *Hub) CheckWritable(path, origin string) error {
	rec, ok := h.locks.Lookup(path)
	if ok && rec.Holder != origin {
		return &locks.DeniedError{Current: rec}
	}
	return nil
}

func (h *Hub) Locks() []locks.Record {
	return h.locks.List()
}

func (h *Hub) Sessions() []SessionInfo {
	h.mu.Lock()
	list := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	h.mu.Unlock()

	infos := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		infos = append(infos, s.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Shutdown drops every session and waits for their cleanup.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	ids := make([]string, 0, len(h.sessions))
	for id, s := range h.sessions {
		ids = append(ids, id)
		if s.kick != nil {
			go s.kick()
		}
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Unregister(id)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("hub shutdown timed out")
	}
	slog.Info("hub shutdown")
}

func (h *Hub) broadcastLocked(msg *padmsg.Message, skip mapset.Set[string]) {
	for id, s := range h.sessions {
		if skip != nil && skip.Contains(id) {
			continue
		}
		h.enqueueLocked(s, msg)
	}
}

// enqueueLocked never blocks. A session that cannot keep up is dropped instead of
// losing a message, which would break its view of the ordering.
func (h *Hub) enqueueLocked(s *Session, msg *padmsg.Message) bool {
	if s.dropped.Load() {
		return false
	}

	select {
	case s.MsgTx <- msg:
		return true
	default:
		if s.dropped.CompareAndSwap(false, true) {
			slog.Warn("hub send buffer full, dropping session", "sessionId", s.ID, "msgType", msg.Type)
			go func() {
				if s.kick != nil {
					s.kick()
				}
				h.Unregister(s.ID)
			}()
		}
		return false
	}
}

// sessionWriter is the Storage Layer as one session's scheduler sees it: a save is
// refused while another session holds the document's lock.
type sessionWriter struct {
	h  *Hub
	id string
}

func (w sessionWriter) WriteAs(origin string, p string, content []byte) (time.Time, error) {
	w.h.writeMu.Lock()
	defer w.h.writeMu.Unlock()

	if err := w.h.CheckWritable(p, w.id); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", autosave.ErrWriteDenied, err)
	}
	return w.h.store.WriteAs(origin, p, content)
}

func saveStatusMessage(st autosave.Status) *padmsg.Message {
	status := padmsg.SaveStatus{
		Path:    st.Path,
		State:   st.State.String(),
		SavedAt: st.SavedAt,
	}
	if st.Err != nil {
		status.State = "failed"
		status.Error = st.Err.Error()
	}
	return padmsg.NewSaveStatus(status)
}
