package hub

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openmined/padsync/internal/autosave"
	"github.com/openmined/padsync/internal/locks"
	"github.com/openmined/padsync/internal/padmsg"
	"github.com/openmined/padsync/internal/storage"
)

// HandleInbound applies one message from a session. Callers deliver a session's
// messages one at a time, in arrival order.
func (h *Hub) HandleInbound(id string, msg *padmsg.Message) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		slog.Debug("hub inbound for unknown session", "sessionId", id, "msgType", msg.Type)
		return
	}

	slog.Debug("hub inbound", "sessionId", id, "msgType", msg.Type, "msgId", msg.Id)

	switch data := msg.Data.(type) {
	case *padmsg.LockFile:
		h.handleLock(s, data)
	case *padmsg.UnlockFile:
		h.handleUnlock(s, data)
	case *padmsg.OpenFile:
		h.handleOpen(s, data)
	case *padmsg.EditFile:
		h.handleEdit(s, data)
	default:
		switch msg.Type {
		case padmsg.MsgFlushFile:
			h.handleFlush(s)
		case padmsg.MsgCloseFile:
			h.handleClose(s)
		case padmsg.MsgPong:
		default:
			h.replyError(s, http.StatusBadRequest, "", fmt.Errorf("unsupported message type %q", msg.Type))
		}
	}
}

func (h *Hub) handleLock(s *Session, req *padmsg.LockFile) {
	path, err := storage.CleanPath(req.Path)
	if err != nil {
		h.replyError(s, http.StatusBadRequest, req.Path, err)
		return
	}
	kind, err := locks.ParseKind(req.Kind)
	if err != nil {
		h.replyError(s, http.StatusBadRequest, path, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.writeMu.Lock()
	rec, err := h.locks.Acquire(path, s.ID, kind)
	h.writeMu.Unlock()
	var denied *locks.DeniedError
	switch {
	case errors.As(err, &denied):
		cur := denied.Current
		h.enqueueLocked(s, padmsg.NewLockDenied(cur.Path, cur.Holder, string(cur.Kind)))
	case err != nil:
		h.enqueueLocked(s, padmsg.NewError(http.StatusBadRequest, path, err.Error()))
	default:
		h.broadcastLocked(padmsg.NewFileLocked(rec.Path, rec.Holder, string(rec.Kind)), nil)
	}
}

func (h *Hub) handleUnlock(s *Session, req *padmsg.UnlockFile) {
	path, err := storage.CleanPath(req.Path)
	if err != nil {
		h.replyError(s, http.StatusBadRequest, req.Path, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch err := h.locks.Release(path, s.ID); {
	case errors.Is(err, locks.ErrNotLocked):
		h.enqueueLocked(s, padmsg.NewError(http.StatusNotFound, path, err.Error()))
	case errors.Is(err, locks.ErrNotHolder):
		h.enqueueLocked(s, padmsg.NewError(http.StatusConflict, path, err.Error()))
	case err != nil:
		h.enqueueLocked(s, padmsg.NewError(http.StatusBadRequest, path, err.Error()))
	default:
		h.broadcastLocked(padmsg.NewFileUnlocked(path), nil)
	}
}

// handleOpen switches the session's editor to a new document. Pending edits for the
// outgoing document are flushed before the new baseline is read, so reopening the same
// path never adopts a stale baseline. Edits refused because another session holds the
// outgoing document have already been reported as failed and do not block the switch.
func (h *Hub) handleOpen(s *Session, req *padmsg.OpenFile) {
	path, err := storage.CleanPath(req.Path)
	if err != nil {
		h.replyError(s, http.StatusBadRequest, req.Path, err)
		return
	}

	if err := s.editor.FlushNow(); err != nil && !errors.Is(err, autosave.ErrWriteDenied) {
		current, _ := s.editor.Current()
		h.replyError(s, http.StatusConflict, current, fmt.Errorf("unsaved changes, staying on %s: %w", current, err))
		return
	}

	doc, err := h.store.Read(path)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			code = http.StatusNotFound
		}
		h.replyError(s, code, path, err)
		return
	}

	if err := s.editor.OnDocumentSwitch(path, string(doc.Content)); err != nil {
		current, _ := s.editor.Current()
		h.replyError(s, http.StatusConflict, current, fmt.Errorf("unsaved changes, staying on %s: %w", current, err))
		return
	}

	h.Send(s.ID, padmsg.NewFileOpened(path, string(doc.Content), doc.ModifiedAt))
}

func (h *Hub) handleEdit(s *Session, req *padmsg.EditFile) {
	path, err := storage.CleanPath(req.Path)
	if err != nil {
		h.replyError(s, http.StatusBadRequest, req.Path, err)
		return
	}

	current, _ := s.editor.Current()
	if current == "" {
		h.replyError(s, http.StatusConflict, path, autosave.ErrNoDocument)
		return
	}
	if current != path {
		h.replyError(s, http.StatusConflict, path, fmt.Errorf("edit for %s but %s is open", path, current))
		return
	}

	if err := h.CheckWritable(path, s.ID); err != nil {
		h.replyError(s, http.StatusLocked, path, err)
		return
	}

	if err := s.editor.OnEdit(req.Content); err != nil {
		h.replyError(s, http.StatusConflict, path, err)
	}
}

func (h *Hub) handleFlush(s *Session) {
	if err := s.editor.FlushNow(); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, autosave.ErrWriteDenied) {
			code = http.StatusLocked
		}
		current, _ := s.editor.Current()
		h.replyError(s, code, current, err)
	}
}

func (h *Hub) handleClose(s *Session) {
	current, _ := s.editor.Current()
	if err := s.editor.OnDocumentSwitch("", ""); err != nil {
		h.replyError(s, http.StatusInternalServerError, current, err)
	}
}

func (h *Hub) replyError(s *Session, code int, path string, err error) {
	slog.Debug("hub reply error", "sessionId", s.ID, "code", code, "path", path, "error", err)
	h.Send(s.ID, padmsg.NewError(code, path, err.Error()))
}
