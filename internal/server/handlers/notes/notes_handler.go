package notes

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/padsync/internal/locks"
	"github.com/openmined/padsync/internal/server/handlers/api"
	"github.com/openmined/padsync/internal/server/middlewares"
	"github.com/openmined/padsync/internal/storage"
)

// Store is the slice of the storage layer the notes API works on.
type Store interface {
	List(dir string) ([]string, error)
	Read(p string) (*storage.Document, error)
	WriteAs(origin string, p string, content []byte) (time.Time, error)
	Create(origin string, p string, content []byte) (time.Time, error)
	Delete(origin string, p string) error
	Rename(origin string, from, to string) error
}

// Coordinator guards writes against other sessions' locks and propagates renames.
type Coordinator interface {
	CheckWritable(path, origin string) error
	NotifyRename(from, to string) error
}

type NotesHandler struct {
	store Store
	hub   Coordinator
}

func New(store Store, hub Coordinator) *NotesHandler {
	return &NotesHandler{
		store: store,
		hub:   hub,
	}
}

func (h *NotesHandler) List(ctx *gin.Context) {
	var req ListRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	notes, err := h.store.List(req.Dir)
	if err != nil {
		abortWithStorageError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &ListResponse{Notes: notes})
}

func (h *NotesHandler) Get(ctx *gin.Context) {
	p, ok := notePath(ctx)
	if !ok {
		return
	}

	doc, err := h.store.Read(p)
	if err != nil {
		abortWithStorageError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &NoteResponse{
		Path:       doc.Path,
		Content:    string(doc.Content),
		Size:       doc.Size,
		ModifiedAt: doc.ModifiedAt,
	})
}

func (h *NotesHandler) Put(ctx *gin.Context) {
	p, ok := notePath(ctx)
	if !ok {
		return
	}

	var req WriteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	origin := middlewares.SessionID(ctx)
	if err := h.hub.CheckWritable(p, origin); err != nil {
		abortWithLockError(ctx, err)
		return
	}

	write := h.store.WriteAs
	if req.Create {
		write = h.store.Create
	}
	modAt, err := write(origin, p, []byte(req.Content))
	if err != nil {
		abortWithStorageError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &WriteResponse{Path: p, ModifiedAt: modAt})
}

func (h *NotesHandler) Delete(ctx *gin.Context) {
	p, ok := notePath(ctx)
	if !ok {
		return
	}

	origin := middlewares.SessionID(ctx)
	if err := h.hub.CheckWritable(p, origin); err != nil {
		abortWithLockError(ctx, err)
		return
	}

	if err := h.store.Delete(origin, p); err != nil {
		abortWithStorageError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *NotesHandler) Rename(ctx *gin.Context) {
	var req RenameRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	from, err := storage.CleanPath(req.From)
	if err != nil {
		abortWithStorageError(ctx, err)
		return
	}
	to, err := storage.CleanPath(req.To)
	if err != nil {
		abortWithStorageError(ctx, err)
		return
	}

	origin := middlewares.SessionID(ctx)
	for _, p := range []string{from, to} {
		if err := h.hub.CheckWritable(p, origin); err != nil {
			abortWithLockError(ctx, err)
			return
		}
	}

	if err := h.store.Rename(origin, from, to); err != nil {
		abortWithStorageError(ctx, err)
		return
	}

	// the file already moved, so a lock that cannot follow is only logged
	if err := h.hub.NotifyRename(from, to); err != nil {
		ctx.Error(fmt.Errorf("move lock %s -> %s: %w", from, to, err))
	}

	ctx.PureJSON(http.StatusOK, &RenameResponse{From: from, To: to})
}

func notePath(ctx *gin.Context) (string, bool) {
	raw := strings.TrimPrefix(ctx.Param("path"), "/")
	p, err := storage.CleanPath(raw)
	if err != nil {
		abortWithStorageError(ctx, err)
		return "", false
	}
	return p, true
}

func abortWithStorageError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeNoteNotFound, err)
	case errors.Is(err, storage.ErrInvalidPath):
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeNoteInvalidPath, err)
	case errors.Is(err, storage.ErrExists):
		api.AbortWithError(ctx, http.StatusConflict, api.CodeNoteExists, err)
	default:
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeNoteWriteFailed, err)
	}
}

func abortWithLockError(ctx *gin.Context, err error) {
	if errors.Is(err, locks.ErrLockDenied) {
		api.AbortWithError(ctx, http.StatusLocked, api.CodeNoteLocked, err)
		return
	}
	api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
}
