package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/openmined/padsync/internal/config"
	"github.com/openmined/padsync/internal/locks"
	"github.com/openmined/padsync/internal/server/handlers/api"
	"github.com/openmined/padsync/internal/server/handlers/git"
	"github.com/openmined/padsync/internal/server/handlers/notes"
	"github.com/openmined/padsync/internal/server/handlers/status"
	"github.com/openmined/padsync/internal/server/middlewares"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServices(t *testing.T, versioning bool) *Services {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.LogFile = ""
	cfg.Versioning.Enabled = versioning
	require.NoError(t, cfg.Validate())

	svc, err := NewServices(cfg)
	require.NoError(t, err)
	return svc
}

func do(t *testing.T, h http.Handler, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func sessionHeader(id string) http.Header {
	return http.Header{middlewares.HeaderSession: []string{id}}
}

func TestHealthAndIndex(t *testing.T) {
	h := SetupRoutes(newTestServices(t, false), RouteConfig{})

	w := do(t, h, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = do(t, h, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "PadSync")

	w = do(t, h, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotes_CRUD(t *testing.T) {
	h := SetupRoutes(newTestServices(t, false), RouteConfig{})

	w := do(t, h, http.MethodPut, "/api/notes/daily/today.md", notes.WriteRequest{Content: "# today"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	written := decode[notes.WriteResponse](t, w)
	assert.Equal(t, "daily/today.md", written.Path)
	assert.False(t, written.ModifiedAt.IsZero())

	w = do(t, h, http.MethodGet, "/api/notes/daily/today.md", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	note := decode[notes.NoteResponse](t, w)
	assert.Equal(t, "# today", note.Content)
	assert.EqualValues(t, 7, note.Size)

	w = do(t, h, http.MethodGet, "/api/notes", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"daily/today.md"}, decode[notes.ListResponse](t, w).Notes)

	w = do(t, h, http.MethodPut, "/api/notes/daily/today.md", notes.WriteRequest{Content: "x", Create: true}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, api.CodeNoteExists, decode[api.APIError](t, w).Code)

	w = do(t, h, http.MethodDelete, "/api/notes/daily/today.md", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/api/notes/daily/today.md", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, api.CodeNoteNotFound, decode[api.APIError](t, w).Code)
}

func TestNotes_ReservedPath(t *testing.T) {
	h := SetupRoutes(newTestServices(t, false), RouteConfig{})

	w := do(t, h, http.MethodPut, "/api/notes/.padsync/state.md", notes.WriteRequest{Content: "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, api.CodeNoteInvalidPath, decode[api.APIError](t, w).Code)
}

func TestNotes_WriteRespectsLocks(t *testing.T) {
	svc := newTestServices(t, false)
	h := SetupRoutes(svc, RouteConfig{})

	_, err := svc.Locks.Acquire("plan.md", "sess-a", locks.KindEditor)
	require.NoError(t, err)

	// anonymous and other sessions are refused
	w := do(t, h, http.MethodPut, "/api/notes/plan.md", notes.WriteRequest{Content: "b"}, nil)
	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Equal(t, api.CodeNoteLocked, decode[api.APIError](t, w).Code)

	w = do(t, h, http.MethodPut, "/api/notes/plan.md", notes.WriteRequest{Content: "b"}, sessionHeader("sess-b"))
	assert.Equal(t, http.StatusLocked, w.Code)

	w = do(t, h, http.MethodPut, "/api/notes/plan.md", notes.WriteRequest{Content: "a"}, sessionHeader("sess-a"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodDelete, "/api/notes/plan.md", nil, sessionHeader("sess-b"))
	assert.Equal(t, http.StatusLocked, w.Code)
}

func TestNotes_RenameMovesLock(t *testing.T) {
	svc := newTestServices(t, false)
	h := SetupRoutes(svc, RouteConfig{})

	_, err := svc.Store.Write("old.md", []byte("x"))
	require.NoError(t, err)
	_, err = svc.Locks.Acquire("old.md", "sess-a", locks.KindStructuredView)
	require.NoError(t, err)

	w := do(t, h, http.MethodPost, "/api/notes/rename", notes.RenameRequest{From: "old.md", To: "new.md"}, sessionHeader("sess-b"))
	assert.Equal(t, http.StatusLocked, w.Code)

	w = do(t, h, http.MethodPost, "/api/notes/rename", notes.RenameRequest{From: "old.md", To: "new.md"}, sessionHeader("sess-a"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, notes.RenameResponse{From: "old.md", To: "new.md"}, decode[notes.RenameResponse](t, w))

	_, held := svc.Locks.Lookup("old.md")
	assert.False(t, held)
	rec, held := svc.Locks.Lookup("new.md")
	require.True(t, held)
	assert.Equal(t, "sess-a", rec.Holder)
	assert.Equal(t, locks.KindStructuredView, rec.Kind)
	assert.True(t, svc.Store.Exists("new.md"))
}

func TestStatusAndLocks(t *testing.T) {
	svc := newTestServices(t, false)
	h := SetupRoutes(svc, RouteConfig{})

	_, err := svc.Locks.Acquire("a.md", "sess-a", locks.KindEditor)
	require.NoError(t, err)

	w := do(t, h, http.MethodGet, "/api/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[status.StatusResponse](t, w)
	assert.Equal(t, 1, st.Locks)
	assert.Equal(t, "disabled", st.Versioning)
	assert.Equal(t, svc.Store.Root(), st.DataDir)
	assert.Empty(t, st.Sessions)

	w = do(t, h, http.MethodGet, "/api/locks", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[status.LocksResponse](t, w).Locks
	require.Len(t, list, 1)
	assert.Equal(t, "a.md", list[0].Path)
	assert.Equal(t, "sess-a", list[0].Holder)

	w = do(t, h, http.MethodGet, "/api/git/status", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, api.CodeGitDisabled, decode[api.APIError](t, w).Code)
}

func TestTokenRequired(t *testing.T) {
	h := SetupRoutes(newTestServices(t, false), RouteConfig{Token: "s3cret"})

	w := do(t, h, http.MethodGet, "/api/status", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodGet, "/ws", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodGet, "/api/status", nil, http.Header{"Authorization": []string{"Bearer s3cret"}})
	assert.Equal(t, http.StatusOK, w.Code)

	// health stays open without a token
	w = do(t, h, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGitRoutes(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	svc := newTestServices(t, true)
	h := SetupRoutes(svc, RouteConfig{})

	w := do(t, h, http.MethodPost, "/api/git/init", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[git.StatusResponse](t, w)
	assert.True(t, st.IsRepo)
	assert.Equal(t, "idle", st.Scheduler.State)

	w = do(t, h, http.MethodPut, "/api/notes/idea.md", notes.WriteRequest{Content: "idea"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/api/git/commit", git.CommitRequest{Message: "Add idea"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	commit := decode[git.CommitResponse](t, w).Commit
	require.NotNil(t, commit)
	assert.Contains(t, commit.Message, "Add idea")

	w = do(t, h, http.MethodPost, "/api/git/commit", nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, api.CodeGitNoChanges, decode[api.APIError](t, w).Code)

	w = do(t, h, http.MethodGet, "/api/git/log?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[git.LogResponse](t, w).Commits, 2)

	w = do(t, h, http.MethodGet, "/api/git/conflicts", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[git.ConflictsResponse](t, w).Conflicts)
}
