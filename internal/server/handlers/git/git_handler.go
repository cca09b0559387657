package git

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/padsync/internal/server/handlers/api"
	"github.com/openmined/padsync/internal/versioning"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 500
)

type Repo interface {
	Init(ctx context.Context) error
	Status(ctx context.Context) (*versioning.RepoStatus, error)
	Conflicts(ctx context.Context) ([]string, error)
	Log(ctx context.Context, limit int) ([]versioning.CommitDetail, error)
}

type Scheduler interface {
	State() (versioning.State, versioning.Outcome)
	CommitNow(ctx context.Context, message string) (versioning.Outcome, error)
}

type GitHandler struct {
	repo  Repo
	sched Scheduler
}

func New(repo Repo, sched Scheduler) *GitHandler {
	return &GitHandler{
		repo:  repo,
		sched: sched,
	}
}

func (h *GitHandler) Status(ctx *gin.Context) {
	status, err := h.repo.Status(ctx.Request.Context())
	if err != nil {
		abortWithGitError(ctx, err)
		return
	}

	state, last := h.sched.State()
	resp := &StatusResponse{
		RepoStatus: status,
		Scheduler:  SchedulerStatus{State: state.String()},
	}
	if !last.At.IsZero() {
		resp.Scheduler.LastState = last.State.String()
		resp.Scheduler.LastAt = &last.At
		resp.Scheduler.LastCommit = last.Commit
		resp.Scheduler.LastConflicts = last.Conflicts
		if last.Err != nil {
			resp.Scheduler.LastError = last.Err.Error()
		}
	}

	ctx.PureJSON(http.StatusOK, resp)
}

func (h *GitHandler) Commit(ctx *gin.Context) {
	var req CommitRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
			return
		}
	}

	out, err := h.sched.CommitNow(ctx.Request.Context(), req.Message)
	if err != nil {
		abortWithGitError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &CommitResponse{Commit: out.Commit})
}

func (h *GitHandler) Conflicts(ctx *gin.Context) {
	files, err := h.repo.Conflicts(ctx.Request.Context())
	if err != nil {
		abortWithGitError(ctx, err)
		return
	}
	if files == nil {
		files = []string{}
	}

	ctx.PureJSON(http.StatusOK, &ConflictsResponse{Conflicts: files})
}

func (h *GitHandler) Log(ctx *gin.Context) {
	var req LogRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultLogLimit
	}
	req.Limit = min(req.Limit, maxLogLimit)

	commits, err := h.repo.Log(ctx.Request.Context(), req.Limit)
	if err != nil {
		abortWithGitError(ctx, err)
		return
	}
	if commits == nil {
		commits = []versioning.CommitDetail{}
	}

	ctx.PureJSON(http.StatusOK, &LogResponse{Commits: commits})
}

func (h *GitHandler) Init(ctx *gin.Context) {
	if err := h.repo.Init(ctx.Request.Context()); err != nil {
		abortWithGitError(ctx, err)
		return
	}
	h.Status(ctx)
}

func abortWithGitError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, versioning.ErrNotRepository), errors.Is(err, versioning.ErrGitNotAvailable):
		api.AbortWithError(ctx, http.StatusPreconditionFailed, api.CodeGitNotRepository, err)
	case errors.Is(err, versioning.ErrVersioningLocked):
		api.AbortWithError(ctx, http.StatusLocked, api.CodeGitLocked, err)
	case errors.Is(err, versioning.ErrVersioningConflict):
		api.AbortWithError(ctx, http.StatusConflict, api.CodeGitConflict, err)
	case errors.Is(err, versioning.ErrNothingToCommit):
		api.AbortWithError(ctx, http.StatusConflict, api.CodeGitNoChanges, err)
	case errors.Is(err, versioning.ErrCommitInProgress):
		api.AbortWithError(ctx, http.StatusTooManyRequests, api.CodeGitBusy, err)
	default:
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeGitFailed, err)
	}
}
