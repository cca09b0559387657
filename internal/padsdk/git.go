package padsdk

import (
	"context"
	"strconv"

	"github.com/imroc/req/v3"
)

const (
	pathGitStatus    = "/api/git/status"
	pathGitCommit    = "/api/git/commit"
	pathGitConflicts = "/api/git/conflicts"
	pathGitLog       = "/api/git/log"
	pathGitInit      = "/api/git/init"
)

type GitAPI struct {
	client *req.Client
}

func newGitAPI(client *req.Client) *GitAPI {
	return &GitAPI{client: client}
}

func (g *GitAPI) Status(ctx context.Context) (*GitStatus, error) {
	var out GitStatus
	resp, err := g.client.R().
		SetContext(ctx).
		SetSuccessResult(&out).
		Get(pathGitStatus)
	if err := handleAPIError(resp, err, "git status"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Commit snapshots the data directory. An empty message uses the daemon's default.
func (g *GitAPI) Commit(ctx context.Context, message string) (*CommitResponse, error) {
	var out CommitResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetBody(&CommitParams{Message: message}).
		SetSuccessResult(&out).
		Post(pathGitCommit)
	if err := handleAPIError(resp, err, "git commit"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *GitAPI) Conflicts(ctx context.Context) ([]string, error) {
	var out ConflictsResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetSuccessResult(&out).
		Get(pathGitConflicts)
	if err := handleAPIError(resp, err, "git conflicts"); err != nil {
		return nil, err
	}
	return out.Conflicts, nil
}

func (g *GitAPI) Log(ctx context.Context, limit int) (*LogResponse, error) {
	var out LogResponse
	r := g.client.R().
		SetContext(ctx).
		SetSuccessResult(&out)
	if limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := r.Get(pathGitLog)
	if err := handleAPIError(resp, err, "git log"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *GitAPI) Init(ctx context.Context) (*GitStatus, error) {
	var out GitStatus
	resp, err := g.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetSuccessResult(&out).
		Post(pathGitInit)
	if err := handleAPIError(resp, err, "git init"); err != nil {
		return nil, err
	}
	return &out, nil
}
