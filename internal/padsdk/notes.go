package padsdk

import (
	"context"
	"net/url"
	"strings"

	"github.com/imroc/req/v3"
)

const (
	pathNotes       = "/api/notes"
	pathNotesRename = "/api/notes/rename"
)

type NotesAPI struct {
	client    *req.Client
	sessionID string
}

func newNotesAPI(client *req.Client) *NotesAPI {
	return &NotesAPI{client: client}
}

// AsSession tags writes with a socket session so that session does not get its own
// change notifications back.
func (n *NotesAPI) AsSession(id string) *NotesAPI {
	return &NotesAPI{client: n.client, sessionID: id}
}

func (n *NotesAPI) List(ctx context.Context, dir string) ([]string, error) {
	var out NoteListResponse
	r := n.client.R().
		SetContext(ctx).
		SetSuccessResult(&out)
	if dir != "" {
		r.SetQueryParam("dir", dir)
	}
	resp, err := r.Get(pathNotes)
	if err := handleAPIError(resp, err, "notes list"); err != nil {
		return nil, err
	}
	return out.Notes, nil
}

func (n *NotesAPI) Get(ctx context.Context, p string) (*Note, error) {
	var out Note
	resp, err := n.client.R().
		SetContext(ctx).
		SetSuccessResult(&out).
		Get(notePath(p))
	if err := handleAPIError(resp, err, "notes get"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (n *NotesAPI) Put(ctx context.Context, p string, params *WriteParams) (*WriteResponse, error) {
	var out WriteResponse
	resp, err := n.request(ctx).
		SetBody(params).
		SetSuccessResult(&out).
		Put(notePath(p))
	if err := handleAPIError(resp, err, "notes put"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (n *NotesAPI) Delete(ctx context.Context, p string) error {
	resp, err := n.request(ctx).Delete(notePath(p))
	return handleAPIError(resp, err, "notes delete")
}

func (n *NotesAPI) Rename(ctx context.Context, from, to string) error {
	resp, err := n.request(ctx).
		SetBody(&RenameParams{From: from, To: to}).
		Post(pathNotesRename)
	return handleAPIError(resp, err, "notes rename")
}

// writes are not retried; a repeated create or rename would fail on its own effect
func (n *NotesAPI) request(ctx context.Context) *req.Request {
	r := n.client.R().
		SetContext(ctx).
		SetRetryCount(0)
	if n.sessionID != "" {
		r.SetHeader(HeaderSession, n.sessionID)
	}
	return r
}

func notePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return pathNotes + "/" + strings.Join(parts, "/")
}
