package padsdk

import (
	"fmt"
	"runtime"
	"time"

	"github.com/openmined/padsync/internal/hub"
	"github.com/openmined/padsync/internal/locks"
	"github.com/openmined/padsync/internal/version"
	"github.com/openmined/padsync/internal/versioning"
)

const (
	HeaderUserAgent   = "User-Agent"
	HeaderVersion     = "X-Padsync-Version"
	HeaderSession     = "X-Padsync-Session"
	HeaderWSEncodings = "X-Padsync-WS-Encodings"
)

var PadSyncUserAgent = fmt.Sprintf("PadSync/%s (%s; %s; %s)", version.Version, version.ShortRevision(), runtime.GOOS, runtime.GOARCH)

type StatusResponse struct {
	Version    string            `json:"version"`
	Revision   string            `json:"revision"`
	DataDir    string            `json:"dataDir"`
	StartedAt  time.Time         `json:"startedAt"`
	Uptime     string            `json:"uptime"`
	Sessions   []hub.SessionInfo `json:"sessions"`
	Locks      int               `json:"locks"`
	Versioning string            `json:"versioning"`
}

type LocksResponse struct {
	Locks []locks.Record `json:"locks"`
}

type SessionsResponse struct {
	Sessions []hub.SessionInfo `json:"sessions"`
}

type NoteListResponse struct {
	Notes []string `json:"notes"`
}

type Note struct {
	Path       string    `json:"path"`
	Content    string    `json:"content"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

type WriteParams struct {
	Content string `json:"content"`
	Create  bool   `json:"create"`
}

type WriteResponse struct {
	Path       string    `json:"path"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

type RenameParams struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type GitStatus struct {
	versioning.RepoStatus
	Scheduler struct {
		State         string                 `json:"state"`
		LastState     string                 `json:"lastState,omitempty"`
		LastAt        *time.Time             `json:"lastAt,omitempty"`
		LastCommit    *versioning.CommitInfo `json:"lastCommit,omitempty"`
		LastConflicts []string               `json:"lastConflicts,omitempty"`
		LastError     string                 `json:"lastError,omitempty"`
	} `json:"scheduler"`
}

type CommitParams struct {
	Message string `json:"message,omitempty"`
}

type CommitResponse struct {
	Commit *versioning.CommitInfo `json:"commit"`
}

type ConflictsResponse struct {
	Conflicts []string `json:"conflicts"`
}

type LogResponse struct {
	Commits []versioning.CommitDetail `json:"commits"`
}
