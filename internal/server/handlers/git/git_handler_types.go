package git

import (
	"time"

	"github.com/openmined/padsync/internal/versioning"
)

type StatusResponse struct {
	*versioning.RepoStatus
	Scheduler SchedulerStatus `json:"scheduler"`
}

type SchedulerStatus struct {
	State         string                 `json:"state"`
	LastState     string                 `json:"lastState,omitempty"`
	LastAt        *time.Time             `json:"lastAt,omitempty"`
	LastCommit    *versioning.CommitInfo `json:"lastCommit,omitempty"`
	LastConflicts []string               `json:"lastConflicts,omitempty"`
	LastError     string                 `json:"lastError,omitempty"`
}

type CommitRequest struct {
	Message string `json:"message"`
}

type CommitResponse struct {
	Commit *versioning.CommitInfo `json:"commit"`
}

type ConflictsResponse struct {
	Conflicts []string `json:"conflicts"`
}

type LogRequest struct {
	Limit int `form:"limit"`
}

type LogResponse struct {
	Commits []versioning.CommitDetail `json:"commits"`
}
