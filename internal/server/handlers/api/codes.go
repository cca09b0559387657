package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeUnauthorized   = "E_UNAUTHORIZED"    // missing or invalid access token

	// Note errors
	CodeNoteNotFound    = "E_NOTE_NOT_FOUND"    // no document at the given path
	CodeNoteInvalidPath = "E_NOTE_INVALID_PATH" // path escapes the data directory or is reserved
	CodeNoteExists      = "E_NOTE_EXISTS"       // rename or create target already exists
	CodeNoteLocked      = "E_NOTE_LOCKED"       // another session holds the lock on the path
	CodeNoteWriteFailed = "E_NOTE_WRITE_FAILED" // storage write failed

	// Versioning errors
	CodeGitDisabled      = "E_GIT_DISABLED"       // versioning is turned off in config
	CodeGitNotRepository = "E_GIT_NOT_REPOSITORY" // data directory is not a git repository
	CodeGitLocked        = "E_GIT_LOCKED"         // another git process holds the index lock
	CodeGitConflict      = "E_GIT_CONFLICT"       // working tree has unresolved conflicts
	CodeGitNoChanges     = "E_GIT_NO_CHANGES"     // nothing to commit
	CodeGitBusy          = "E_GIT_BUSY"           // a commit is already running
	CodeGitFailed        = "E_GIT_FAILED"         // git command failed
)
