package versioning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	DefaultAuthorName  = "PadSync"
	DefaultAuthorEmail = "padsync@local"
	commitTimeFormat   = "2006-01-02 15:04"
	defaultGitignore   = "*.tmp\n.DS_Store\n.padsync/\n"
)

var (
	ErrGitNotAvailable  = errors.New("git is not available on this system")
	ErrNotRepository    = errors.New("versioning: not a git repository")
	ErrNothingToCommit  = errors.New("versioning: no changes to commit")
	ErrVersioningLocked = errors.New("versioning: repository is locked by another process")
)

type FileStatus struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

type CommitInfo struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type CommitDetail struct {
	ID           string    `json:"id"`
	ShortID      string    `json:"shortId"`
	Message      string    `json:"message"`
	Author       string    `json:"author"`
	Timestamp    time.Time `json:"timestamp"`
	FilesChanged int       `json:"filesChanged"`
}

type RepoStatus struct {
	IsRepo     bool         `json:"isRepo"`
	Branch     string       `json:"branch,omitempty"`
	Files      []FileStatus `json:"files"`
	HasChanges bool         `json:"hasChanges"`
	Conflicts  []string     `json:"conflicts,omitempty"`
	LastCommit *CommitInfo  `json:"lastCommit,omitempty"`
}

// GitRepo drives the system git binary against the data directory.
type GitRepo struct {
	dir         string
	authorName  string
	authorEmail string
	now         func() time.Time
}

func NewGitRepo(dir, authorName, authorEmail string) *GitRepo {
	if authorName == "" {
		authorName = DefaultAuthorName
	}
	if authorEmail == "" {
		authorEmail = DefaultAuthorEmail
	}
	return &GitRepo{
		dir:         dir,
		authorName:  authorName,
		authorEmail: authorEmail,
		now:         time.Now,
	}
}

func (r *GitRepo) Dir() string {
	return r.dir
}

func (r *GitRepo) IsRepo() bool {
	info, err := os.Stat(filepath.Join(r.dir, ".git"))
	return err == nil && info.IsDir()
}

// IsLocked reports whether another git process holds the index lock.
func (r *GitRepo) IsLocked() bool {
	_, err := os.Stat(filepath.Join(r.dir, ".git", "index.lock"))
	return err == nil
}

// Init turns the data directory into a repository with an initial commit. Existing
// repositories are left alone.
func (r *GitRepo) Init(ctx context.Context) error {
	if !systemGitAvailable() {
		return ErrGitNotAvailable
	}
	if r.IsRepo() {
		return nil
	}

	if _, err := r.git(ctx, "init", "-q"); err != nil {
		return err
	}

	ignorePath := filepath.Join(r.dir, ".gitignore")
	if _, err := os.Stat(ignorePath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(ignorePath, []byte(defaultGitignore), 0o644); err != nil {
			return fmt.Errorf("create .gitignore: %w", err)
		}
	}

	if _, err := r.CommitAll(ctx, "Initial commit"); err != nil && !errors.Is(err, ErrNothingToCommit) {
		return err
	}

	slog.Info("versioning init", "dir", r.dir)
	return nil
}

func (r *GitRepo) Status(ctx context.Context) (*RepoStatus, error) {
	if !r.IsRepo() {
		return &RepoStatus{Files: []FileStatus{}}, nil
	}

	files, conflicts, err := r.porcelain(ctx)
	if err != nil {
		return nil, err
	}

	status := &RepoStatus{
		IsRepo:     true,
		Files:      files,
		HasChanges: len(files) > 0,
		Conflicts:  conflicts,
	}

	if out, err := r.git(ctx, "symbolic-ref", "--short", "-q", "HEAD"); err == nil {
		status.Branch = strings.TrimSpace(out)
	}
	if last, err := r.lastCommit(ctx); err == nil {
		status.LastCommit = last
	}
	return status, nil
}

// Conflicts lists paths with unresolved merge conflicts.
func (r *GitRepo) Conflicts(ctx context.Context) ([]string, error) {
	if !r.IsRepo() {
		return nil, ErrNotRepository
	}
	_, conflicts, err := r.porcelain(ctx)
	return conflicts, err
}

// CommitAll stages everything and commits it as "<message> (YYYY-MM-DD HH:MM)".
func (r *GitRepo) CommitAll(ctx context.Context, message string) (*CommitInfo, error) {
	if !r.IsRepo() {
		return nil, ErrNotRepository
	}
	if message == "" {
		message = "Auto-save"
	}

	if _, err := r.git(ctx, "add", "-A"); err != nil {
		return nil, err
	}

	if _, err := r.git(ctx, "diff", "--cached", "--quiet"); err == nil {
		return nil, ErrNothingToCommit
	} else if !isExitCode(err, 1) {
		return nil, err
	}

	now := r.now()
	full := fmt.Sprintf("%s (%s)", message, now.Format(commitTimeFormat))
	if _, err := r.git(ctx,
		"-c", "user.name="+r.authorName,
		"-c", "user.email="+r.authorEmail,
		"-c", "commit.gpgsign=false",
		"commit", "-q", "-m", full,
	); err != nil {
		return nil, err
	}

	out, err := r.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}

	return &CommitInfo{
		ID:        shortID(strings.TrimSpace(out)),
		Message:   full,
		Timestamp: now,
	}, nil
}

// Log returns up to limit commits, newest first.
func (r *GitRepo) Log(ctx context.Context, limit int) ([]CommitDetail, error) {
	if !r.IsRepo() {
		return nil, ErrNotRepository
	}
	if limit <= 0 {
		limit = 50
	}

	out, err := r.git(ctx, "log", fmt.Sprintf("-n%d", limit), "--shortstat",
		"--format=%x1e%H%x00%h%x00%s%x00%an%x00%cI")
	if err != nil {
		// unborn branch
		if strings.Contains(err.Error(), "does not have any commits") {
			return []CommitDetail{}, nil
		}
		return nil, err
	}

	commits := []CommitDetail{}
	for _, record := range strings.Split(out, "\x1e") {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}

		header, rest, _ := strings.Cut(record, "\n")
		fields := strings.Split(header, "\x00")
		if len(fields) != 5 {
			continue
		}

		ts, _ := time.Parse(time.RFC3339, fields[4])
		detail := CommitDetail{
			ID:        fields[0],
			ShortID:   fields[1],
			Message:   fields[2],
			Author:    fields[3],
			Timestamp: ts,
		}
		if rest = strings.TrimSpace(rest); rest != "" {
			fmt.Sscanf(rest, "%d file", &detail.FilesChanged)
		}
		commits = append(commits, detail)
	}
	return commits, nil
}

func (r *GitRepo) lastCommit(ctx context.Context) (*CommitInfo, error) {
	out, err := r.git(ctx, "log", "-1", "--format=%H%x00%s%x00%cI")
	if err != nil {
		return nil, err
	}
	fields := strings.Split(strings.TrimSpace(out), "\x00")
	if len(fields) != 3 {
		return nil, fmt.Errorf("unexpected git log output %q", out)
	}
	ts, _ := time.Parse(time.RFC3339, fields[2])
	return &CommitInfo{ID: shortID(fields[0]), Message: fields[1], Timestamp: ts}, nil
}

// porcelain parses `git status --porcelain -z` into changed files and conflicted paths.
func (r *GitRepo) porcelain(ctx context.Context) ([]FileStatus, []string, error) {
	out, err := r.git(ctx, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return nil, nil, err
	}

	files := []FileStatus{}
	conflicts := mapset.NewSet[string]()

	entries := strings.Split(out, "\x00")
	for i := 0; i < len(entries); i++ {
		entry := entries[i]
		if len(entry) < 4 {
			continue
		}
		xy, path := entry[:2], entry[3:]

		if isConflict(xy) {
			conflicts.Add(path)
			continue
		}

		var status string
		switch {
		case xy == "??" || xy[0] == 'A' || xy[1] == 'A':
			status = "new"
		case xy[0] == 'R' || xy[0] == 'C':
			status = "renamed"
			// the source path follows as its own entry
			i++
		case xy[0] == 'D' || xy[1] == 'D':
			status = "deleted"
		case xy[0] == 'M' || xy[1] == 'M' || xy[0] == 'T' || xy[1] == 'T':
			status = "modified"
		default:
			continue
		}
		files = append(files, FileStatus{Path: path, Status: status})
	}

	list := conflicts.ToSlice()
	slices.Sort(list)
	return files, list, nil
}

func (r *GitRepo) git(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", r.dir}, args...)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "index.lock") {
			return "", fmt.Errorf("%w: %s", ErrVersioningLocked, msg)
		}
		return "", &gitError{args: args, stderr: msg, err: err}
	}
	return stdout.String(), nil
}

type gitError struct {
	args   []string
	stderr string
	err    error
}

func (e *gitError) Error() string {
	return fmt.Sprintf("git %s failed: %q: %v", e.args[0], e.stderr, e.err)
}

func (e *gitError) Unwrap() error {
	return e.err
}

func isExitCode(err error, code int) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == code
}

func isConflict(xy string) bool {
	switch xy {
	case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
		return true
	}
	return false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// systemGitAvailable checks if the "git" executable can be found in the system's PATH.
func systemGitAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}
