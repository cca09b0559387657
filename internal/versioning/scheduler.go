// Package versioning snapshots the data directory into git on a timer. A cycle is skipped,
// never blocked, when another git process holds the repository or the tree has conflicts.
package versioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultInterval = 60 * time.Second
	autoSaveMessage = "Auto-save"
)

var (
	ErrCommitInProgress   = errors.New("versioning: commit already in progress")
	ErrVersioningConflict = errors.New("versioning: working tree has unresolved conflicts")
)

// Repo is the version-control store the scheduler commits to.
type Repo interface {
	IsRepo() bool
	IsLocked() bool
	Conflicts(ctx context.Context) ([]string, error)
	CommitAll(ctx context.Context, message string) (*CommitInfo, error)
}

type State uint8

const (
	Idle State = iota
	Checking
	Committing
	SkippedLocked
	SkippedConflict
)

func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Committing:
		return "committing"
	case SkippedLocked:
		return "skipped_locked"
	case SkippedConflict:
		return "skipped_conflict"
	default:
		return "idle"
	}
}

// Outcome describes how a single cycle ended.
type Outcome struct {
	State     State       `json:"state"`
	Commit    *CommitInfo `json:"commit,omitempty"`
	Conflicts []string    `json:"conflicts,omitempty"`
	Err       error       `json:"-"`
	At        time.Time   `json:"at"`
}

type Config struct {
	Interval   time.Duration
	OnConflict func(files []string)
}

type Scheduler struct {
	repo       Repo
	interval   time.Duration
	onConflict func([]string)

	inProgress atomic.Bool

	mu    sync.Mutex
	state State
	last  Outcome
}

func NewScheduler(repo Repo, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Scheduler{
		repo:       repo,
		interval:   cfg.Interval,
		onConflict: cfg.OnConflict,
	}
}

// State returns the current state and the outcome of the last finished cycle.
func (s *Scheduler) State() (State, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.last
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("versioning scheduler start", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("versioning scheduler stop")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one timer-driven cycle. It is a no-op while another commit is running.
func (s *Scheduler) Tick(ctx context.Context) Outcome {
	if !s.inProgress.CompareAndSwap(false, true) {
		slog.Debug("versioning tick skipped", "reason", "commit in progress")
		return Outcome{State: Idle, Err: ErrCommitInProgress, At: time.Now()}
	}
	defer s.inProgress.Store(false)

	out := s.cycle(ctx, autoSaveMessage)
	switch {
	case out.Err == nil:
		slog.Info("versioning committed", "id", out.Commit.ID, "message", out.Commit.Message)
	case errors.Is(out.Err, ErrNothingToCommit), errors.Is(out.Err, ErrNotRepository):
	case out.State == SkippedLocked || out.State == SkippedConflict:
		slog.Info("versioning tick skipped", "state", out.State, "conflicts", len(out.Conflicts))
	default:
		slog.Warn("versioning tick failed", "error", out.Err)
	}
	return out
}

// CommitNow runs a user-initiated cycle through the same state machine.
func (s *Scheduler) CommitNow(ctx context.Context, message string) (Outcome, error) {
	if !s.inProgress.CompareAndSwap(false, true) {
		return Outcome{}, ErrCommitInProgress
	}
	defer s.inProgress.Store(false)

	if message == "" {
		message = autoSaveMessage
	}
	out := s.cycle(ctx, message)
	return out, out.Err
}

func (s *Scheduler) cycle(ctx context.Context, message string) Outcome {
	s.setState(Checking)

	out := s.check(ctx, message)
	out.At = time.Now()

	s.mu.Lock()
	s.state = Idle
	s.last = out
	s.mu.Unlock()

	if out.State == SkippedConflict && s.onConflict != nil {
		s.onConflict(out.Conflicts)
	}
	return out
}

func (s *Scheduler) check(ctx context.Context, message string) Outcome {
	if !s.repo.IsRepo() {
		return Outcome{State: Idle, Err: ErrNotRepository}
	}
	if s.repo.IsLocked() {
		return Outcome{State: SkippedLocked, Err: ErrVersioningLocked}
	}

	conflicts, err := s.repo.Conflicts(ctx)
	if err != nil {
		if errors.Is(err, ErrVersioningLocked) {
			return Outcome{State: SkippedLocked, Err: err}
		}
		return Outcome{State: Idle, Err: fmt.Errorf("check conflicts: %w", err)}
	}
	if len(conflicts) > 0 {
		return Outcome{State: SkippedConflict, Conflicts: conflicts, Err: ErrVersioningConflict}
	}

	s.setState(Committing)
	commit, err := s.repo.CommitAll(ctx, message)
	if err != nil {
		if errors.Is(err, ErrVersioningLocked) {
			return Outcome{State: SkippedLocked, Err: err}
		}
		return Outcome{State: Idle, Err: err}
	}
	return Outcome{State: Idle, Commit: commit}
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
