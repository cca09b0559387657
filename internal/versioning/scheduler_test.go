package versioning

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu          sync.Mutex
	lockedTicks int
	conflicts   []string
	nothing     bool
	commits     []string
	block       chan struct{}
}

func (f *fakeRepo) IsRepo() bool { return true }

func (f *fakeRepo) IsLocked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockedTicks > 0 {
		f.lockedTicks--
		return true
	}
	return false
}

func (f *fakeRepo) Conflicts(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conflicts, nil
}

func (f *fakeRepo) CommitAll(ctx context.Context, message string) (*CommitInfo, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nothing {
		return nil, ErrNothingToCommit
	}
	f.commits = append(f.commits, message)
	return &CommitInfo{ID: "deadbeef", Message: message, Timestamp: time.Now()}, nil
}

func (f *fakeRepo) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commits)
}

func TestTickSkipsWhileLockedThenCommits(t *testing.T) {
	repo := &fakeRepo{lockedTicks: 3}
	s := NewScheduler(repo, Config{Interval: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out := s.Tick(ctx)
		assert.Equal(t, SkippedLocked, out.State)
		assert.ErrorIs(t, out.Err, ErrVersioningLocked)
		assert.Zero(t, repo.commitCount())
	}

	out := s.Tick(ctx)
	require.NoError(t, out.Err)
	assert.Equal(t, Idle, out.State)
	require.NotNil(t, out.Commit)
	assert.Equal(t, []string{"Auto-save"}, repo.commits)

	state, last := s.State()
	assert.Equal(t, Idle, state)
	assert.Equal(t, out.Commit, last.Commit)
}

func TestTickSkipsOnConflict(t *testing.T) {
	repo := &fakeRepo{conflicts: []string{"notes/a.md", "notes/b.md"}}
	var reported []string
	s := NewScheduler(repo, Config{OnConflict: func(files []string) { reported = files }})

	out := s.Tick(context.Background())
	assert.Equal(t, SkippedConflict, out.State)
	assert.ErrorIs(t, out.Err, ErrVersioningConflict)
	assert.Equal(t, []string{"notes/a.md", "notes/b.md"}, reported)
	assert.Zero(t, repo.commitCount())
}

func TestCommitNowNothingToCommit(t *testing.T) {
	repo := &fakeRepo{nothing: true}
	s := NewScheduler(repo, Config{})

	_, err := s.CommitNow(context.Background(), "manual")
	assert.ErrorIs(t, err, ErrNothingToCommit)
}

func TestCommitNowUsesMessage(t *testing.T) {
	repo := &fakeRepo{}
	s := NewScheduler(repo, Config{})

	out, err := s.CommitNow(context.Background(), "before trip")
	require.NoError(t, err)
	assert.Equal(t, "before trip", out.Commit.Message)
}

func TestCommitMutualExclusion(t *testing.T) {
	repo := &fakeRepo{block: make(chan struct{})}
	s := NewScheduler(repo, Config{})

	var done atomic.Bool
	go func() {
		s.Tick(context.Background())
		done.Store(true)
	}()

	require.Eventually(t, func() bool {
		state, _ := s.State()
		return state == Committing
	}, 2*time.Second, 5*time.Millisecond)

	_, err := s.CommitNow(context.Background(), "manual")
	assert.ErrorIs(t, err, ErrCommitInProgress)

	out := s.Tick(context.Background())
	assert.ErrorIs(t, out.Err, ErrCommitInProgress)

	close(repo.block)
	require.Eventually(t, done.Load, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, repo.commitCount())

	_, err = s.CommitNow(context.Background(), "manual")
	assert.NoError(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	repo := &fakeRepo{}
	s := NewScheduler(repo, Config{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return repo.commitCount() > 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "skipped_locked", SkippedLocked.String())
	assert.Equal(t, "skipped_conflict", SkippedConflict.String())
}
