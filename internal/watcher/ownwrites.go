package watcher

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultSuppressWindow = 2 * time.Second
	DefaultOwnWriteTTL    = 5 * time.Second
	ownWriteCacheSize     = 4096
)

type ownWrite struct {
	origin string
	at     time.Time
}

// OwnWrites remembers recent writes made through the service so the watcher can tell
// them apart from external edits. Matching is a time-window heuristic: an external edit
// landing inside the window of an own write on the same path is suppressed as well.
type OwnWrites struct {
	cache  *expirable.LRU[string, ownWrite]
	window time.Duration
	now    func() time.Time
}

func NewOwnWrites(window, ttl time.Duration) *OwnWrites {
	if window <= 0 {
		window = DefaultSuppressWindow
	}
	if ttl < window {
		ttl = window
	}
	return &OwnWrites{
		cache:  expirable.NewLRU[string, ownWrite](ownWriteCacheSize, nil, ttl),
		window: window,
		now:    time.Now,
	}
}

// RecordWrite implements storage.WriteRecorder.
func (o *OwnWrites) RecordWrite(path string, origin string) {
	o.cache.Add(path, ownWrite{origin: origin, at: o.now()})
}

// Match reports whether an event observed at the given instant belongs to a recorded own write,
// returning the session that originated it.
func (o *OwnWrites) Match(path string, at time.Time) (string, bool) {
	w, ok := o.cache.Peek(path)
	if !ok {
		return "", false
	}

	d := at.Sub(w.at)
	if d < 0 {
		d = -d
	}
	if d > o.window {
		return "", false
	}
	return w.origin, true
}

func (o *OwnWrites) Window() time.Duration {
	return o.window
}
