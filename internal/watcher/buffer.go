package watcher

import (
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

type Kind uint8

const (
	Modified Kind = iota
	Created
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	default:
		return "modified"
	}
}

// Event is a coalesced change for one path. Origin is the session that wrote the file
// through the service, empty for external edits.
type Event struct {
	Path   string
	Kind   Kind
	Origin string
	At     time.Time
}

type rawKind uint8

const (
	rawWrite rawKind = iota
	rawCreate
	rawRemove
	rawRename
)

type pending struct {
	first rawKind
	last  time.Time
}

// buffer accumulates raw events between flush cycles, one entry per path. known holds
// the paths that existed when the last cycle ended; it is what separates a creation from
// a rename over an existing document.
type buffer struct {
	mu      sync.Mutex
	entries map[string]*pending
	known   mapset.Set[string]
	exists  func(rel string) bool
	own     *OwnWrites
}

func newBuffer(exists func(string) bool, own *OwnWrites) *buffer {
	return &buffer{
		entries: make(map[string]*pending),
		known:   mapset.NewSet[string](),
		exists:  exists,
		own:     own,
	}
}

// seed marks paths that are already on disk before watching starts.
func (b *buffer) seed(paths ...string) {
	b.known.Append(paths...)
}

func (b *buffer) add(rel string, kind rawKind, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.entries[rel]; ok {
		p.last = at
		return
	}
	b.entries[rel] = &pending{first: kind, last: at}
}

func (b *buffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// flush drains the buffer and classifies each path by what is on disk now and whether
// it existed before the cycle. A temp-file-then-rename burst over an existing document
// collapses into a single Modified, even though the rename arrives as a create; a path
// created and removed inside one window produces nothing.
func (b *buffer) flush() []Event {
	b.mu.Lock()
	entries := b.entries
	b.entries = make(map[string]*pending)
	b.mu.Unlock()

	events := make([]Event, 0, len(entries))
	for rel, p := range entries {
		ev := Event{Path: rel, At: p.last}

		exists := b.exists(rel)
		existed := b.known.Contains(rel)
		if exists {
			b.known.Add(rel)
		} else {
			b.known.Remove(rel)
		}

		switch {
		case !exists && !existed && p.first == rawCreate:
			continue
		case !exists:
			ev.Kind = Deleted
		case !existed && p.first == rawCreate:
			ev.Kind = Created
		default:
			ev.Kind = Modified
		}

		// writes without an originating session reach everyone like external edits
		if b.own != nil {
			if origin, ok := b.own.Match(rel, p.last); ok {
				ev.Origin = origin
			}
		}

		events = append(events, ev)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Path < events[j].Path
	})
	return events
}
