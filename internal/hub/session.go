package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/openmined/padsync/internal/autosave"
	"github.com/openmined/padsync/internal/padmsg"
)

// Session is one connected view. The hub enqueues outbound messages on MsgTx in the
// order it processed the state transitions behind them; a transport drains MsgTx until
// Done is closed.
type Session struct {
	ID          string
	Info        *ClientInfo
	ConnectedAt time.Time
	MsgTx       chan *padmsg.Message

	editor   *autosave.Scheduler
	done     chan struct{}
	doneOnce sync.Once
	dropped  atomic.Bool
	kick     func()
}

// Done is closed once the hub has unregistered the session.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) markDone() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) info() SessionInfo {
	path, state := s.editor.Current()
	si := SessionInfo{
		ID:          s.ID,
		ConnectedAt: s.ConnectedAt,
		OpenPath:    path,
	}
	if s.Info != nil {
		si.IPAddr = s.Info.IPAddr
		si.UserAgent = s.Info.UserAgent
	}
	if path != "" {
		si.SaveState = state.String()
	}
	return si
}
