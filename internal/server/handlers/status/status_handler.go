package status

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/padsync/internal/hub"
	"github.com/openmined/padsync/internal/locks"
	"github.com/openmined/padsync/internal/version"
	"github.com/openmined/padsync/internal/versioning"
)

type Hub interface {
	Locks() []locks.Record
	Sessions() []hub.SessionInfo
}

type Versioning interface {
	State() (versioning.State, versioning.Outcome)
}

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

type StatusHandler struct {
	hub       Hub
	vcs       Versioning
	dataDir   string
	startedAt time.Time
}

// New returns a status handler. vcs may be nil when versioning is disabled.
func New(h Hub, vcs Versioning, dataDir string) *StatusHandler {
	return &StatusHandler{
		hub:       h,
		vcs:       vcs,
		dataDir:   dataDir,
		startedAt: time.Now(),
	}
}

func (h *StatusHandler) Status(ctx *gin.Context) {
	vcsState := "disabled"
	if h.vcs != nil {
		state, _ := h.vcs.State()
		vcsState = state.String()
	}

	ctx.PureJSON(http.StatusOK, &StatusResponse{
		Version:    version.Version,
		Revision:   version.ShortRevision(),
		DataDir:    h.dataDir,
		StartedAt:  h.startedAt,
		Uptime:     time.Since(h.startedAt).Round(time.Second).String(),
		Sessions:   h.hub.Sessions(),
		Locks:      len(h.hub.Locks()),
		Versioning: vcsState,
	})
}

func (h *StatusHandler) Locks(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, &LocksResponse{Locks: h.hub.Locks()})
}

func (h *StatusHandler) Sessions(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, &SessionsResponse{Sessions: h.hub.Sessions()})
}
