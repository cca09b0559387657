package hub

import (
	"net/http"
	"time"

	"github.com/openmined/padsync/internal/storage"
	"github.com/openmined/padsync/internal/wsproto"
)

type ClientInfo struct {
	IPAddr     string
	UserAgent  string
	Headers    http.Header
	Version    string
	WSEncoding wsproto.Encoding
}

// Store is the part of the Storage Layer the hub needs to serve open and edit requests.
type Store interface {
	Read(p string) (*storage.Document, error)
	WriteAs(origin string, p string, content []byte) (time.Time, error)
}

// SessionInfo is a read-only view of a connected session.
type SessionInfo struct {
	ID          string    `json:"id"`
	IPAddr      string    `json:"ipAddr"`
	UserAgent   string    `json:"userAgent,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	OpenPath    string    `json:"openPath,omitempty"`
	SaveState   string    `json:"saveState,omitempty"`
}
