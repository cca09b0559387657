// Package padsdk is the client for a running padsync daemon: the HTTP API plus the
// session socket.
package padsdk

import (
	"context"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/padsync/internal/version"
)

const (
	pathStatus   = "/api/status"
	pathLocks    = "/api/locks"
	pathSessions = "/api/sessions"
)

type PadSDK struct {
	client  *req.Client
	baseURL string
	Notes   *NotesAPI
	Git     *GitAPI
	Events  *EventsAPI
}

// New creates a client for the daemon at baseURL. token may be empty when the daemon
// runs without auth.
func New(baseURL string, token string) (*PadSDK, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrNoServerURL
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	client := req.C().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetCommonRetryCount(2).
		SetCommonRetryFixedInterval(500*time.Millisecond).
		SetUserAgent(PadSyncUserAgent).
		SetCommonHeader(HeaderVersion, version.Version).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if token != "" {
		client.SetCommonBearerAuthToken(token)
	}

	return &PadSDK{
		client:  client,
		baseURL: baseURL,
		Notes:   newNotesAPI(client),
		Git:     newGitAPI(client),
		Events:  newEventsAPI(baseURL, token),
	}, nil
}

func (s *PadSDK) BaseURL() string {
	return s.baseURL
}

func (s *PadSDK) Health(ctx context.Context) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		Get("/health")
	return handleAPIError(resp, err, "health")
}

func (s *PadSDK) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetSuccessResult(&out).
		Get(pathStatus)
	if err := handleAPIError(resp, err, "status"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PadSDK) Locks(ctx context.Context) (*LocksResponse, error) {
	var out LocksResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetSuccessResult(&out).
		Get(pathLocks)
	if err := handleAPIError(resp, err, "locks"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PadSDK) Sessions(ctx context.Context) (*SessionsResponse, error) {
	var out SessionsResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetSuccessResult(&out).
		Get(pathSessions)
	if err := handleAPIError(resp, err, "sessions"); err != nil {
		return nil, err
	}
	return &out, nil
}
