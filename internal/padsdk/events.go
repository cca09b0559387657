package padsdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/openmined/padsync/internal/padmsg"
	"github.com/openmined/padsync/internal/version"
	"github.com/openmined/padsync/internal/wsproto"
)

const (
	eventsPath              = "/ws"
	eventsBufferSize        = 64
	eventsHandshakeTimeout  = 10 * time.Second
	eventsWriteTimeout      = 5 * time.Second
	eventsReconnectDelay    = 1 * time.Second
	eventsMaxReconnectDelay = 8 * time.Second
	wsClientMaxMessageSize  = 4 * 1024 * 1024 // 4MB
)

type EventsAPI struct {
	baseURL  string
	token    string
	encoding wsproto.Encoding
}

func newEventsAPI(baseURL, token string) *EventsAPI {
	return &EventsAPI{
		baseURL:  baseURL,
		token:    token,
		encoding: wsproto.EncodingJSON,
	}
}

// UseMsgPack asks the daemon for binary msgpack frames.
func (e *EventsAPI) UseMsgPack() {
	e.encoding = wsproto.EncodingMsgPack
}

// Connect opens a session and waits for the daemon's connected message.
func (e *EventsAPI) Connect(ctx context.Context) (*EventStream, error) {
	wsURL, err := e.fullURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set(HeaderUserAgent, PadSyncUserAgent)
	header.Set(HeaderVersion, version.Version)
	header.Set(HeaderWSEncodings, e.encoding.String())

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("sdk: events: connect %s: %w", e.baseURL, err)
	}
	conn.SetReadLimit(wsClientMaxMessageSize)

	hsCtx, cancel := context.WithTimeout(ctx, eventsHandshakeTimeout)
	defer cancel()

	typ, raw, err := conn.Read(hsCtx)
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("sdk: events: handshake: %w", err)
	}
	msg, _, err := wsproto.Unmarshal(typ, raw)
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("sdk: events: handshake: %w", err)
	}
	hello, ok := msg.Data.(*padmsg.Connected)
	if msg.Type != padmsg.MsgConnected || !ok {
		conn.CloseNow()
		return nil, fmt.Errorf("%w: got %s", ErrEventsHandshake, msg.Type)
	}

	s := &EventStream{
		conn:          conn,
		encoding:      e.encoding,
		sessionID:     hello.SessionID,
		serverVersion: hello.Version,
		messages:      make(chan *padmsg.Message, eventsBufferSize),
		closed:        make(chan struct{}),
	}
	go s.readLoop()

	slog.Debug("events connected", "sessionId", s.sessionID, "server", s.serverVersion)
	return s, nil
}

// Listen keeps a session open until ctx is done, reconnecting with backoff, and calls
// onConnect for every new session and fn for every message received.
func (e *EventsAPI) Listen(ctx context.Context, onConnect func(*EventStream), fn func(*padmsg.Message)) error {
	delay := eventsReconnectDelay

	for {
		stream, err := e.Connect(ctx)
		if err == nil {
			delay = eventsReconnectDelay
			if onConnect != nil {
				onConnect(stream)
			}
			e.drain(ctx, stream, fn)
			stream.Close()
		} else {
			slog.Warn("events connect", "error", err, "retry", delay)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay = min(delay*2, eventsMaxReconnectDelay)
		jitterFactor := 0.75 + (rand.Float64() * 0.5)
		delay = time.Duration(float64(delay) * jitterFactor)
	}
}

func (e *EventsAPI) drain(ctx context.Context, stream *EventStream, fn func(*padmsg.Message)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream.Messages():
			if !ok {
				if err := stream.Err(); err != nil {
					slog.Warn("events disconnected", "error", err)
				}
				return
			}
			fn(msg)
		}
	}
}

func (e *EventsAPI) fullURL() (string, error) {
	u, err := url.Parse(e.baseURL + eventsPath)
	if err != nil {
		return "", fmt.Errorf("sdk: events: invalid url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	if e.token != "" {
		q := u.Query()
		q.Set("token", e.token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// EventStream is one connected session.
type EventStream struct {
	conn          *websocket.Conn
	encoding      wsproto.Encoding
	sessionID     string
	serverVersion string

	messages  chan *padmsg.Message
	closed    chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex

	errMu sync.Mutex
	err   error
}

func (s *EventStream) SessionID() string {
	return s.sessionID
}

func (s *EventStream) ServerVersion() string {
	return s.serverVersion
}

// Messages is closed when the connection ends.
func (s *EventStream) Messages() <-chan *padmsg.Message {
	return s.messages
}

// Err returns why the stream ended, nil for a normal close.
func (s *EventStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *EventStream) Send(ctx context.Context, msg *padmsg.Message) error {
	select {
	case <-s.closed:
		return ErrEventsNotConnected
	default:
	}

	typ, payload, err := wsproto.Marshal(msg, s.encoding)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, eventsWriteTimeout)
	defer cancel()
	return s.conn.Write(ctx, typ, payload)
}

func (s *EventStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close(websocket.StatusNormalClosure, "bye")
	})
	return err
}

func (s *EventStream) readLoop() {
	defer close(s.messages)

	for {
		typ, raw, err := s.conn.Read(context.Background())
		if err != nil {
			if !isExpectedCloseError(err) {
				s.errMu.Lock()
				s.err = err
				s.errMu.Unlock()
			}
			return
		}

		msg, _, err := wsproto.Unmarshal(typ, raw)
		if err != nil {
			slog.Warn("events decode", "error", err)
			continue
		}

		if msg.Type == padmsg.MsgPing {
			go s.Send(context.Background(), padmsg.NewPong())
			continue
		}

		select {
		case s.messages <- msg:
		case <-s.closed:
			return
		}
	}
}

func isExpectedCloseError(err error) bool {
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}
