package hub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/openmined/padsync/internal/padmsg"
	"github.com/openmined/padsync/internal/wsproto"
)

const (
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	shutdownReason = "shutdown"
	slowReason     = "slow consumer"
	maxMessageSize = 4 * 1024 * 1024
)

// WebsocketClient pumps one session's queue to its socket and feeds inbound frames
// to the hub.
type WebsocketClient struct {
	hub     *Hub
	session *Session
	conn    *websocket.Conn
	enc     wsproto.Encoding

	wsDone    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Serve registers a session for conn and blocks until the connection ends. The session
// is unregistered before Serve returns.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, info *ClientInfo) {
	c := &WebsocketClient{
		hub:    h,
		conn:   conn,
		enc:    info.WSEncoding,
		wsDone: make(chan struct{}),
	}
	c.session = h.Register(info, func() {
		c.closeConnection(websocket.StatusPolicyViolation, slowReason)
	})

	slog.Debug("wsclient start", "sessionId", c.session.ID, "encoding", c.enc)
	c.wg.Add(1)
	go c.writeLoop(ctx)
	c.readLoop(ctx)

	c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
	c.wg.Wait()
	h.Unregister(c.session.ID)
	slog.Debug("wsclient closed", "sessionId", c.session.ID)
}

func (c *WebsocketClient) closeConnection(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.wsDone)
		c.conn.Close(status, reason)
	})
}

func (c *WebsocketClient) readLoop(ctx context.Context) {
	defer slog.Debug("wsclient reader shutdown", "sessionId", c.session.ID)

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				// connection closed
			} else if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway && status != websocket.StatusNoStatusRcvd {
				slog.Warn("wsclient reader", "sessionId", c.session.ID, "error", err)
			}
			return
		}

		msg, _, err := wsproto.Unmarshal(typ, data)
		if err != nil {
			slog.Warn("wsclient decode", "sessionId", c.session.ID, "error", err)
			c.hub.Send(c.session.ID, padmsg.NewError(http.StatusBadRequest, "", err.Error()))
			continue
		}
		if !msg.Type.IsInbound() {
			c.hub.Send(c.session.ID, padmsg.NewError(http.StatusBadRequest, "", "unexpected message type "+string(msg.Type)))
			continue
		}

		select {
		case <-c.wsDone:
			return
		default:
		}
		c.hub.HandleInbound(c.session.ID, msg)
	}
}

func (c *WebsocketClient) writeLoop(ctx context.Context) {
	defer func() {
		slog.Debug("wsclient writer shutdown", "sessionId", c.session.ID)
		c.wg.Done()
		c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case msg := <-c.session.MsgTx:
			if err := c.write(ctx, msg); err != nil {
				slog.Warn("wsclient writer", "sessionId", c.session.ID, "msgType", msg.Type, "error", err)
				return
			}

		case <-ping.C:
			if err := c.write(ctx, padmsg.NewPing()); err != nil {
				slog.Debug("wsclient ping", "sessionId", c.session.ID, "error", err)
				return
			}

		case <-c.session.Done():
			return

		case <-c.wsDone:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (c *WebsocketClient) write(ctx context.Context, msg *padmsg.Message) error {
	typ, data, err := wsproto.Marshal(msg, c.enc)
	if err != nil {
		return err
	}

	ctxWrite, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctxWrite, typ, data); err != nil {
		return err
	}

	slog.Debug("wsclient writer", "sessionId", c.session.ID, "msgId", msg.Id, "msgType", msg.Type)
	return nil
}
