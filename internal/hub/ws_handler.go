package hub

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/openmined/padsync/internal/server/handlers/api"
	"github.com/openmined/padsync/internal/wsproto"
)

const (
	HeaderEncodings = "X-Padsync-WS-Encodings"
	HeaderEncoding  = "X-Padsync-WS-Encoding"
	HeaderVersion   = "X-Padsync-Version"
)

// WebsocketHandler upgrades the request and serves the session until it disconnects.
func (h *Hub) WebsocketHandler(ctx *gin.Context) {
	enc := wsproto.PreferredEncoding(ctx.GetHeader(HeaderEncodings))
	ctx.Writer.Header().Set(HeaderEncoding, strings.ToLower(enc.String()))

	conn, err := websocket.Accept(ctx.Writer, ctx.Request, &websocket.AcceptOptions{
		// local browser tabs on any dev port
		InsecureSkipVerify: true,
	})
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("websocket accept failed: %w", err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	h.Serve(ctx.Request.Context(), conn, &ClientInfo{
		IPAddr:     ctx.ClientIP(),
		UserAgent:  ctx.Request.UserAgent(),
		Headers:    ctx.Request.Header.Clone(),
		Version:    ctx.GetHeader(HeaderVersion),
		WSEncoding: enc,
	})
}
