// ABOUTME: WebSocket endpoint for the real-time channel: authentication, presence and event dispatch
// ABOUTME: Each connection owns a buffered outbound queue drained by a single writer goroutine

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/2389/dm-gateway/internal/auth"
	"github.com/2389/dm-gateway/internal/conversation"
	"github.com/2389/dm-gateway/internal/delivery"
	"github.com/2389/dm-gateway/internal/metrics"
)

const (
	// outboundBuffer is how many events may wait for the writer before pushes are dropped.
	outboundBuffer = 64

	// maxFrameSize caps inbound frames.
	maxFrameSize = 64 << 10
)

// socketConn is the presence handle for one WebSocket connection.
type socketConn struct {
	id           string
	userID       int64
	ws           *websocket.Conn
	out          chan *delivery.Event
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	logger       *slog.Logger
}

func newSocketConn(ws *websocket.Conn, userID int64, writeTimeout time.Duration, logger *slog.Logger) *socketConn {
	id := uuid.NewString()
	return &socketConn{
		id:           id,
		userID:       userID,
		ws:           ws,
		out:          make(chan *delivery.Event, outboundBuffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		logger:       logger.With("conn_id", id, "user_id", userID),
	}
}

// Push queues ev for the writer. It never blocks; false means the queue is
// full or the connection is closing.
func (c *socketConn) Push(ev *delivery.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.out <- ev:
		return true
	default:
		return false
	}
}

// reply queues a response to the client's own request.
func (c *socketConn) reply(name string, data any) {
	if !c.Push(&delivery.Event{Name: name, Data: data}) {
		c.logger.Warn("dropped reply for full or closing connection", "event", name)
	}
}

// writeLoop drains the outbound queue until the connection closes.
func (c *socketConn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case ev := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := wsjson.Write(wctx, c.ws, ev)
			cancel()
			if err != nil {
				c.logger.Debug("socket write failed", "event", ev.Name, "error", err)
				c.close(websocket.StatusGoingAway, "write failed")
				return
			}
		}
	}
}

// close stops the writer and closes the socket. Safe to call more than once.
func (c *socketConn) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close(code, reason)
	})
}

// inboundFrame is the {event, data} envelope sent by clients.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SocketSendMessage is the data of a sendMessage event.
type SocketSendMessage struct {
	ReceiverID      int64  `json:"receiverId" validate:"required,gt=0"`
	Content         string `json:"content" validate:"required"`
	ClientMessageID string `json:"clientMessageId,omitempty" validate:"omitempty,max=128"`
}

// SocketMarkAsRead is the data of a markAsRead event.
type SocketMarkAsRead struct {
	OtherUserID int64 `json:"otherUserId" validate:"required,gt=0"`
}

// authenticateSocket verifies the handshake credential. On failure it
// returns a short reason suitable for a metric label.
func (g *Gateway) authenticateSocket(r *http.Request) (int64, string) {
	token, errMsg := auth.TokenFromRequest(r)
	if errMsg != "" {
		return 0, "missing_token"
	}
	userID, err := g.verifier.Verify(token)
	switch {
	case err == nil:
		return userID, ""
	case errors.Is(err, auth.ErrExpiredToken):
		return 0, "expired_token"
	default:
		return 0, "invalid_token"
	}
}

// handleSocket handles GET /ws. The connection is upgraded first so the
// client receives a close reason when authentication fails.
func (g *Gateway) handleSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.config.Server.AllowedOrigins,
	})
	if err != nil {
		g.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	userID, reason := g.authenticateSocket(r)
	if reason != "" {
		metrics.SocketRejections.WithLabelValues(reason).Inc()
		g.logger.Info("socket authentication failed", "remote", r.RemoteAddr, "reason", reason)
		_ = ws.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}
	ws.SetReadLimit(maxFrameSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := newSocketConn(ws, userID, g.config.Server.WriteTimeout, g.logger)
	go conn.writeLoop(ctx)

	if replaced, ok := g.presence.Connect(userID, conn); ok {
		if old, isSocket := replaced.(*socketConn); isSocket {
			// Close asynchronously; the handshake can take a few seconds.
			go old.close(websocket.StatusNormalClosure, "replaced by a newer connection")
		}
	}
	conn.logger.Debug("socket connected")

	g.readLoop(ctx, conn)

	g.presence.Disconnect(conn)
	conn.close(websocket.StatusNormalClosure, "")
	conn.logger.Debug("socket disconnected")
}

// readLoop dispatches inbound frames until the socket fails or closes.
func (g *Gateway) readLoop(ctx context.Context, conn *socketConn) {
	for {
		typ, data, err := conn.ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 {
				conn.logger.Debug("socket read ended", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			conn.reply(delivery.EventError, &delivery.ErrorPayload{Error: "binary frames are not supported"})
			continue
		}
		g.handleFrame(ctx, conn, data)
	}
}

// handleFrame routes one inbound frame by event name.
func (g *Gateway) handleFrame(ctx context.Context, conn *socketConn, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
		conn.reply(delivery.EventError, &delivery.ErrorPayload{Error: "malformed frame"})
		return
	}

	switch frame.Event {
	case delivery.EventSendMessage:
		g.handleSocketSend(ctx, conn, frame.Data)
	case delivery.EventMarkAsRead:
		g.handleSocketMarkRead(ctx, conn, frame.Data)
	default:
		conn.reply(delivery.EventError, &delivery.ErrorPayload{Error: fmt.Sprintf("unknown event %q", frame.Event)})
	}
}

// handleSocketSend persists and dispatches a sendMessage and acknowledges it
// with messageSent.
func (g *Gateway) handleSocketSend(ctx context.Context, conn *socketConn, data json.RawMessage) {
	var req SocketSendMessage
	if err := json.Unmarshal(data, &req); err != nil {
		conn.reply(delivery.EventMessageSent, &delivery.MessageSentPayload{Error: "invalid payload"})
		return
	}
	if err := g.validate.Struct(&req); err != nil {
		conn.reply(delivery.EventMessageSent, &delivery.MessageSentPayload{Error: validationMessage(err)})
		return
	}

	if req.ClientMessageID != "" && !g.dedupe.Claim(conn.userID, req.ClientMessageID) {
		metrics.DuplicateMessages.Inc()
		conn.logger.Debug("duplicate message dropped", "client_message_id", req.ClientMessageID)
		conn.reply(delivery.EventMessageSent, &delivery.MessageSentPayload{Error: "duplicate message"})
		return
	}

	sent, err := g.router.Send(ctx, conn.userID, req.ReceiverID, req.Content)
	if err != nil {
		if req.ClientMessageID != "" {
			g.dedupe.Release(conn.userID, req.ClientMessageID)
		}
		conn.reply(delivery.EventMessageSent, &delivery.MessageSentPayload{Error: g.socketErrorMessage(conn, err)})
		return
	}

	conn.logger.Debug("message sent over socket",
		"message_id", sent.Message.ID,
		"receiver_id", req.ReceiverID,
		"outcome", sent.Outcome.String())
	conn.reply(delivery.EventMessageSent, &delivery.MessageSentPayload{
		Success:   true,
		MessageID: sent.Message.ID,
		Message:   delivery.NewMessagePayload(sent.Message, sent.Sender),
	})
}

// handleSocketMarkRead marks the newest page from otherUserId as read and
// acknowledges with messagesMarkedAsRead.
func (g *Gateway) handleSocketMarkRead(ctx context.Context, conn *socketConn, data json.RawMessage) {
	var req SocketMarkAsRead
	if err := json.Unmarshal(data, &req); err != nil {
		conn.reply(delivery.EventMessagesMarkedAsRead, &delivery.MarkedAsReadPayload{Error: "invalid payload"})
		return
	}
	if err := g.validate.Struct(&req); err != nil {
		conn.reply(delivery.EventMessagesMarkedAsRead, &delivery.MarkedAsReadPayload{Error: validationMessage(err)})
		return
	}

	if _, _, err := g.router.MarkRead(ctx, conn.userID, req.OtherUserID); err != nil {
		conn.reply(delivery.EventMessagesMarkedAsRead, &delivery.MarkedAsReadPayload{Error: g.socketErrorMessage(conn, err)})
		return
	}
	conn.reply(delivery.EventMessagesMarkedAsRead, &delivery.MarkedAsReadPayload{Success: true})
}

// socketErrorMessage hides internal failures from clients.
func (g *Gateway) socketErrorMessage(conn *socketConn, err error) string {
	if errors.Is(err, conversation.ErrInvalidArgument) || errors.Is(err, conversation.ErrNotFound) {
		return err.Error()
	}
	conn.logger.Error("socket request failed", "error", err)
	return "internal error"
}
