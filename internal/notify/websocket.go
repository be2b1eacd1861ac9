package notify

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/burgershop/order-service/internal/domain/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1024
)

// AuthorizeFunc decides whether id may join group.
type AuthorizeFunc func(id auth.Identity, group string) error

// RestrictGroup returns an AuthorizeFunc that only admits admins to group
// and lets anyone join other groups.
func RestrictGroup(group string) AuthorizeFunc {
	return func(id auth.Identity, g string) error {
		if g == group && !id.IsAdmin() {
			return auth.ErrForbidden
		}
		return nil
	}
}

// Transport upgrades HTTP requests to WebSocket connections attached to a
// Hub. The caller identity must already be on the request context.
type Transport struct {
	hub        *Hub
	authorize  AuthorizeFunc
	adminGroup string
	upgrader   websocket.Upgrader
}

// TransportOptions configures a Transport.
type TransportOptions struct {
	// AdminGroup is the group legacy join messages refer to.
	AdminGroup string
	// Authorize defaults to RestrictGroup(AdminGroup).
	Authorize AuthorizeFunc
	// CheckOrigin is passed to the upgrader; nil accepts same-origin only.
	CheckOrigin func(r *http.Request) bool
}

// NewTransport creates a Transport for hub.
func NewTransport(hub *Hub, opts TransportOptions) *Transport {
	if opts.AdminGroup == "" {
		opts.AdminGroup = "admin"
	}
	if opts.Authorize == nil {
		opts.Authorize = RestrictGroup(opts.AdminGroup)
	}
	return &Transport{
		hub:        hub,
		authorize:  opts.Authorize,
		adminGroup: opts.AdminGroup,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
	}
}

// ServeHTTP implements http.Handler.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		zctx.From(r.Context()).Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := t.hub.NewConn(id)
	lg := zctx.From(r.Context()).With(
		zap.String("conn_id", c.ID),
		zap.String("user_id", id.UserID),
	)
	lg.Debug("Client connected")

	go t.writePump(ws, c, lg)
	t.readPump(ws, c, lg)
}

// readPump processes control frames until the client goes away, then
// removes the connection from the hub.
func (t *Transport) readPump(ws *websocket.Conn, c *Conn, lg *zap.Logger) {
	defer func() {
		t.hub.Disconnect(c)
		lg.Debug("Client disconnected")
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				lg.Debug("Read failed", zap.Error(err))
			}
			return
		}
		t.handleFrame(c, data, lg)
	}
}

func (t *Transport) handleFrame(c *Conn, data []byte, lg *zap.Logger) {
	f, err := ParseFrame(data, t.adminGroup)
	if err != nil {
		t.hub.Send(c, ErrorFrame("unrecognized message"))
		return
	}

	switch f.Action {
	case ActionJoin:
		if err := t.authorize(c.Identity, f.Group); err != nil {
			lg.Info("Join rejected", zap.String("group", f.Group), zap.Error(err))
			t.hub.Send(c, ErrorFrame("not authorized to join "+f.Group))
			return
		}
		if err := t.hub.Join(c, f.Group); err != nil && !errors.Is(err, ErrClosed) {
			lg.Error("Join failed", zap.String("group", f.Group), zap.Error(err))
			return
		}
		lg.Debug("Joined group", zap.String("group", f.Group))
	case ActionLeave:
		t.hub.Leave(c, f.Group)
	}
}

// writePump is the only writer for ws.
func (t *Transport) writePump(ws *websocket.Conn, c *Conn, lg *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Messages():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				lg.Debug("Write failed", zap.Error(err))
				// Unblock readPump so the hub forgets this connection.
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
