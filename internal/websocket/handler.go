package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"codeblocks/internal/participant"
	"codeblocks/internal/router"
	"codeblocks/pkg/types"
)

// frameOverhead leaves room for the JSON envelope around a maximal buffer
const frameOverhead = 4096

// upgrader accepts any origin; the browser client is served from another host
var upgrader = websocket.Upgrader{
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades GET /ws requests and pumps frames into the router
type Handler struct {
	registry *Registry
	router   *router.Router
	opts     Options
	logger   *zap.SugaredLogger
}

func NewHandler(registry *Registry, r *router.Router, opts Options, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		registry: registry,
		router:   r,
		opts:     opts,
		logger:   logger,
	}
}

// HandleWebSocket resolves the participant, upgrades and serves the connection
// ARCHITECTURAL DISCOVERY: Validation happens before the upgrade so bad
// requests get plain HTTP errors instead of consuming a socket
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	participantID, cookie, err := participant.Resolve(r)
	if err != nil {
		http.Error(w, "Invalid participant id", http.StatusBadRequest)
		return
	}

	header := http.Header{}
	if cookie != nil {
		header.Add("Set-Cookie", cookie.String())
	}

	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	wsConn := NewConnection(conn, participantID, h.opts)
	if err := h.registry.RegisterConnection(wsConn); err != nil {
		h.logger.Errorw("failed to register connection", "error", err)
		_ = wsConn.Close()
		return
	}

	h.logger.Infow("connection opened", "connection_id", wsConn.GetConnectionID(), "participant_id", participantID)
	go h.handleConnection(wsConn)
}

// handleConnection runs the read pump and heartbeat until the socket dies
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup ends every subscription so the
		// hub never delivers to a dead connection
		h.router.Disconnect(conn)
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
		h.logger.Infow("connection closed", "connection_id", conn.GetConnectionID(), "participant_id", conn.GetParticipantID())
	}()

	conn.conn.SetReadLimit(types.MaxContentBytes + frameOverhead)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	go h.heartbeat(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debugw("websocket read error", "connection_id", conn.GetConnectionID(), "error", err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			h.router.HandleMessage(context.Background(), conn, data)
		}
	}
}

func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.opts.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}
