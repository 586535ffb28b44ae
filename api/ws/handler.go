package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/farmquest/cache"
	"github.com/kasuganosora/farmquest/config"
	mw "github.com/kasuganosora/farmquest/middleware"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	cache    cache.Cache
	sec      config.SecurityConfig
	hub      *Hub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(c cache.Cache, sec config.SecurityConfig, hub *Hub, router *Router, logger *zap.Logger) *Handler {
	h := &Handler{
		cache:  c,
		sec:    sec,
		hub:    hub,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	claims, err := mw.VerifySession(c.Request.Context(), h.cache, h.sec.JWTSecret, c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := NewSession(claims.UserID, claims.Role, conn, h.logger)
	h.hub.Register(sess)
	h.logger.Info("ws connected", zap.String("user_id", sess.UserID))
	h.readPump(sess)
}

// readPump reads messages from the connection and dispatches them until the
// connection closes.
func (h *Handler) readPump(s *Session) {
	defer h.handleDisconnect(s)

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close", zap.String("user_id", s.UserID), zap.Error(err))
			}
			return
		}
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}

// handleDisconnect unregisters the session. A running attempt keeps its
// countdown and can be resumed over REST.
func (h *Handler) handleDisconnect(s *Session) {
	s.Close()
	h.hub.Unregister(s)
	h.logger.Info("ws disconnected", zap.String("user_id", s.UserID))
}
