package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 64
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one connected browser tab.
type Session struct {
	UserID string
	Role   string

	Conn     *websocket.Conn
	SendChan chan []byte
	Done     chan struct{}
	TraceID  string
	LastSeq  uint64

	mu        sync.Mutex
	attemptID string
	logger    *zap.Logger
}

// NewSession creates a Session and starts its write goroutine when conn is
// not nil.
func NewSession(userID, role string, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := &Session{
		UserID:   userID,
		Role:     role,
		Conn:     conn,
		SendChan: make(chan []byte, sendChanBuf),
		Done:     make(chan struct{}),
		logger:   logger,
	}
	if conn != nil {
		go s.writePump()
	}
	return s
}

// writePump drains SendChan and writes to the connection, pinging the
// client so dead connections are noticed.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data := <-s.SendChan:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error", zap.String("user_id", s.UserID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done:
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes v as the payload of a typed packet. Drops the packet if the
// send buffer is full or the session is closed.
func (s *Session) Send(msgType string, v interface{}) {
	if s.IsClosed() {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("ws marshal failed", zap.String("type", msgType), zap.Error(err))
		return
	}
	data, err := json.Marshal(Packet{Type: msgType, Payload: payload})
	if err != nil {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		s.logger.Warn("send channel full, dropping packet",
			zap.String("user_id", s.UserID),
			zap.String("type", msgType))
	}
}

// Close signals the writePump to shut down.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.Done:
	default:
		close(s.Done)
	}
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// SetReadDeadline pushes the read deadline out by 60 s.
func (s *Session) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}

// SetAttempt makes attemptID the quiz this session is following.
func (s *Session) SetAttempt(attemptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attemptID = attemptID
}

// Attempt returns the followed attempt id, or "".
func (s *Session) Attempt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attemptID
}

// ClearAttempt stops following attemptID. It reports whether the session was
// following it, so exactly one caller delivers the result.
func (s *Session) ClearAttempt(attemptID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attemptID == "" || s.attemptID != attemptID {
		return false
	}
	s.attemptID = ""
	return true
}
