package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kasuganosora/farmquest/game/quiz"
	"github.com/kasuganosora/farmquest/plugin/hook"
	"go.uber.org/zap"
)

// Hub tracks connected sessions and pushes quiz countdowns and results.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
	count    int

	quizzes *quiz.Service
	now     func() time.Time
	logger  *zap.Logger
}

// NewHub creates a Hub over the quiz service.
func NewHub(quizzes *quiz.Service, logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[*Session]struct{}),
		quizzes:  quizzes,
		now:      time.Now,
		logger:   logger,
	}
}

// Register adds s.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[s.UserID]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[s.UserID] = set
	}
	if _, dup := set[s]; !dup {
		set[s] = struct{}{}
		h.count++
	}
}

// Unregister removes s.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.sessions[s.UserID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	h.count--
	if len(set) == 0 {
		delete(h.sessions, s.UserID)
	}
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) forUser(userID string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions[userID]))
	for s := range h.sessions[userID] {
		out = append(out, s)
	}
	return out
}

func (h *Hub) all() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, h.count)
	for _, set := range h.sessions {
		for s := range set {
			out = append(out, s)
		}
	}
	return out
}

// Tick sends quiz_tick to every session following a running attempt. It
// runs once a second from the scheduler.
func (h *Hub) Tick(_ context.Context) {
	now := h.now()
	for _, s := range h.all() {
		id := s.Attempt()
		if id == "" {
			continue
		}
		a, err := h.quizzes.Get(id, s.UserID)
		if errors.Is(err, quiz.ErrAttemptNotFound) {
			s.ClearAttempt(id)
			continue
		}
		if err != nil || a.Finished() {
			continue
		}
		s.Send(TypeQuizTick, TickPayload{AttemptID: id, RemainingSeconds: remainingSeconds(a, now)})
	}
}

// RegisterHooks pushes quiz_result to the sessions following an attempt when
// it finishes, whether by the player or by the countdown.
func (h *Hub) RegisterHooks(hc *hook.HookCenter) {
	hc.Register(hook.OnQuizFinish, 100, "ws", func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		r, ok := data.(quiz.Result)
		if !ok {
			return data, nil
		}
		for _, s := range h.forUser(r.UserID) {
			if s.ClearAttempt(r.AttemptID) {
				s.Send(TypeQuizResult, r)
			}
		}
		return data, nil
	})
}

func remainingSeconds(a quiz.Attempt, now time.Time) int {
	d := a.Remaining(now)
	// round up so the client never shows 0 while time is left
	return int((d + time.Second - 1) / time.Second)
}
