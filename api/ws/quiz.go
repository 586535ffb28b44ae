package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kasuganosora/farmquest/game/quiz"
	"go.uber.org/zap"
)

// Client packets.
const (
	TypeQuizStart  = "quiz_start"
	TypeQuizAnswer = "quiz_answer"
	TypeQuizNext   = "quiz_next"
	TypeQuizFinish = "quiz_finish"
)

// Server pushes.
const (
	TypeQuizState  = "quiz_state"
	TypeQuizTick   = "quiz_tick"
	TypeQuizResult = "quiz_result"
	TypeError      = "error"
)

var errNoAttempt = errors.New("no quiz in progress")

type startReq struct {
	QuizID string `json:"quiz_id"`
}

type answerReq struct {
	Choice *int `json:"choice"`
}

// StatePayload is the quiz_state push: the attempt plus the question on
// screen, without answers.
type StatePayload struct {
	Attempt          quiz.Attempt       `json:"attempt"`
	Quiz             quiz.View          `json:"quiz"`
	Question         *quiz.QuestionView `json:"question,omitempty"`
	RemainingSeconds int                `json:"remaining_seconds"`
}

// TickPayload is the quiz_tick push.
type TickPayload struct {
	AttemptID        string `json:"attempt_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

// QuizHandlers serves the quiz packets.
type QuizHandlers struct {
	quizzes *quiz.Service
	hub     *Hub
	logger  *zap.Logger
}

// NewQuizHandlers creates QuizHandlers.
func NewQuizHandlers(quizzes *quiz.Service, hub *Hub, logger *zap.Logger) *QuizHandlers {
	return &QuizHandlers{quizzes: quizzes, hub: hub, logger: logger}
}

// Register binds the quiz packet types on r.
func (q *QuizHandlers) Register(r *Router) {
	r.On(TypeQuizStart, q.handleStart)
	r.On(TypeQuizAnswer, q.handleAnswer)
	r.On(TypeQuizNext, q.handleNext)
	r.On(TypeQuizFinish, q.handleFinish)
}

func (q *QuizHandlers) handleStart(ctx context.Context, s *Session, payload json.RawMessage) error {
	var req startReq
	if err := json.Unmarshal(payload, &req); err != nil || req.QuizID == "" {
		return errors.New("quiz_id is required")
	}
	a, err := q.quizzes.Start(ctx, req.QuizID, s.UserID)
	if err != nil {
		return err
	}
	s.SetAttempt(a.ID)
	q.logger.Debug("ws quiz started",
		zap.String("user_id", s.UserID),
		zap.String("attempt_id", a.ID),
		zap.String("trace_id", TraceIDFromCtx(ctx)))
	return q.sendState(s, a)
}

func (q *QuizHandlers) handleAnswer(_ context.Context, s *Session, payload json.RawMessage) error {
	id := s.Attempt()
	if id == "" {
		return errNoAttempt
	}
	var req answerReq
	if err := json.Unmarshal(payload, &req); err != nil || req.Choice == nil {
		return errors.New("choice is required")
	}
	a, err := q.quizzes.Answer(id, s.UserID, *req.Choice)
	if err != nil {
		return err
	}
	return q.sendState(s, a)
}

func (q *QuizHandlers) handleNext(ctx context.Context, s *Session, _ json.RawMessage) error {
	id := s.Attempt()
	if id == "" {
		return errNoAttempt
	}
	a, err := q.quizzes.Next(ctx, id, s.UserID)
	if err != nil {
		return err
	}
	if a.Finished() {
		q.deliver(s, *a.Result)
		return nil
	}
	return q.sendState(s, a)
}

func (q *QuizHandlers) handleFinish(ctx context.Context, s *Session, _ json.RawMessage) error {
	id := s.Attempt()
	if id == "" {
		return errNoAttempt
	}
	r, err := q.quizzes.Finish(ctx, id, s.UserID)
	if err != nil {
		return err
	}
	q.deliver(s, r)
	return nil
}

// deliver sends the result unless the finish hook already did.
func (q *QuizHandlers) deliver(s *Session, r quiz.Result) {
	if s.ClearAttempt(r.AttemptID) {
		s.Send(TypeQuizResult, r)
	}
}

func (q *QuizHandlers) sendState(s *Session, a quiz.Attempt) error {
	qz, err := q.quizzes.Bank().Get(a.QuizID)
	if err != nil {
		return err
	}
	view := qz.View(true)
	st := StatePayload{
		Attempt:          a,
		RemainingSeconds: remainingSeconds(a, q.hub.now()),
	}
	if a.Index < len(view.Questions) {
		qv := view.Questions[a.Index]
		st.Question = &qv
	}
	view.Questions = nil
	st.Quiz = view
	s.Send(TypeQuizState, st)
	return nil
}
