package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/audit"
	"github.com/kasuganosora/farmquest/game/quiz"
	mw "github.com/kasuganosora/farmquest/middleware"
)

// QuizHandler runs quiz attempts over REST. The websocket handler offers the
// same flow with a live countdown.
type QuizHandler struct {
	quizzes *quiz.Service
	audit   auditor
}

// NewQuizHandler creates a QuizHandler. auditSvc may be nil.
func NewQuizHandler(quizzes *quiz.Service, auditSvc *audit.Service) *QuizHandler {
	return &QuizHandler{quizzes: quizzes, audit: auditor{auditSvc}}
}

// attemptResponse is an attempt plus the seconds left on its countdown.
type attemptResponse struct {
	quiz.Attempt
	RemainingSeconds int `json:"remaining_seconds"`
}

func newAttemptResponse(a quiz.Attempt) attemptResponse {
	return attemptResponse{Attempt: a, RemainingSeconds: int(a.Remaining(time.Now()).Seconds())}
}

// List returns the standalone quizzes.
// GET /api/quizzes
func (h *QuizHandler) List(c *gin.Context) {
	all := h.quizzes.Bank().Standalone()
	out := make([]quiz.View, 0, len(all))
	for i := range all {
		out = append(out, all[i].View(false))
	}
	c.JSON(http.StatusOK, gin.H{"quizzes": out})
}

// Detail returns one quiz without answers.
// GET /api/quizzes/:id
func (h *QuizHandler) Detail(c *gin.Context) {
	q, err := h.quizzes.Bank().Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quiz": q.View(true), "pass_percent": h.quizzes.PassPercent()})
}

// Start opens an attempt.
// POST /api/quizzes/:id/attempts
func (h *QuizHandler) Start(c *gin.Context) {
	q, err := h.quizzes.Bank().Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	a, err := h.quizzes.Start(c.Request.Context(), q.ID, mw.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"attempt": newAttemptResponse(a), "quiz": q.View(true)})
}

// Attempt handles GET /api/attempts/:id.
func (h *QuizHandler) Attempt(c *gin.Context) {
	a, err := h.quizzes.Get(c.Param("id"), mw.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempt": newAttemptResponse(a)})
}

type answerRequest struct {
	Choice *int `json:"choice" binding:"required"`
}

// Answer records a choice for the current question.
// POST /api/attempts/:id/answer
func (h *QuizHandler) Answer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.quizzes.Answer(c.Param("id"), mw.GetUserID(c), *req.Choice)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempt": newAttemptResponse(a)})
}

// Next advances, finishing the attempt after the last question.
// POST /api/attempts/:id/next
func (h *QuizHandler) Next(c *gin.Context) {
	a, err := h.quizzes.Next(c.Request.Context(), c.Param("id"), mw.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempt": newAttemptResponse(a)})
}

// Finish scores the attempt. Repeating it returns the same result.
// POST /api/attempts/:id/finish
func (h *QuizHandler) Finish(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	r, err := h.quizzes.Finish(c.Request.Context(), id, mw.GetUserID(c))
	h.audit.record(c, start, audit.ActionQuizFinish, id, nil, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": r})
}
