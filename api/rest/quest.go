package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/audit"
	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/game/quiz"
	mw "github.com/kasuganosora/farmquest/middleware"
)

// QuestHandler serves the quest catalog and the farmer's quest actions.
type QuestHandler struct {
	quests  *quest.Store
	quizzes *quiz.Service
	audit   auditor
}

// NewQuestHandler creates a QuestHandler. auditSvc may be nil.
func NewQuestHandler(quests *quest.Store, quizzes *quiz.Service, auditSvc *audit.Service) *QuestHandler {
	return &QuestHandler{quests: quests, quizzes: quizzes, audit: auditor{auditSvc}}
}

// List returns the catalog, optionally narrowed by ?status= and ?category=.
// GET /api/quests
func (h *QuestHandler) List(c *gin.Context) {
	status := quest.Status(c.Query("status"))
	category := quest.Category(c.Query("category"))
	out := make([]quest.Quest, 0)
	for _, q := range h.quests.All() {
		if status != "" && q.Status != status {
			continue
		}
		if category != "" && q.Category != category {
			continue
		}
		out = append(out, q)
	}
	c.JSON(http.StatusOK, gin.H{"quests": out})
}

// Available handles GET /api/quests/available.
func (h *QuestHandler) Available(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"quests": h.quests.Available(mw.GetUserID(c))})
}

// Active handles GET /api/quests/active.
func (h *QuestHandler) Active(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"quests": h.quests.Active(mw.GetUserID(c))})
}

// Completed handles GET /api/quests/completed.
func (h *QuestHandler) Completed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"quests": h.quests.Completed(mw.GetUserID(c))})
}

// Detail returns one quest with its quiz summary and whether the caller has
// passed it.
// GET /api/quests/:id
func (h *QuestHandler) Detail(c *gin.Context) {
	q, err := h.quests.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"quest": q}
	if qz, err := h.quizzes.Bank().ForQuest(q.ID); err == nil {
		resp["quiz"] = qz.View(false)
		resp["quiz_passed"] = h.quizzes.HasPassed(mw.GetUserID(c), q.ID)
	}
	c.JSON(http.StatusOK, resp)
}

// Quiz returns the quiz gating a quest, without answers.
// GET /api/quests/:id/quiz
func (h *QuestHandler) Quiz(c *gin.Context) {
	qz, err := h.quizzes.Bank().ForQuest(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quiz": qz.View(true), "pass_percent": h.quizzes.PassPercent()})
}

// Start begins a quest for the caller. Quests with a quiz require a pass.
// POST /api/quests/:id/start
func (h *QuestHandler) Start(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	q, err := h.quizzes.StartQuest(c.Request.Context(), id, mw.GetUserID(c))
	h.audit.record(c, start, audit.ActionQuestStart, id, nil, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quest": q})
}

type stepRequest struct {
	Evidence string `json:"evidence" binding:"max=2000"`
}

// CompleteStep marks a step done with optional evidence.
// POST /api/quests/:id/steps/:step/complete
func (h *QuestHandler) CompleteStep(c *gin.Context) {
	start := time.Now()
	var req stepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	id, step := c.Param("id"), c.Param("step")
	q, err := h.quests.UpdateProgress(c.Request.Context(), id, step, req.Evidence, mw.GetUserID(c))
	h.audit.record(c, start, audit.ActionStepComplete, id+"/"+step, req, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quest": q})
}
