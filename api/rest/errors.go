package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/audit"
	"github.com/kasuganosora/farmquest/game/community"
	"github.com/kasuganosora/farmquest/game/player"
	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/game/quiz"
	mw "github.com/kasuganosora/farmquest/middleware"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, quest.ErrNotFound),
		errors.Is(err, quest.ErrStepNotFound),
		errors.Is(err, quiz.ErrQuizNotFound),
		errors.Is(err, quiz.ErrAttemptNotFound),
		errors.Is(err, community.ErrPostNotFound),
		errors.Is(err, player.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, quest.ErrInvalidTransition),
		errors.Is(err, quiz.ErrAttemptFinished):
		return http.StatusConflict
	case errors.Is(err, quest.ErrNotOwner),
		errors.Is(err, quiz.ErrNotPassed):
		return http.StatusForbidden
	case errors.Is(err, quiz.ErrAnswerOutOfRange),
		errors.Is(err, community.ErrEmptyContent),
		errors.Is(err, community.ErrContentTooLong):
		return http.StatusBadRequest
	case errors.Is(err, player.ErrInvalidCredentials):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// writeError aborts with the status matching err. Unknown errors are not
// echoed to the client.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// queryLimit parses ?limit= and clamps it to (0, max]. def applies when the
// parameter is missing or invalid.
func queryLimit(c *gin.Context, def, max int) int {
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		if l > max {
			return max
		}
		return l
	}
	return def
}

// auditor fills in the request-scoped fields of audit entries. A nil
// service records nothing.
type auditor struct {
	svc *audit.Service
}

func (a auditor) record(c *gin.Context, start time.Time, action, target string, req interface{}, err error) {
	if a.svc == nil {
		return
	}
	entry := audit.AuditEntry{
		TraceID:    mw.GetTraceID(c),
		UserID:     mw.GetUserID(c),
		Role:       mw.GetRole(c),
		Action:     action,
		Target:     target,
		Request:    req,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	a.svc.Log(entry)
}
