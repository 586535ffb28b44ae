package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/api/rest"
	"github.com/kasuganosora/farmquest/audit"
	"github.com/kasuganosora/farmquest/config"
	"github.com/kasuganosora/farmquest/game/community"
	"github.com/kasuganosora/farmquest/game/player"
	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/game/quiz"
	"github.com/kasuganosora/farmquest/game/ranking"
	"github.com/kasuganosora/farmquest/game/reward"
	"github.com/kasuganosora/farmquest/plugin/hook"
	"github.com/kasuganosora/farmquest/resource"
	"github.com/kasuganosora/farmquest/scheduler"
	"github.com/kasuganosora/farmquest/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminKey = "ops-key"

type fakeAnnouncer struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeAnnouncer) Announce(_ context.Context, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

type env struct {
	r         *gin.Engine
	roster    *player.Roster
	quests    *quest.Store
	feed      *community.Feed
	announcer *fakeAnnouncer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := testutil.NopLogger()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour}
	hooks := hook.NewHookCenter()

	roster, err := player.NewRoster(resource.DefaultAccounts(), bcrypt.MinCost)
	require.NoError(t, err)
	quests, err := quest.NewStore(resource.DefaultQuests(), hooks, logger, quest.Options{})
	require.NoError(t, err)
	bank, err := quiz.NewBank(resource.DefaultQuizzes(), quiz.BankDefaults{})
	require.NoError(t, err)
	feed := community.NewFeed(resource.DefaultPosts(), hooks, logger)

	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)
	auditSvc := audit.NewWithOptions(db, logger, audit.Options{FlushInterval: 10 * time.Millisecond})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		auditSvc.Stop(ctx)
	})

	quizzes := quiz.NewService(bank, quests, sched, db, hooks, logger, quiz.Options{PassPercent: 70})
	ranks := ranking.NewService(roster, quests, c, logger)
	rewards := reward.NewService(roster, db, c, ranks, hooks, logger, reward.Options{})
	rewards.Register()
	sessions := player.NewSessionStore(roster, c, sec, hooks, logger)
	announcer := &fakeAnnouncer{}

	h := &rest.Handlers{
		Auth:      rest.NewAuthHandler(sessions, roster, auditSvc),
		Dashboard: rest.NewDashboardHandler(roster, quests, feed, ranks),
		Quest:     rest.NewQuestHandler(quests, quizzes, auditSvc),
		Quiz:      rest.NewQuizHandler(quizzes, auditSvc),
		Community: rest.NewCommunityHandler(feed, roster, quests, 20, auditSvc),
		Ranking:   rest.NewRankingHandler(ranks, logger),
		Admin:     rest.NewAdminHandler(quests, roster, feed, ranks, rewards, auditSvc, logger),
		Ops:       rest.NewOpsHandler(quests, feed, quizzes, ranks, sched, announcer, nil, auditSvc, logger),
	}
	r := gin.New()
	h.Mount(r.Group("/api"), sec, config.ServerConfig{AdminKey: testAdminKey}, c)
	return &env{r: r, roster: roster, quests: quests, feed: feed, announcer: announcer}
}

// do sends a JSON request. headers are name/value pairs.
func (e *env) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) login(t *testing.T, username, password string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type questResp struct {
	Quest quest.Quest `json:"quest"`
}

type attemptResp struct {
	Attempt struct {
		ID               string       `json:"id"`
		Index            int          `json:"index"`
		Answers          []int        `json:"answers"`
		RemainingSeconds int          `json:"remaining_seconds"`
		Result           *quiz.Result `json:"result"`
	} `json:"attempt"`
}

// passQuiz runs a full attempt through the REST endpoints.
func (e *env) passQuiz(t *testing.T, token, quizID string, choices ...int) *quiz.Result {
	t.Helper()
	w := e.do(http.MethodPost, "/api/quizzes/"+quizID+"/attempts", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[attemptResp](t, w).Attempt.ID

	var last attemptResp
	for _, ch := range choices {
		w = e.do(http.MethodPost, "/api/attempts/"+id+"/answer", token, map[string]int{"choice": ch})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		w = e.do(http.MethodPost, "/api/attempts/"+id+"/next", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		last = decode[attemptResp](t, w)
	}
	return last.Attempt.Result
}
