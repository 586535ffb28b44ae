package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/farmquest/api/rest"
	"github.com/kasuganosora/farmquest/api/sse"
	apows "github.com/kasuganosora/farmquest/api/ws"
	"github.com/kasuganosora/farmquest/audit"
	"github.com/kasuganosora/farmquest/cache"
	"github.com/kasuganosora/farmquest/config"
	"github.com/kasuganosora/farmquest/game/community"
	"github.com/kasuganosora/farmquest/game/player"
	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/game/quiz"
	"github.com/kasuganosora/farmquest/game/ranking"
	"github.com/kasuganosora/farmquest/game/reward"
	mw "github.com/kasuganosora/farmquest/middleware"
	"github.com/kasuganosora/farmquest/plugin/hook"
	"github.com/kasuganosora/farmquest/resource"
	"github.com/kasuganosora/farmquest/scheduler"
	"github.com/kasuganosora/farmquest/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey guards /api/ops on the test server.
const AdminKey = "integration-ops-key"

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	Hooks   *hook.HookCenter
	Roster  *player.Roster
	Quests  *quest.Store
	Quizzes *quiz.Service
	Ranks   *ranking.Service
	Hub     *apows.Hub
	Sched   *scheduler.Scheduler
	Server  *httptest.Server
	URL     string // http://127.0.0.1:<port>
	WSURL   string // ws://127.0.0.1:<port>/ws
	Sec     config.SecurityConfig

	audit *audit.Service
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in serve.go; quizzes may replace the
// built-in quiz bank.
func NewTestServer(t *testing.T, quizzes ...quiz.Quiz) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	hooks := hook.NewHookCenter()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{},
	}
	srvCfg := config.ServerConfig{AdminKey: AdminKey}

	// ---- Game services ----
	roster, err := player.NewRoster(resource.DefaultAccounts(), bcrypt.MinCost)
	require.NoError(t, err)
	quests, err := quest.NewStore(resource.DefaultQuests(), hooks, logger, quest.Options{})
	require.NoError(t, err)
	if len(quizzes) == 0 {
		quizzes = resource.DefaultQuizzes()
	}
	bank, err := quiz.NewBank(quizzes, quiz.BankDefaults{})
	require.NoError(t, err)
	feed := community.NewFeed(resource.DefaultPosts(), hooks, logger)

	sched := scheduler.New(logger)
	quizSvc := quiz.NewService(bank, quests, sched, db, hooks, logger, quiz.Options{PassPercent: 70})
	ranks := ranking.NewService(roster, quests, c, logger)
	rewards := reward.NewService(roster, db, c, ranks, hooks, logger, reward.Options{})
	rewards.Register()
	sessions := player.NewSessionStore(roster, c, sec, hooks, logger)
	auditSvc := audit.NewWithOptions(db, logger, audit.Options{FlushInterval: 20 * time.Millisecond})
	require.NoError(t, ranks.Refresh(context.Background()))

	// ---- Live channels ----
	sseH := sse.NewHandler(pubsub, c, sec, logger)
	sseH.RegisterHooks(hooks)
	hub := apows.NewHub(quizSvc, logger)
	hub.RegisterHooks(hooks)
	wsRouter := apows.NewRouter(logger)
	apows.NewQuizHandlers(quizSvc, hub, logger).Register(wsRouter)
	wsH := apows.NewHandler(c, sec, hub, wsRouter, logger)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger), mw.CORS(sec.AllowedOrigins))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers := &apirest.Handlers{
		Auth:      apirest.NewAuthHandler(sessions, roster, auditSvc),
		Dashboard: apirest.NewDashboardHandler(roster, quests, feed, ranks),
		Quest:     apirest.NewQuestHandler(quests, quizSvc, auditSvc),
		Quiz:      apirest.NewQuizHandler(quizSvc, auditSvc),
		Community: apirest.NewCommunityHandler(feed, roster, quests, 20, auditSvc),
		Ranking:   apirest.NewRankingHandler(ranks, logger),
		Admin:     apirest.NewAdminHandler(quests, roster, feed, ranks, rewards, auditSvc, logger),
		Ops: apirest.NewOpsHandler(quests, feed, quizSvc, ranks, sched, sseH,
			map[string]apirest.Gauge{"ws_sessions": hub}, auditSvc, logger),
	}
	handlers.Mount(r.Group("/api"), sec, srvCfg, c)

	r.GET("/ws", wsH.ServeWS)
	r.GET("/sse", sseH.ServeSSE)

	// ---- Start server ----
	server := httptest.NewServer(r)
	url := server.URL
	wsURL := "ws" + url[len("http"):] + "/ws"

	ts := &TestServer{
		DB:      db,
		Cache:   c,
		PubSub:  pubsub,
		Hooks:   hooks,
		Roster:  roster,
		Quests:  quests,
		Quizzes: quizSvc,
		Ranks:   ranks,
		Hub:     hub,
		Sched:   sched,
		Server:  server,
		URL:     url,
		WSURL:   wsURL,
		Sec:     sec,
		audit:   auditSvc,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close shuts down the test server and background workers.
func (ts *TestServer) Close() {
	ts.Server.CloseClientConnections()
	ts.Server.Close()
	ts.Sched.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ts.audit.Stop(ctx)
}

// --- HTTP helpers ---

// Do sends a request with an optional JSON body, Bearer token and extra
// headers given as name/value pairs.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, token string, headers ...string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil, token)
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// RequireStatus checks the status code, printing the body on mismatch, and
// closes the body.
func RequireStatus(t *testing.T, resp *http.Response, code int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != code {
		data, _ := io.ReadAll(resp.Body)
		require.Equal(t, code, resp.StatusCode, "body: %s", string(data))
	}
}

// --- Auth helpers ---

// Login logs in and returns the token and the user.
func (ts *TestServer) Login(t *testing.T, username, password string) (string, player.User) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Token string      `json:"token"`
		User  player.User `json:"user"`
	}
	ReadJSON(t, resp, &result)
	return result.Token, result.User
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// A background readLoop feeds readCh so timeouts never touch the connection.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the test server's WS endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(func() { _ = conn.Close() })
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a packet with the next sequence number.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	pkt := apows.Packet{Seq: atomic.AddUint64(&wc.seq, 1), Type: msgType, Payload: raw}
	require.NoError(wc.t, wc.Conn.WriteJSON(pkt))
}

// RecvType reads packets until one with the given type arrives, skipping
// quiz_tick pushes and anything else in between.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) apows.Packet {
	wc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case res := <-wc.readCh:
			require.NoError(wc.t, res.err, "WS recv failed while waiting for %q", msgType)
			var pkt apows.Packet
			require.NoError(wc.t, json.Unmarshal(res.data, &pkt))
			if pkt.Type == msgType {
				return pkt
			}
		case <-deadline:
			wc.t.Fatalf("timed out waiting for message type %q", msgType)
			return apows.Packet{}
		}
	}
}

// --- SSE client ---

// SSEEvent is one server-sent event.
type SSEEvent struct {
	Name string
	Data string
}

// SSEClient reads events from /sse in the background.
type SSEClient struct {
	t  *testing.T
	ch chan SSEEvent
}

// ConnectSSE opens the event stream and waits for the connected event.
func (ts *TestServer) ConnectSSE(t *testing.T, token string) *SSEClient {
	t.Helper()
	resp, err := http.Get(ts.URL + "/sse?token=" + token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := &SSEClient{t: t, ch: make(chan SSEEvent, 64)}
	go sc.readLoop(resp.Body)
	ev := sc.RecvType("connected", 2*time.Second)
	require.Contains(t, ev.Data, "user_id")
	return sc
}

func (sc *SSEClient) readLoop(body io.Reader) {
	defer close(sc.ch)
	scanner := bufio.NewScanner(body)
	var ev SSEEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ev.Name != "" {
				sc.ch <- ev
			}
			ev = SSEEvent{}
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

// Recv returns the next event whatever its name.
func (sc *SSEClient) Recv(timeout time.Duration) SSEEvent {
	sc.t.Helper()
	select {
	case ev, ok := <-sc.ch:
		require.True(sc.t, ok, "SSE stream closed")
		return ev
	case <-time.After(timeout):
		sc.t.Fatalf("timed out waiting for SSE event")
		return SSEEvent{}
	}
}

// RecvType reads events until one with the given name arrives.
func (sc *SSEClient) RecvType(name string, timeout time.Duration) SSEEvent {
	sc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-sc.ch:
			require.True(sc.t, ok, "SSE stream closed while waiting for %q", name)
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			sc.t.Fatalf("timed out waiting for SSE event %q", name)
			return SSEEvent{}
		}
	}
}
