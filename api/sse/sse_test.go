package sse_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/api/sse"
	"github.com/kasuganosora/farmquest/cache"
	"github.com/kasuganosora/farmquest/config"
	"github.com/kasuganosora/farmquest/game/community"
	"github.com/kasuganosora/farmquest/game/quest"
	mw "github.com/kasuganosora/farmquest/middleware"
	"github.com/kasuganosora/farmquest/plugin/hook"
	"github.com/kasuganosora/farmquest/resource"
	"github.com/kasuganosora/farmquest/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var sec = config.SecurityConfig{JWTSecret: "sse-secret", JWTTTLH: time.Hour}

type sseEnv struct {
	h     *sse.Handler
	c     cache.Cache
	hooks *hook.HookCenter
	srv   *httptest.Server
}

func newSSEEnv(t *testing.T) *sseEnv {
	t.Helper()
	c, ps := testutil.SetupTestCache(t)
	h := sse.NewHandler(ps, c, sec, testutil.NopLogger())
	hooks := hook.NewHookCenter()
	h.RegisterHooks(hooks)

	r := gin.New()
	r.GET("/sse", h.ServeSSE)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &sseEnv{h: h, c: c, hooks: hooks, srv: srv}
}

func (e *sseEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := mw.GenerateToken(userID, role, sec.JWTSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, e.c.Set(context.Background(), mw.SessionKey(tok), userID, time.Hour))
	return tok
}

type stream struct {
	r *bufio.Reader
}

// connect opens a stream and consumes the connected event.
func (e *sseEnv) connect(t *testing.T, token string) *stream {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(e.srv.URL + "/sse?token=" + token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	s := &stream{r: bufio.NewReader(resp.Body)}
	name, _ := s.next(t)
	require.Equal(t, "connected", name)
	return s
}

// next returns the next event, skipping keepalive comments.
func (s *stream) next(t *testing.T) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := s.r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" {
				return name, data
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestServeSSE_Unauthorized(t *testing.T) {
	e := newSSEEnv(t)

	for _, q := range []string{"", "?token=garbage"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/sse"+q, nil)
		ctx, _ := gin.CreateTestContext(w)
		ctx.Request = req
		e.h.ServeSSE(ctx)
		assert.Equal(t, http.StatusUnauthorized, w.Code, q)
	}

	// signed but logged out
	tok, err := mw.GenerateToken("farmer1", "farmer", sec.JWTSecret, time.Hour)
	require.NoError(t, err)
	resp, err := http.Get(e.srv.URL + "/sse?token=" + tok)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAnnounce_ReplayAndLive(t *testing.T) {
	e := newSSEEnv(t)
	ctx := context.Background()
	require.NoError(t, e.h.Announce(ctx, "Monsoon workshop on Friday"))
	require.NoError(t, e.h.Announce(ctx, "Seed distribution at the panchayat office"))

	s := e.connect(t, e.token(t, "farmer1", "farmer"))

	var a sse.Announcement
	name, data := s.next(t)
	assert.Equal(t, sse.AnnounceChannel, name)
	require.NoError(t, json.Unmarshal([]byte(data), &a))
	assert.Equal(t, "Monsoon workshop on Friday", a.Message)

	_, data = s.next(t)
	require.NoError(t, json.Unmarshal([]byte(data), &a))
	assert.Equal(t, "Seed distribution at the panchayat office", a.Message)

	require.NoError(t, e.h.Announce(ctx, "Rain expected"))
	name, data = s.next(t)
	assert.Equal(t, sse.AnnounceChannel, name)
	require.NoError(t, json.Unmarshal([]byte(data), &a))
	assert.Equal(t, "Rain expected", a.Message)
	assert.False(t, a.At.IsZero())
}

func TestQuestEventsOnlyReachOwnerAndAdmins(t *testing.T) {
	e := newSSEEnv(t)
	logger := testutil.NopLogger()
	quests, err := quest.NewStore(resource.DefaultQuests(), e.hooks, logger, quest.Options{})
	require.NoError(t, err)
	feed := community.NewFeed(nil, e.hooks, logger)

	owner := e.connect(t, e.token(t, "farmer1", "farmer"))
	other := e.connect(t, e.token(t, "farmer2", "farmer"))
	admin := e.connect(t, e.token(t, "admin", "admin"))

	_, err = quests.Start(context.Background(), "soil-health", "farmer1")
	require.NoError(t, err)
	feed.Add(context.Background(), community.NewPost{AuthorID: "farmer2", AuthorName: "Priya Nair", Content: "Neem cake works"})

	for _, s := range []*stream{owner, admin} {
		name, data := s.next(t)
		require.Equal(t, sse.QuestChannel, name)
		var n sse.QuestNotice
		require.NoError(t, json.Unmarshal([]byte(data), &n))
		assert.Equal(t, "started", n.Kind)
		assert.Equal(t, "soil-health", n.QuestID)
		assert.Equal(t, "farmer1", n.FarmerID)
		assert.Equal(t, quest.StatusActive, n.Status)
	}

	// farmer2 skips straight to the community event
	for _, s := range []*stream{owner, other, admin} {
		name, data := s.next(t)
		require.Equal(t, sse.CommunityChannel, name)
		var n sse.CommunityNotice
		require.NoError(t, json.Unmarshal([]byte(data), &n))
		assert.Equal(t, "post", n.Kind)
		assert.Equal(t, "Neem cake works", n.Post.Content)
	}
}

func TestLikeEvent(t *testing.T) {
	e := newSSEEnv(t)
	feed := community.NewFeed(nil, e.hooks, testutil.NopLogger())
	p := feed.Add(context.Background(), community.NewPost{AuthorID: "farmer2", AuthorName: "Priya Nair", Content: "Drip lines installed"})

	s := e.connect(t, e.token(t, "farmer3", "farmer"))
	_, err := feed.ToggleLike(context.Background(), p.ID, "farmer1")
	require.NoError(t, err)

	name, data := s.next(t)
	require.Equal(t, sse.CommunityChannel, name)
	var n sse.CommunityNotice
	require.NoError(t, json.Unmarshal([]byte(data), &n))
	assert.Equal(t, "like", n.Kind)
	assert.Equal(t, 1, n.Post.Likes)
	assert.False(t, n.Post.HasLiked)
}
