package integration

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/kasuganosora/farmquest/api/sse"
	apows "github.com/kasuganosora/farmquest/api/ws"
	"github.com/kasuganosora/farmquest/game/community"
	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/game/quiz"
	"github.com/kasuganosora/farmquest/game/ranking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 3 * time.Second

func questNotice(t *testing.T, ev SSEEvent) sse.QuestNotice {
	t.Helper()
	var n sse.QuestNotice
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &n), ev.Data)
	return n
}

// passQuiz plays quizID over the WebSocket, answering choices in order.
func passQuiz(t *testing.T, wc *WSClient, quizID string, choices ...int) quiz.Result {
	t.Helper()
	wc.Send(apows.TypeQuizStart, map[string]string{"quiz_id": quizID})
	var st apows.StatePayload
	require.NoError(t, json.Unmarshal(wc.RecvType(apows.TypeQuizState, wait).Payload, &st))
	require.Equal(t, len(choices), st.Quiz.QuestionCount)

	var pkt apows.Packet
	for i, choice := range choices {
		wc.Send(apows.TypeQuizAnswer, map[string]int{"choice": choice})
		wc.RecvType(apows.TypeQuizState, wait)
		wc.Send(apows.TypeQuizNext, nil)
		if i < len(choices)-1 {
			wc.RecvType(apows.TypeQuizState, wait)
		} else {
			pkt = wc.RecvType(apows.TypeQuizResult, wait)
		}
	}
	var res quiz.Result
	require.NoError(t, json.Unmarshal(pkt.Payload, &res))
	return res
}

func TestHealth(t *testing.T) {
	ts := NewTestServer(t)
	resp := ts.Get(t, "/health", "")
	var body map[string]string
	ReadJSON(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestQuestLifecycle_EndToEnd(t *testing.T) {
	ts := NewTestServer(t)

	farmerTok, farmer := ts.Login(t, "farmer1", "demo123")
	otherTok, _ := ts.Login(t, "farmer2", "demo123")
	adminTok, _ := ts.Login(t, "admin", "admin123")
	require.Equal(t, "farmer1", farmer.ID)

	farmerSSE := ts.ConnectSSE(t, farmerTok)
	otherSSE := ts.ConnectSSE(t, otherTok)
	adminSSE := ts.ConnectSSE(t, adminTok)

	// The quiz gates the quest.
	resp := ts.PostJSON(t, "/api/quests/mulching-banana/start", nil, farmerTok)
	RequireStatus(t, resp, http.StatusForbidden)

	wc := ts.ConnectWS(t, farmerTok)
	require.Eventually(t, func() bool { return ts.Hub.Count() == 1 }, wait, 10*time.Millisecond)
	res := passQuiz(t, wc, "mulching-banana", 1, 1, 3)
	assert.True(t, res.Passed)
	assert.Equal(t, 100, res.Percent)
	assert.Equal(t, "mulching-banana", res.QuestID)

	// Starting marks the first step with the quiz evidence.
	resp = ts.PostJSON(t, "/api/quests/mulching-banana/start", nil, farmerTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var started struct {
		Quest quest.Quest `json:"quest"`
	}
	ReadJSON(t, resp, &started)
	assert.Equal(t, quest.StatusActive, started.Quest.Status)
	assert.Equal(t, "farmer1", started.Quest.FarmerID)
	assert.Equal(t, 33, started.Quest.Progress)
	assert.True(t, started.Quest.Steps[0].Completed)

	n := questNotice(t, farmerSSE.RecvType(sse.QuestChannel, wait))
	assert.Equal(t, "started", n.Kind)
	assert.Equal(t, "mulching-banana", n.QuestID)
	assert.Equal(t, "started", questNotice(t, adminSSE.RecvType(sse.QuestChannel, wait)).Kind)

	for _, step := range []string{"apply-mulch", "maintenance"} {
		resp = ts.PostJSON(t, "/api/quests/mulching-banana/steps/"+step+"/complete",
			map[string]string{"evidence": "photo of " + step}, farmerTok)
		RequireStatus(t, resp, http.StatusOK)
	}

	n = questNotice(t, farmerSSE.RecvType(sse.QuestChannel, wait))
	assert.Equal(t, "submitted", n.Kind)
	assert.Equal(t, quest.StatusPendingApproval, n.Status)
	assert.Equal(t, 100, n.Progress)
	assert.Equal(t, "submitted", questNotice(t, adminSSE.RecvType(sse.QuestChannel, wait)).Kind)

	// Farmers cannot approve.
	RequireStatus(t, ts.PostJSON(t, "/api/admin/quests/mulching-banana/approve", nil, farmerTok), http.StatusForbidden)

	resp = ts.Get(t, "/api/admin/approvals", adminTok)
	var approvals struct {
		Count     int `json:"count"`
		Approvals []struct {
			FarmerName string `json:"farmer_name"`
		} `json:"approvals"`
	}
	ReadJSON(t, resp, &approvals)
	require.Equal(t, 1, approvals.Count)
	assert.Equal(t, "Ravi Kumar", approvals.Approvals[0].FarmerName)

	RequireStatus(t, ts.PostJSON(t, "/api/admin/quests/mulching-banana/approve", nil, adminTok), http.StatusOK)
	n = questNotice(t, farmerSSE.RecvType(sse.QuestChannel, wait))
	assert.Equal(t, "completed", n.Kind)
	assert.Equal(t, quest.StatusCompleted, n.Status)

	// Approving again is a no-op and pays nothing.
	RequireStatus(t, ts.PostJSON(t, "/api/admin/quests/mulching-banana/approve", nil, adminTok), http.StatusOK)

	resp = ts.Get(t, "/api/ranking/farmers", farmerTok)
	var board struct {
		Farmers []ranking.Entry `json:"farmers"`
	}
	ReadJSON(t, resp, &board)
	var mine *ranking.Entry
	for i := range board.Farmers {
		if board.Farmers[i].ID == "farmer1" {
			mine = &board.Farmers[i]
		}
	}
	require.NotNil(t, mine)
	assert.Equal(t, 1560+150, mine.TotalPoints)
	assert.Equal(t, 1, mine.CompletedQuests)

	resp = ts.Get(t, "/api/dashboard", farmerTok)
	var dash struct {
		CompletedCount int `json:"completed_count"`
		User           struct {
			TotalPoints int `json:"total_points"`
		} `json:"user"`
	}
	ReadJSON(t, resp, &dash)
	assert.Equal(t, 1, dash.CompletedCount)
	assert.Equal(t, 1710, dash.User.TotalPoints)

	// farmer2 never saw farmer1's quest; the first thing it gets is the post.
	resp = ts.PostJSON(t, "/api/community/posts", map[string]string{
		"content":  "Mulch is down, soil stays moist for days!",
		"quest_id": "mulching-banana",
	}, farmerTok)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Post community.Post `json:"post"`
	}
	ReadJSON(t, resp, &created)

	ev := otherSSE.Recv(wait)
	require.Equal(t, sse.CommunityChannel, ev.Name)
	var cn sse.CommunityNotice
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &cn))
	assert.Equal(t, "post", cn.Kind)
	assert.Equal(t, created.Post.ID, cn.Post.ID)
	assert.Equal(t, "Mulching Banana Fields", cn.Post.QuestTitle)
}

func TestAnnounce_ReachesLateSubscribers(t *testing.T) {
	ts := NewTestServer(t)
	tok, _ := ts.Login(t, "farmer3", "demo123")
	live := ts.ConnectSSE(t, tok)

	resp := ts.Do(t, http.MethodPost, "/api/ops/announce", map[string]string{"message": "Heavy rain Thursday"}, "", "X-Admin-Key", AdminKey)
	RequireStatus(t, resp, http.StatusOK)

	ev := live.RecvType(sse.AnnounceChannel, wait)
	assert.Contains(t, ev.Data, "Heavy rain Thursday")

	late := ts.ConnectSSE(t, tok)
	ev = late.RecvType(sse.AnnounceChannel, wait)
	assert.Contains(t, ev.Data, "Heavy rain Thursday")

	RequireStatus(t, ts.Do(t, http.MethodGet, "/api/ops/metrics", nil, ""), http.StatusUnauthorized)
}

func TestQuizOverREST_MatchesWebSocket(t *testing.T) {
	ts := NewTestServer(t)
	tok, _ := ts.Login(t, "farmer4", "demo123")

	resp := ts.PostJSON(t, "/api/quizzes/soil-health/attempts", nil, tok)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var started struct {
		Attempt quiz.Attempt `json:"attempt"`
	}
	ReadJSON(t, resp, &started)
	id := started.Attempt.ID
	require.NotEmpty(t, id)

	RequireStatus(t, ts.PostJSON(t, "/api/attempts/"+id+"/answer", map[string]int{"choice": 1}, tok), http.StatusOK)
	RequireStatus(t, ts.PostJSON(t, "/api/attempts/"+id+"/next", nil, tok), http.StatusOK)
	RequireStatus(t, ts.PostJSON(t, "/api/attempts/"+id+"/answer", map[string]int{"choice": 1}, tok), http.StatusOK)

	resp = ts.PostJSON(t, "/api/attempts/"+id+"/finish", nil, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var finished struct {
		Result quiz.Result `json:"result"`
	}
	ReadJSON(t, resp, &finished)
	assert.True(t, finished.Result.Passed)
	assert.Equal(t, 2, finished.Result.Correct)

	// The pass unlocks the quest for this farmer.
	RequireStatus(t, ts.PostJSON(t, "/api/quests/soil-health/start", nil, tok), http.StatusOK)
	assert.True(t, ts.Quizzes.HasPassed("farmer4", "soil-health"))
}
