package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/cache"
	"github.com/kasuganosora/farmquest/config"
	"github.com/kasuganosora/farmquest/game/community"
	"github.com/kasuganosora/farmquest/game/player"
	"github.com/kasuganosora/farmquest/game/quest"
	mw "github.com/kasuganosora/farmquest/middleware"
	"github.com/kasuganosora/farmquest/plugin/hook"
	"go.uber.org/zap"
)

// Pub/sub channels. The SSE event name equals the channel name.
const (
	AnnounceChannel  = "announce"
	CommunityChannel = "community"
	QuestChannel     = "quest"
)

const (
	historyKey   = "announce:history"
	historyLen   = 20
	replayOnJoin = 5
	hookName     = "sse"
)

// Announcement is the payload of an announce event.
type Announcement struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// CommunityNotice is the payload of a community event.
type CommunityNotice struct {
	Kind string         `json:"kind"` // post or like
	Post community.Post `json:"post"`
}

// QuestNotice is the payload of a quest event. It is only delivered to the
// farmer who owns the quest and to admins.
type QuestNotice struct {
	Kind     string       `json:"kind"` // started, submitted, completed, rejected
	QuestID  string       `json:"quest_id"`
	Title    string       `json:"title"`
	FarmerID string       `json:"farmer_id"`
	Status   quest.Status `json:"status"`
	Progress int          `json:"progress"`
	Note     string       `json:"note,omitempty"`
}

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	sec       config.SecurityConfig
	c         cache.Cache
	logger    *zap.Logger
	keepalive time.Duration
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, sec: sec, logger: logger, keepalive: 30 * time.Second}
}

// RegisterHooks forwards quest and community events to the pub/sub channels.
func (h *Handler) RegisterHooks(hc *hook.HookCenter) {
	questKinds := map[string]string{
		hook.OnQuestStart:    "started",
		hook.OnQuestSubmit:   "submitted",
		hook.OnQuestComplete: "completed",
		hook.OnQuestReject:   "rejected",
	}
	for event, kind := range questKinds {
		hc.Register(event, 100, hookName, func(ctx context.Context, _ string, data interface{}) (interface{}, error) {
			ev, ok := data.(quest.Event)
			if !ok {
				return data, nil
			}
			h.publish(ctx, QuestChannel, QuestNotice{
				Kind:     kind,
				QuestID:  ev.Quest.ID,
				Title:    ev.Quest.Title,
				FarmerID: ev.Quest.FarmerID,
				Status:   ev.Quest.Status,
				Progress: ev.Quest.Progress,
				Note:     ev.Note,
			})
			return data, nil
		})
	}

	communityKinds := map[string]string{
		hook.OnPostCreate: "post",
		hook.OnPostLike:   "like",
	}
	for event, kind := range communityKinds {
		hc.Register(event, 100, hookName, func(ctx context.Context, _ string, data interface{}) (interface{}, error) {
			p, ok := data.(community.Post)
			if !ok {
				return data, nil
			}
			// has_liked is viewer specific
			p.HasLiked = false
			h.publish(ctx, CommunityChannel, CommunityNotice{Kind: kind, Post: p})
			return data, nil
		})
	}
}

func (h *Handler) publish(ctx context.Context, channel string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("sse marshal failed", zap.String("channel", channel), zap.Error(err))
		return
	}
	if err := h.pubsub.Publish(ctx, channel, string(b)); err != nil {
		h.logger.Warn("sse publish failed", zap.String("channel", channel), zap.Error(err))
	}
}

// ServeSSE handles GET /sse?token=<jwt>.
// On connect the most recent announcements are replayed, then announce,
// community and quest events are streamed until the client goes away.
func (h *Handler) ServeSSE(c *gin.Context) {
	claims, err := mw.VerifySession(c.Request.Context(), h.c, h.sec.JWTSecret, c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, AnnounceChannel, CommunityChannel, QuestChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"user_id\":%q}\n\n", claims.UserID)
	for _, payload := range h.history(c.Request.Context(), replayOnJoin) {
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", AnnounceChannel, payload)
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			if msg.Channel == QuestChannel && !visibleTo(msg.Payload, claims) {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", msg.Channel, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

func visibleTo(payload string, claims *mw.Claims) bool {
	if player.Role(claims.Role) == player.RoleAdmin {
		return true
	}
	var n QuestNotice
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return false
	}
	return n.FarmerID == claims.UserID
}

// history returns up to n stored announcements, oldest first.
func (h *Handler) history(ctx context.Context, n int) []string {
	items, err := h.c.LRange(ctx, historyKey, 0, int64(n-1))
	if err != nil {
		if !cache.IsNotFound(err) {
			h.logger.Warn("sse history read failed", zap.Error(err))
		}
		return nil
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

// Announce stores an announcement in the history and publishes it to all
// SSE subscribers.
func (h *Handler) Announce(ctx context.Context, message string) error {
	b, err := json.Marshal(Announcement{Message: message, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := h.c.LPush(ctx, historyKey, string(b)); err != nil {
		return err
	}
	if err := h.c.LTrim(ctx, historyKey, 0, historyLen-1); err != nil {
		return err
	}
	return h.pubsub.Publish(ctx, AnnounceChannel, string(b))
}
