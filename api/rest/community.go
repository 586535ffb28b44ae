package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/audit"
	"github.com/kasuganosora/farmquest/game/community"
	"github.com/kasuganosora/farmquest/game/player"
	"github.com/kasuganosora/farmquest/game/quest"
	mw "github.com/kasuganosora/farmquest/middleware"
)

const maxFeedPage = 100

// CommunityHandler serves the community feed.
type CommunityHandler struct {
	feed     *community.Feed
	roster   *player.Roster
	quests   *quest.Store
	pageSize int
	audit    auditor
}

// NewCommunityHandler creates a CommunityHandler. auditSvc may be nil.
func NewCommunityHandler(feed *community.Feed, roster *player.Roster, quests *quest.Store, pageSize int, auditSvc *audit.Service) *CommunityHandler {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &CommunityHandler{feed: feed, roster: roster, quests: quests, pageSize: pageSize, audit: auditor{auditSvc}}
}

// List returns the feed newest first. ?author= narrows to one author, ?q=
// searches content and author names.
// GET /api/community/posts
func (h *CommunityHandler) List(c *gin.Context) {
	viewer := mw.GetUserID(c)
	limit := queryLimit(c, h.pageSize, maxFeedPage)
	var posts []community.Post
	switch {
	case c.Query("author") != "":
		posts = h.feed.ByAuthor(viewer, c.Query("author"), limit)
	case c.Query("q") != "":
		posts = h.feed.Search(viewer, c.Query("q"), limit)
	default:
		posts = h.feed.List(viewer, limit)
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "total": h.feed.Count()})
}

// Detail handles GET /api/community/posts/:id.
func (h *CommunityHandler) Detail(c *gin.Context) {
	p, err := h.feed.Get(c.Param("id"), mw.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": p})
}

type createPostRequest struct {
	Content string `json:"content"`
	QuestID string `json:"quest_id"`
}

// Create publishes a post as the caller. Empty content is refused here,
// before it reaches the feed.
// POST /api/community/posts
func (h *CommunityHandler) Create(c *gin.Context) {
	start := time.Now()
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content, err := community.PrepareContent(req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	author, err := h.roster.Get(mw.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	in := community.NewPost{AuthorID: author.ID, AuthorName: author.Name, Content: content}
	if req.QuestID != "" {
		q, err := h.quests.Get(req.QuestID)
		if err != nil {
			writeError(c, err)
			return
		}
		in.QuestID, in.QuestTitle = q.ID, q.Title
	}
	p := h.feed.Add(c.Request.Context(), in)
	h.audit.record(c, start, audit.ActionPostCreate, p.ID, req, nil)
	c.JSON(http.StatusCreated, gin.H{"post": p})
}

// Like toggles the caller's like.
// POST /api/community/posts/:id/like
func (h *CommunityHandler) Like(c *gin.Context) {
	p, err := h.feed.ToggleLike(c.Request.Context(), c.Param("id"), mw.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": p})
}
