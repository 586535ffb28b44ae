package community

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/farmquest/plugin/hook"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

var (
	ErrEmptyContent   = errors.New("post content is empty")
	ErrPostNotFound   = errors.New("post not found")
	ErrContentTooLong = errors.New("post content is too long")
)

// MaxContentRunes bounds a post body after sanitising.
const MaxContentRunes = 1000

// DefaultBadges decorate every new post.
var DefaultBadges = []string{"🌱"}

var strict = bluemonday.StrictPolicy()

// PrepareContent strips markup and surrounding whitespace from a post body
// and returns it as plain text. Blank results are rejected with
// ErrEmptyContent, bodies over MaxContentRunes with ErrContentTooLong.
func PrepareContent(raw string) (string, error) {
	clean := strings.ReplaceAll(raw, "\x00", "")
	// the sanitizer entity-encodes the text it keeps
	clean = strings.TrimSpace(html.UnescapeString(strict.Sanitize(clean)))
	if clean == "" {
		return "", ErrEmptyContent
	}
	if n := utf8.RuneCountInString(clean); n > MaxContentRunes {
		return "", fmt.Errorf("%w: %d characters, limit %d", ErrContentTooLong, n, MaxContentRunes)
	}
	return clean, nil
}

// Post is a community feed entry. HasLiked is relative to the viewer the
// snapshot was taken for.
type Post struct {
	ID         string    `json:"id" yaml:"id"`
	AuthorID   string    `json:"farmer_id" yaml:"farmer_id"`
	AuthorName string    `json:"farmer_name" yaml:"farmer_name"`
	Content    string    `json:"content" yaml:"content"`
	QuestID    string    `json:"quest_id,omitempty" yaml:"quest_id,omitempty"`
	QuestTitle string    `json:"quest_title,omitempty" yaml:"quest_title,omitempty"`
	Badges     []string  `json:"badges" yaml:"badges"`
	Likes      int       `json:"likes" yaml:"likes"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	HasLiked   bool      `json:"has_liked" yaml:"-"`

	// LikedBy seeds the per-viewer like set when loading data files.
	LikedBy []string `json:"-" yaml:"liked_by,omitempty"`
}

// NewPost is the input to Feed.Add.
type NewPost struct {
	AuthorID   string
	AuthorName string
	Content    string
	QuestID    string
	QuestTitle string
}

type entry struct {
	post    Post
	likedBy map[string]struct{}
}

func (e *entry) view(viewerID string) Post {
	p := e.post
	p.Badges = append([]string(nil), e.post.Badges...)
	p.LikedBy = nil
	_, p.HasLiked = e.likedBy[viewerID]
	return p
}

// Feed is the community post list, newest first.
type Feed struct {
	mu     sync.RWMutex
	posts  []*entry // index 0 is newest
	byID   map[string]*entry
	lastID int64

	now    func() time.Time
	hooks  *hook.HookCenter
	logger *zap.Logger
}

// NewFeed creates a Feed holding seed in the given order (newest first is
// not required; seed is sorted by CreatedAt descending). hooks may be nil.
func NewFeed(seed []Post, hooks *hook.HookCenter, logger *zap.Logger) *Feed {
	f := &Feed{
		byID:   make(map[string]*entry, len(seed)),
		now:    time.Now,
		hooks:  hooks,
		logger: logger,
	}
	for _, p := range seed {
		e := &entry{post: p, likedBy: make(map[string]struct{}, len(p.LikedBy))}
		e.post.Badges = append([]string(nil), p.Badges...)
		e.post.LikedBy = nil
		e.post.HasLiked = false
		for _, v := range p.LikedBy {
			e.likedBy[v] = struct{}{}
		}
		f.posts = append(f.posts, e)
		f.byID[p.ID] = e
	}
	sortNewestFirst(f.posts)
	return f
}

func sortNewestFirst(posts []*entry) {
	// insertion sort keeps equal timestamps in seed order
	for i := 1; i < len(posts); i++ {
		for j := i; j > 0 && posts[j].post.CreatedAt.After(posts[j-1].post.CreatedAt); j-- {
			posts[j], posts[j-1] = posts[j-1], posts[j]
		}
	}
}

// nextID returns a millisecond timestamp id, bumped when two posts land in
// the same millisecond. Caller holds the write lock.
func (f *Feed) nextID(now time.Time) string {
	id := now.UnixMilli()
	if id <= f.lastID {
		id = f.lastID + 1
	}
	for {
		if _, taken := f.byID[strconv.FormatInt(id, 10)]; !taken {
			break
		}
		id++
	}
	f.lastID = id
	return strconv.FormatInt(id, 10)
}

// Add prepends a post. Content is stored as given; callers run
// PrepareContent first.
func (f *Feed) Add(ctx context.Context, in NewPost) Post {
	f.mu.Lock()
	now := f.now()
	e := &entry{
		post: Post{
			ID:         f.nextID(now),
			AuthorID:   in.AuthorID,
			AuthorName: in.AuthorName,
			Content:    in.Content,
			QuestID:    in.QuestID,
			QuestTitle: in.QuestTitle,
			Badges:     append([]string(nil), DefaultBadges...),
			CreatedAt:  now,
		},
		likedBy: make(map[string]struct{}),
	}
	f.posts = append([]*entry{e}, f.posts...)
	f.byID[e.post.ID] = e
	out := e.view(in.AuthorID)
	f.mu.Unlock()

	f.logger.Info("post created",
		zap.String("post_id", out.ID),
		zap.String("author_id", out.AuthorID),
		zap.String("quest_id", out.QuestID))
	f.trigger(ctx, hook.OnPostCreate, out)
	return out
}

// ToggleLike flips viewerID's like on postID and moves the count with it.
func (f *Feed) ToggleLike(ctx context.Context, postID, viewerID string) (Post, error) {
	f.mu.Lock()
	e, ok := f.byID[postID]
	if !ok {
		f.mu.Unlock()
		return Post{}, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}
	if _, liked := e.likedBy[viewerID]; liked {
		delete(e.likedBy, viewerID)
		e.post.Likes--
	} else {
		e.likedBy[viewerID] = struct{}{}
		e.post.Likes++
	}
	out := e.view(viewerID)
	f.mu.Unlock()

	f.trigger(ctx, hook.OnPostLike, out)
	return out, nil
}

// Get returns one post as seen by viewerID.
func (f *Feed) Get(postID, viewerID string) (Post, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.byID[postID]
	if !ok {
		return Post{}, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}
	return e.view(viewerID), nil
}

// List returns up to limit posts, newest first. limit <= 0 means all.
func (f *Feed) List(viewerID string, limit int) []Post {
	return f.collect(viewerID, limit, func(*entry) bool { return true })
}

// Search matches term case-insensitively against content and author name.
func (f *Feed) Search(viewerID, term string, limit int) []Post {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return f.List(viewerID, limit)
	}
	return f.collect(viewerID, limit, func(e *entry) bool {
		return strings.Contains(strings.ToLower(e.post.Content), term) ||
			strings.Contains(strings.ToLower(e.post.AuthorName), term)
	})
}

// ByAuthor returns the posts written by authorID.
func (f *Feed) ByAuthor(viewerID, authorID string, limit int) []Post {
	return f.collect(viewerID, limit, func(e *entry) bool { return e.post.AuthorID == authorID })
}

func (f *Feed) collect(viewerID string, limit int, keep func(*entry) bool) []Post {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Post, 0)
	for _, e := range f.posts {
		if !keep(e) {
			continue
		}
		out = append(out, e.view(viewerID))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Count returns the number of posts.
func (f *Feed) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.posts)
}

func (f *Feed) trigger(ctx context.Context, event string, p Post) {
	if f.hooks == nil {
		return
	}
	if _, err := f.hooks.Trigger(ctx, event, p); err != nil {
		f.logger.Warn("community hook failed", zap.String("event", event), zap.Error(err))
	}
}
