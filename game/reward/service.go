package reward

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kasuganosora/farmquest/cache"
	"github.com/kasuganosora/farmquest/game/player"
	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/model"
	"github.com/kasuganosora/farmquest/plugin/hook"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HookName identifies the reward handlers in the hook center.
const HookName = "reward"

// DifficultyBonus is the sustainability score gained per completed quest.
var DifficultyBonus = map[quest.Difficulty]int{
	quest.DifficultyEasy:   2,
	quest.DifficultyMedium: 3,
	quest.DifficultyHard:   5,
}

// CategoryBadges are awarded for the first completed quest of a category.
var CategoryBadges = map[quest.Category]player.Badge{
	quest.CategorySoil:         {ID: "soil-guardian", Name: "Soil Guardian", Description: "Completed a soil health quest", Icon: "🪱", Tier: player.TierBronze},
	quest.CategoryWater:        {ID: "water-saver", Name: "Water Saver", Description: "Implemented water conservation techniques", Icon: "💧", Tier: player.TierSilver},
	quest.CategoryBiodiversity: {ID: "biodiversity-builder", Name: "Biodiversity Builder", Description: "Brought more life to the farm", Icon: "🦋", Tier: player.TierSilver},
	quest.CategoryOrganic:      {ID: "organic-champion", Name: "Organic Champion", Description: "Replaced chemicals with organic practice", Icon: "🏆", Tier: player.TierGold},
	quest.CategoryClimate:      {ID: "climate-ally", Name: "Climate Ally", Description: "Took action for a resilient climate", Icon: "🌍", Tier: player.TierGold},
}

// Grant describes one payout.
type Grant struct {
	FarmerID    string         `json:"farmer_id"`
	QuestID     string         `json:"quest_id"`
	Points      int            `json:"points"`
	ScoreDelta  int            `json:"score_delta"`
	LevelAfter  int            `json:"level_after"`
	TotalPoints int            `json:"total_points"`
	Badges      []player.Badge `json:"badges,omitempty"`
}

// Ranker receives the farmer's new standing after a grant.
type Ranker interface {
	Update(ctx context.Context, u player.User) error
}

// Options tunes the level curve.
type Options struct {
	PointsPerLevel int
	MaxLevel       int
	Now            func() time.Time
}

// Service pays out points, score and badges when a quest is completed.
type Service struct {
	mu     sync.Mutex // serialises grants so ledger checks see each other
	roster *player.Roster
	db     *gorm.DB
	cache  cache.Cache
	ranker Ranker
	hooks  *hook.HookCenter
	logger *zap.Logger
	opts   Options
}

// NewService creates a reward Service. ranker may be nil.
func NewService(roster *player.Roster, db *gorm.DB, c cache.Cache, ranker Ranker, hooks *hook.HookCenter, logger *zap.Logger, opts Options) *Service {
	if opts.PointsPerLevel <= 0 {
		opts.PointsPerLevel = 300
	}
	if opts.MaxLevel <= 0 {
		opts.MaxLevel = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		roster: roster,
		db:     db,
		cache:  c,
		ranker: ranker,
		hooks:  hooks,
		logger: logger,
		opts:   opts,
	}
}

// Register subscribes the service to quest completion.
func (s *Service) Register() {
	s.hooks.Register(hook.OnQuestComplete, 100, HookName, func(ctx context.Context, _ string, data interface{}) (interface{}, error) {
		ev, ok := data.(quest.Event)
		if !ok {
			return data, nil
		}
		if _, err := s.Apply(ctx, ev); err != nil {
			return data, err
		}
		return data, nil
	})
}

func lockKey(questID, farmerID string) string {
	return "reward:" + questID + ":" + farmerID
}

// Apply grants the reward for a completion event. Events that are not a
// transition into completed, quests without an owner and repeats of an
// already paid quest return (nil, nil). A failure before the farmer is paid
// releases the lock so a later completion can retry.
func (s *Service) Apply(ctx context.Context, ev quest.Event) (_ *Grant, err error) {
	q := ev.Quest
	if q.Status != quest.StatusCompleted || ev.Previous == quest.StatusCompleted || q.FarmerID == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := lockKey(q.ID, q.FarmerID)
	ok, err := s.cache.SetNX(ctx, key, "1", 0)
	if err != nil {
		return nil, fmt.Errorf("reward: lock: %w", err)
	}
	if !ok {
		return nil, nil
	}
	defer func() {
		if err != nil {
			if derr := s.cache.Del(context.WithoutCancel(ctx), key); derr != nil {
				s.logger.Warn("reward lock release failed", zap.String("key", key), zap.Error(derr))
			}
		}
	}()

	paid, err := s.alreadyPaid(ctx, q.ID, q.FarmerID)
	if err != nil {
		return nil, fmt.Errorf("reward: ledger: %w", err)
	}
	if paid {
		return nil, nil
	}

	completed, err := s.completedCategories(ctx, q.FarmerID)
	if err != nil {
		return nil, fmt.Errorf("reward: ledger: %w", err)
	}

	var g Grant
	now := s.opts.Now()
	u, err := s.roster.Update(q.FarmerID, func(u *player.User) {
		before := u.SustainabilityScore
		u.TotalPoints += q.Points
		u.Level = player.LevelFor(u.TotalPoints, s.opts.PointsPerLevel, s.opts.MaxLevel)
		u.SustainabilityScore = player.ClampScore(u.SustainabilityScore + DifficultyBonus[q.Difficulty])
		g.ScoreDelta = u.SustainabilityScore - before

		if badge, ok := CategoryBadges[q.Category]; ok && !completed[q.Category] && !u.HasBadge(badge.ID) {
			badge.AwardedAt = now
			u.Badges = append(u.Badges, badge)
			g.Badges = append(g.Badges, badge)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("reward: %w", err)
	}

	g.FarmerID = q.FarmerID
	g.QuestID = q.ID
	g.Points = q.Points
	g.LevelAfter = u.Level
	g.TotalPoints = u.TotalPoints

	if err := s.record(ctx, g, string(q.Category)); err != nil {
		s.logger.Error("reward ledger write failed", zap.String("quest_id", q.ID), zap.Error(err))
	}
	if s.ranker != nil {
		if err := s.ranker.Update(ctx, u); err != nil {
			s.logger.Warn("ranking update failed", zap.String("farmer_id", u.ID), zap.Error(err))
		}
	}

	s.logger.Info("reward granted",
		zap.String("farmer_id", g.FarmerID),
		zap.String("quest_id", g.QuestID),
		zap.Int("points", g.Points),
		zap.Int("total_points", g.TotalPoints),
		zap.Int("level", g.LevelAfter),
		zap.Int("badges", len(g.Badges)))
	if _, err := s.hooks.Trigger(ctx, hook.OnRewardGranted, g); err != nil {
		s.logger.Warn("reward hook failed", zap.Error(err))
	}
	return &g, nil
}

type ledgerBadges struct {
	Category string         `json:"category"`
	Awarded  []player.Badge `json:"awarded"`
}

func (s *Service) record(ctx context.Context, g Grant, category string) error {
	if s.db == nil {
		return nil
	}
	raw, err := json.Marshal(ledgerBadges{Category: category, Awarded: g.Badges})
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model.RewardGrant{
		FarmerID:    g.FarmerID,
		QuestID:     g.QuestID,
		Points:      g.Points,
		ScoreDelta:  g.ScoreDelta,
		LevelAfter:  g.LevelAfter,
		TotalPoints: g.TotalPoints,
		Badges:      datatypes.JSON(raw),
	}).Error
}

func (s *Service) alreadyPaid(ctx context.Context, questID, farmerID string) (bool, error) {
	if s.db == nil {
		return false, nil
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&model.RewardGrant{}).
		Where("quest_id = ? AND farmer_id = ?", questID, farmerID).
		Count(&n).Error
	return n > 0, err
}

// completedCategories lists categories the farmer has already been paid for.
func (s *Service) completedCategories(ctx context.Context, farmerID string) (map[quest.Category]bool, error) {
	out := make(map[quest.Category]bool)
	if s.db == nil {
		return out, nil
	}
	rows, err := s.History(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		var lb ledgerBadges
		if err := json.Unmarshal(r.Badges, &lb); err == nil && lb.Category != "" {
			out[quest.Category(lb.Category)] = true
		}
	}
	return out, nil
}

// History returns the farmer's ledger rows, newest first.
func (s *Service) History(ctx context.Context, farmerID string) ([]model.RewardGrant, error) {
	var rows []model.RewardGrant
	if s.db == nil {
		return rows, nil
	}
	err := s.db.WithContext(ctx).
		Where("farmer_id = ?", farmerID).
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}
