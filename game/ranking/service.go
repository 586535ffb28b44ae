package ranking

import (
	"context"
	"math"
	"sort"

	"github.com/kasuganosora/farmquest/cache"
	"github.com/kasuganosora/farmquest/game/player"
	"github.com/kasuganosora/farmquest/game/quest"
	"go.uber.org/zap"
)

// ZKey is the sorted set holding every farmer's standing.
const ZKey = "ranking:points"

// Entry is one row of the farmer leaderboard.
type Entry struct {
	Rank                int    `json:"rank"`
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Panchayat           string `json:"panchayat"`
	SustainabilityScore int    `json:"sustainability_score"`
	TotalPoints         int    `json:"total_points"`
	Level               int    `json:"level"`
	Badges              int    `json:"badges"`
	CompletedQuests     int    `json:"completed_quests"`
	Avatar              string `json:"avatar,omitempty"`
}

// PanchayatEntry aggregates the farmers of one panchayat.
type PanchayatEntry struct {
	Rank            int    `json:"rank"`
	Name            string `json:"name"`
	TotalFarmers    int    `json:"total_farmers"`
	AvgScore        int    `json:"avg_score"`
	TotalPoints     int    `json:"total_points"`
	CompletedQuests int    `json:"completed_quests"`
}

// score packs points and sustainability score into one sortable number.
func score(u player.User) float64 {
	return float64(u.TotalPoints)*1000 + float64(u.SustainabilityScore)
}

// Service maintains the leaderboard in the cache.
type Service struct {
	roster *player.Roster
	quests *quest.Store
	cache  cache.Cache
	logger *zap.Logger
}

func NewService(roster *player.Roster, quests *quest.Store, c cache.Cache, logger *zap.Logger) *Service {
	return &Service{roster: roster, quests: quests, cache: c, logger: logger}
}

// Refresh rewrites every farmer's standing.
func (s *Service) Refresh(ctx context.Context) error {
	for _, u := range s.roster.Farmers() {
		if err := s.cache.ZAdd(ctx, ZKey, score(u), u.ID); err != nil {
			return err
		}
	}
	return nil
}

// Update records one farmer's new standing. Non-farmers are ignored.
func (s *Service) Update(ctx context.Context, u player.User) error {
	if u.Role != player.RoleFarmer {
		return nil
	}
	return s.cache.ZAdd(ctx, ZKey, score(u), u.ID)
}

// Farmers returns the leaderboard, best first: points, then sustainability
// score, then id. limit <= 0 returns everyone.
func (s *Service) Farmers(ctx context.Context, limit int) ([]Entry, error) {
	ids, err := s.cache.ZRevRange(ctx, ZKey, 0, -1)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		// cold cache, e.g. a fresh Redis
		if err := s.Refresh(ctx); err != nil {
			return nil, err
		}
		if ids, err = s.cache.ZRevRange(ctx, ZKey, 0, -1); err != nil {
			return nil, err
		}
	}

	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		u, err := s.roster.Get(id)
		if err != nil {
			// user left the roster since the set was written
			_ = s.cache.ZRem(ctx, ZKey, id)
			continue
		}
		out = append(out, Entry{
			ID:                  u.ID,
			Name:                u.Name,
			Panchayat:           u.Panchayat,
			SustainabilityScore: u.SustainabilityScore,
			TotalPoints:         u.TotalPoints,
			Level:               u.Level,
			Badges:              len(u.Badges),
			CompletedQuests:     len(s.quests.Completed(u.ID)),
			Avatar:              u.Avatar,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if a.SustainabilityScore != b.SustainabilityScore {
			return a.SustainabilityScore > b.SustainabilityScore
		}
		return a.ID < b.ID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RankOf returns the farmer's 1-based rank, or 0 if unranked.
func (s *Service) RankOf(ctx context.Context, userID string) (int, error) {
	all, err := s.Farmers(ctx, 0)
	if err != nil {
		return 0, err
	}
	for _, e := range all {
		if e.ID == userID {
			return e.Rank, nil
		}
	}
	return 0, nil
}

// Panchayats aggregates farmers per panchayat, ordered by average score,
// then total points, then name.
func (s *Service) Panchayats() []PanchayatEntry {
	type acc struct {
		farmers, scoreSum, points, quests int
	}
	groups := make(map[string]*acc)
	for _, u := range s.roster.Farmers() {
		g, ok := groups[u.Panchayat]
		if !ok {
			g = &acc{}
			groups[u.Panchayat] = g
		}
		g.farmers++
		g.scoreSum += u.SustainabilityScore
		g.points += u.TotalPoints
		g.quests += len(s.quests.Completed(u.ID))
	}

	out := make([]PanchayatEntry, 0, len(groups))
	for name, g := range groups {
		out = append(out, PanchayatEntry{
			Name:            name,
			TotalFarmers:    g.farmers,
			AvgScore:        int(math.Round(float64(g.scoreSum) / float64(g.farmers))),
			TotalPoints:     g.points,
			CompletedQuests: g.quests,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AvgScore != b.AvgScore {
			return a.AvgScore > b.AvgScore
		}
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		return a.Name < b.Name
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
