package model

import (
	"time"

	"gorm.io/datatypes"
)

// RewardGrant is the ledger row written when a completed quest pays out.
type RewardGrant struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	FarmerID    string         `gorm:"index:idx_reward_farmer;size:64;not null" json:"farmer_id"`
	QuestID     string         `gorm:"index:idx_reward_quest;size:64;not null" json:"quest_id"`
	Points      int            `json:"points"`
	ScoreDelta  int            `json:"score_delta"`
	LevelAfter  int            `json:"level_after"`
	TotalPoints int            `json:"total_points"`
	Badges      datatypes.JSON `json:"badges"`
	CreatedAt   time.Time      `gorm:"autoCreateTime:milli" json:"created_at"`
}

// QuizResult stores the outcome of a finished quiz attempt.
type QuizResult struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AttemptID string    `gorm:"uniqueIndex;size:36;not null" json:"attempt_id"`
	QuizID    string    `gorm:"index:idx_quiz_result_quiz;size:64;not null" json:"quiz_id"`
	UserID    string    `gorm:"index:idx_quiz_result_user;size:64;not null" json:"user_id"`
	Correct   int       `json:"correct"`
	Total     int       `json:"total"`
	Percent   int       `json:"percent"`
	Score     int       `json:"score"`
	Passed    bool      `json:"passed"`
	TimedOut  bool      `json:"timed_out"`
	CreatedAt time.Time `gorm:"autoCreateTime:milli" json:"created_at"`
}
