package quiz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/model"
	"github.com/kasuganosora/farmquest/plugin/hook"
	"github.com/kasuganosora/farmquest/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QuizEvidence is attached to a quest's first step when a passed quiz
// starts it.
const QuizEvidence = "Quiz completed successfully"

// Review explains one question after the attempt is finished. Chosen is -1
// when the question was left unanswered.
type Review struct {
	QuestionID  string `json:"question_id"`
	Question    string `json:"question"`
	Chosen      int    `json:"chosen"`
	Correct     int    `json:"correct_answer"`
	IsCorrect   bool   `json:"is_correct"`
	Explanation string `json:"explanation"`
}

// Result is the outcome of a finished attempt.
type Result struct {
	AttemptID  string    `json:"attempt_id"`
	QuizID     string    `json:"quiz_id"`
	QuestID    string    `json:"quest_id,omitempty"`
	UserID     string    `json:"user_id"`
	Correct    int       `json:"correct"`
	Total      int       `json:"total"`
	Percent    int       `json:"percent"`
	Score      int       `json:"score"`
	MaxScore   int       `json:"max_score"`
	Passed     bool      `json:"passed"`
	TimedOut   bool      `json:"timed_out"`
	Review     []Review  `json:"review"`
	FinishedAt time.Time `json:"finished_at"`
}

// Grade scores answers against q. Missing or negative answers are wrong.
func Grade(q Quiz, answers []int, passPercent int) Result {
	r := Result{QuizID: q.ID, QuestID: q.QuestID, Total: len(q.Questions), MaxScore: q.Points}
	for i, qq := range q.Questions {
		chosen := -1
		if i < len(answers) {
			chosen = answers[i]
		}
		ok := chosen == qq.Correct
		if ok {
			r.Correct++
		}
		r.Review = append(r.Review, Review{
			QuestionID:  qq.ID,
			Question:    qq.Question,
			Chosen:      chosen,
			Correct:     qq.Correct,
			IsCorrect:   ok,
			Explanation: qq.Explanation,
		})
	}
	if r.Total > 0 {
		ratio := float64(r.Correct) / float64(r.Total)
		r.Percent = int(math.Round(ratio * 100))
		r.Score = int(math.Round(ratio * float64(q.Points)))
	}
	r.Passed = r.Percent >= passPercent
	return r
}

// Attempt is one player's run through a quiz.
type Attempt struct {
	ID         string     `json:"id"`
	QuizID     string     `json:"quiz_id"`
	UserID     string     `json:"user_id"`
	Index      int        `json:"index"`
	Answers    []int      `json:"answers"`
	StartedAt  time.Time  `json:"started_at"`
	Deadline   time.Time  `json:"deadline"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     *Result    `json:"result,omitempty"`

	// quiz is the bank entry as it was when the attempt started.
	quiz Quiz
}

// Finished reports whether the attempt is frozen.
func (a *Attempt) Finished() bool { return a.FinishedAt != nil }

// Remaining is the time left before the countdown finishes the attempt.
func (a *Attempt) Remaining(now time.Time) time.Duration {
	if a.Finished() || now.After(a.Deadline) {
		return 0
	}
	return a.Deadline.Sub(now)
}

func (a *Attempt) clone() Attempt {
	out := *a
	out.Answers = append([]int(nil), a.Answers...)
	if a.FinishedAt != nil {
		t := *a.FinishedAt
		out.FinishedAt = &t
	}
	if a.Result != nil {
		r := *a.Result
		r.Review = append([]Review(nil), a.Result.Review...)
		out.Result = &r
	}
	return out
}

// Options tunes a Service.
type Options struct {
	// PassPercent is the pass mark, clamped to 0..100. Zero lets every
	// finished attempt pass.
	PassPercent int
	AttemptTTL  time.Duration
	Now         func() time.Time
}

// Service runs quiz attempts and unlocks quests for players who pass.
type Service struct {
	mu       sync.Mutex
	attempts map[string]*Attempt
	passed   map[string]Result // userID|questID → latest passing result

	bank   *Bank
	quests *quest.Store
	sched  *scheduler.Scheduler
	db     *gorm.DB
	hooks  *hook.HookCenter
	logger *zap.Logger
	opts   Options
}

// NewService wires the quiz runner. db and hooks may be nil.
func NewService(bank *Bank, quests *quest.Store, sched *scheduler.Scheduler, db *gorm.DB, hooks *hook.HookCenter, logger *zap.Logger, opts Options) *Service {
	opts.PassPercent = min(max(opts.PassPercent, 0), 100)
	if opts.AttemptTTL <= 0 {
		opts.AttemptTTL = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		attempts: make(map[string]*Attempt),
		passed:   make(map[string]Result),
		bank:     bank,
		quests:   quests,
		sched:    sched,
		db:       db,
		hooks:    hooks,
		logger:   logger,
		opts:     opts,
	}
}

// Bank exposes the quiz bank.
func (s *Service) Bank() *Bank { return s.bank }

// PassPercent is the score needed to pass.
func (s *Service) PassPercent() int { return s.opts.PassPercent }

func timerName(attemptID string) string { return "quiz:" + attemptID }

// Start opens a fresh attempt and arms its countdown.
func (s *Service) Start(ctx context.Context, quizID, userID string) (Attempt, error) {
	q, err := s.bank.Get(quizID)
	if err != nil {
		return Attempt{}, err
	}
	now := s.opts.Now()
	a := &Attempt{
		ID:        uuid.NewString(),
		QuizID:    q.ID,
		UserID:    userID,
		Answers:   make([]int, len(q.Questions)),
		StartedAt: now,
		Deadline:  now.Add(q.TimeLimit),
		quiz:      q,
	}
	for i := range a.Answers {
		a.Answers[i] = -1
	}

	s.mu.Lock()
	s.attempts[a.ID] = a
	out := a.clone()
	s.mu.Unlock()

	id := a.ID
	s.sched.AddDelay(timerName(id), q.TimeLimit, func(ctx context.Context) {
		if _, err := s.finish(ctx, id, "", true); err != nil && !errors.Is(err, ErrAttemptFinished) {
			s.logger.Warn("quiz timeout finish failed", zap.String("attempt_id", id), zap.Error(err))
		}
	})
	s.logger.Info("quiz started",
		zap.String("attempt_id", id),
		zap.String("quiz_id", q.ID),
		zap.String("user_id", userID))
	return out, nil
}

// lookup returns the live attempt owned by userID. Caller holds s.mu.
// userID "" skips the ownership check.
func (s *Service) lookup(attemptID, userID string) (*Attempt, error) {
	a, ok := s.attempts[attemptID]
	if !ok || (userID != "" && a.UserID != userID) {
		return nil, fmt.Errorf("%w: %s", ErrAttemptNotFound, attemptID)
	}
	return a, nil
}

// Get returns a snapshot of an attempt.
func (s *Service) Get(attemptID, userID string) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(attemptID, userID)
	if err != nil {
		return Attempt{}, err
	}
	return a.clone(), nil
}

// Answer records choice for the current question. Answers may be changed
// until the attempt finishes.
func (s *Service) Answer(attemptID, userID string, choice int) (Attempt, error) {
	q, a, err := s.open(attemptID, userID)
	if err != nil {
		return Attempt{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Finished() {
		return Attempt{}, ErrAttemptFinished
	}
	if choice < 0 || choice >= len(q.Questions[a.Index].Options) {
		return Attempt{}, fmt.Errorf("%w: %d", ErrAnswerOutOfRange, choice)
	}
	a.Answers[a.Index] = choice
	return a.clone(), nil
}

// Next advances to the following question, or finishes the attempt when
// called on the last one. The returned attempt carries the result in that
// case.
func (s *Service) Next(ctx context.Context, attemptID, userID string) (Attempt, error) {
	q, a, err := s.open(attemptID, userID)
	if err != nil {
		return Attempt{}, err
	}
	s.mu.Lock()
	if a.Finished() {
		s.mu.Unlock()
		return Attempt{}, ErrAttemptFinished
	}
	if a.Index < len(q.Questions)-1 {
		a.Index++
		out := a.clone()
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	if _, err := s.finish(ctx, attemptID, userID, false); err != nil && !errors.Is(err, ErrAttemptFinished) {
		return Attempt{}, err
	}
	return s.Get(attemptID, userID)
}

// Finish freezes the attempt and scores it. Finishing an already finished
// attempt returns the stored result.
func (s *Service) Finish(ctx context.Context, attemptID, userID string) (Result, error) {
	r, err := s.finish(ctx, attemptID, userID, false)
	if errors.Is(err, ErrAttemptFinished) {
		return r, nil
	}
	return r, err
}

func (s *Service) open(attemptID, userID string) (Quiz, *Attempt, error) {
	s.mu.Lock()
	a, err := s.lookup(attemptID, userID)
	s.mu.Unlock()
	if err != nil {
		return Quiz{}, nil, err
	}
	return a.quiz, a, nil
}

func (s *Service) finish(ctx context.Context, attemptID, userID string, timedOut bool) (Result, error) {
	q, a, err := s.open(attemptID, userID)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	if a.Finished() {
		r := *a.Result
		s.mu.Unlock()
		return r, ErrAttemptFinished
	}
	now := s.opts.Now()
	r := Grade(q, a.Answers, s.opts.PassPercent)
	r.AttemptID = a.ID
	r.UserID = a.UserID
	r.TimedOut = timedOut
	r.FinishedAt = now
	a.FinishedAt = &now
	a.Result = &r
	if r.Passed && q.QuestID != "" {
		s.passed[passKey(a.UserID, q.QuestID)] = r
	}
	s.mu.Unlock()

	if !timedOut {
		s.sched.Remove(timerName(attemptID))
	}
	s.persist(ctx, r)
	s.logger.Info("quiz finished",
		zap.String("attempt_id", r.AttemptID),
		zap.String("quiz_id", r.QuizID),
		zap.String("user_id", r.UserID),
		zap.Int("percent", r.Percent),
		zap.Bool("passed", r.Passed),
		zap.Bool("timed_out", r.TimedOut))
	if s.hooks != nil {
		if _, err := s.hooks.Trigger(ctx, hook.OnQuizFinish, r); err != nil {
			s.logger.Warn("quiz hook failed", zap.Error(err))
		}
	}
	return r, nil
}

func (s *Service) persist(ctx context.Context, r Result) {
	if s.db == nil {
		return
	}
	row := &model.QuizResult{
		AttemptID: r.AttemptID,
		QuizID:    r.QuizID,
		UserID:    r.UserID,
		Correct:   r.Correct,
		Total:     r.Total,
		Percent:   r.Percent,
		Score:     r.Score,
		Passed:    r.Passed,
		TimedOut:  r.TimedOut,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		s.logger.Error("persist quiz result", zap.String("attempt_id", r.AttemptID), zap.Error(err))
	}
}

func passKey(userID, questID string) string { return userID + "|" + questID }

// HasPassed reports whether userID has passed the quiz gating questID.
func (s *Service) HasPassed(userID, questID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.passed[passKey(userID, questID)]
	return ok
}

// StartQuest starts questID for a player who passed its quiz and marks the
// first step complete. A quest without a quiz can be started directly.
func (s *Service) StartQuest(ctx context.Context, questID, userID string) (quest.Quest, error) {
	q, err := s.quests.Get(questID)
	if err != nil {
		return quest.Quest{}, err
	}
	if _, err := s.bank.ForQuest(questID); err == nil && !s.HasPassed(userID, questID) {
		return quest.Quest{}, fmt.Errorf("%w: %s", ErrNotPassed, questID)
	}
	started, err := s.quests.Start(ctx, questID, userID)
	if err != nil {
		return quest.Quest{}, err
	}
	if len(q.Steps) == 0 {
		return started, nil
	}
	return s.quests.UpdateProgress(ctx, questID, q.Steps[0].ID, QuizEvidence, userID)
}

// GC drops attempts finished longer than the attempt TTL ago, and abandoned
// attempts whose deadline passed that long ago. It returns how many were
// removed.
func (s *Service) GC() int {
	cutoff := s.opts.Now().Add(-s.opts.AttemptTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, a := range s.attempts {
		end := a.Deadline
		if a.FinishedAt != nil {
			end = *a.FinishedAt
		}
		if end.Before(cutoff) {
			delete(s.attempts, id)
			n++
		}
	}
	return n
}

// Live returns the number of attempts held in memory.
func (s *Service) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}
