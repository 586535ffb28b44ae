package quiz

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrAttemptNotFound  = errors.New("quiz attempt not found")
	ErrAttemptFinished  = errors.New("quiz attempt already finished")
	ErrAnswerOutOfRange = errors.New("answer index out of range")
	ErrNotPassed        = errors.New("quest quiz not passed")
)

// Question is one multiple-choice item. Correct indexes Options.
type Question struct {
	ID          string   `json:"id" yaml:"id"`
	Question    string   `json:"question" yaml:"question"`
	Options     []string `json:"options" yaml:"options"`
	Correct     int      `json:"correct_answer" yaml:"correct_answer"`
	Explanation string   `json:"explanation" yaml:"explanation"`
}

// Quiz is an ordered question list. Quizzes gating a quest carry its id in
// QuestID and share the quest's id.
type Quiz struct {
	ID          string        `json:"id" yaml:"id"`
	Title       string        `json:"title" yaml:"title"`
	Description string        `json:"description" yaml:"description"`
	Category    string        `json:"category,omitempty" yaml:"category,omitempty"`
	QuestID     string        `json:"quest_id,omitempty" yaml:"quest_id,omitempty"`
	Difficulty  string        `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	TimeLimit   time.Duration `json:"-" yaml:"time_limit"`
	Points      int           `json:"points" yaml:"points"`
	Questions   []Question    `json:"questions" yaml:"questions"`
}

func (q *Quiz) clone() Quiz {
	out := *q
	out.Questions = make([]Question, len(q.Questions))
	for i, qq := range q.Questions {
		qq.Options = append([]string(nil), qq.Options...)
		out.Questions[i] = qq
	}
	return out
}

func (q *Quiz) validate() error {
	if q.ID == "" {
		return errors.New("quiz without id")
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz %s has no questions", q.ID)
	}
	for _, qq := range q.Questions {
		if len(qq.Options) < 2 {
			return fmt.Errorf("quiz %s question %s needs at least two options", q.ID, qq.ID)
		}
		if qq.Correct < 0 || qq.Correct >= len(qq.Options) {
			return fmt.Errorf("quiz %s question %s: %w", q.ID, qq.ID, ErrAnswerOutOfRange)
		}
	}
	return nil
}

// QuestionView is a question without its answer.
type QuestionView struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// View is what players see before finishing an attempt.
type View struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Category         string         `json:"category,omitempty"`
	QuestID          string         `json:"quest_id,omitempty"`
	Difficulty       string         `json:"difficulty,omitempty"`
	TimeLimitSeconds int            `json:"time_limit_seconds"`
	Points           int            `json:"points"`
	QuestionCount    int            `json:"question_count"`
	Questions        []QuestionView `json:"questions,omitempty"`
}

// View strips answers and explanations. withQuestions controls whether the
// question list is included.
func (q *Quiz) View(withQuestions bool) View {
	v := View{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		Category:         q.Category,
		QuestID:          q.QuestID,
		Difficulty:       q.Difficulty,
		TimeLimitSeconds: int(q.TimeLimit / time.Second),
		Points:           q.Points,
		QuestionCount:    len(q.Questions),
	}
	if withQuestions {
		for _, qq := range q.Questions {
			v.Questions = append(v.Questions, QuestionView{
				ID:       qq.ID,
				Question: qq.Question,
				Options:  append([]string(nil), qq.Options...),
			})
		}
	}
	return v
}

// BankDefaults fill in quizzes that leave fields empty.
type BankDefaults struct {
	TimeLimit time.Duration
	Points    int
}

// Bank holds every quiz by id.
type Bank struct {
	mu       sync.RWMutex
	order    []string
	quizzes  map[string]*Quiz
	defaults BankDefaults
}

// NewBank validates and indexes quizzes.
func NewBank(quizzes []Quiz, defaults BankDefaults) (*Bank, error) {
	if defaults.TimeLimit <= 0 {
		defaults.TimeLimit = 300 * time.Second
	}
	if defaults.Points <= 0 {
		defaults.Points = 100
	}
	b := &Bank{quizzes: make(map[string]*Quiz, len(quizzes)), defaults: defaults}
	for i := range quizzes {
		if _, dup := b.quizzes[quizzes[i].ID]; dup {
			return nil, fmt.Errorf("quiz: duplicate id %q", quizzes[i].ID)
		}
		if err := b.put(quizzes[i]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// put stores q, replacing any quiz with the same id. Caller holds the write
// lock or owns b exclusively.
func (b *Bank) put(in Quiz) error {
	q := in.clone()
	if q.TimeLimit <= 0 {
		q.TimeLimit = b.defaults.TimeLimit
	}
	if q.Points <= 0 {
		q.Points = b.defaults.Points
	}
	if err := q.validate(); err != nil {
		return fmt.Errorf("quiz: %w", err)
	}
	if _, exists := b.quizzes[q.ID]; !exists {
		b.order = append(b.order, q.ID)
	}
	b.quizzes[q.ID] = &q
	return nil
}

// Merge folds questions into the bank. Questions of an existing quiz are
// replaced by id or appended; unknown quiz ids become new quizzes.
func (b *Bank) Merge(extra []Quiz) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, in := range extra {
		cur, ok := b.quizzes[in.ID]
		if !ok {
			if err := b.put(in); err != nil {
				return err
			}
			continue
		}
		merged := cur.clone()
		for _, qq := range in.Questions {
			replaced := false
			for i := range merged.Questions {
				if merged.Questions[i].ID == qq.ID {
					merged.Questions[i] = qq
					replaced = true
					break
				}
			}
			if !replaced {
				merged.Questions = append(merged.Questions, qq)
			}
		}
		if err := b.put(merged); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the quiz with the given id.
func (b *Bank) Get(id string) (Quiz, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quizzes[id]
	if !ok {
		return Quiz{}, fmt.Errorf("%w: %s", ErrQuizNotFound, id)
	}
	return q.clone(), nil
}

// ForQuest returns the quiz gating questID.
func (b *Bank) ForQuest(questID string) (Quiz, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, id := range b.order {
		if q := b.quizzes[id]; q.QuestID == questID {
			return q.clone(), nil
		}
	}
	return Quiz{}, fmt.Errorf("%w: quest %s", ErrQuizNotFound, questID)
}

// List returns every quiz in load order.
func (b *Bank) List() []Quiz {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Quiz, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.quizzes[id].clone())
	}
	return out
}

// Standalone returns the quizzes not tied to a quest.
func (b *Bank) Standalone() []Quiz {
	all := b.List()
	out := all[:0]
	for _, q := range all {
		if q.QuestID == "" {
			out = append(out, q)
		}
	}
	return out
}
