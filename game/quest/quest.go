package quest

import (
	"math"
	"time"
)

// Status is a position in the quest lifecycle:
// available → active → pending_approval → completed.
type Status string

const (
	StatusAvailable       Status = "available"
	StatusActive          Status = "active"
	StatusPendingApproval Status = "pending_approval"
	StatusCompleted       Status = "completed"
)

type Category string

const (
	CategorySoil         Category = "soil"
	CategoryWater        Category = "water"
	CategoryBiodiversity Category = "biodiversity"
	CategoryOrganic      Category = "organic"
	CategoryClimate      Category = "climate"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Step is one ordered task inside a quest. Completed only ever moves from
// false to true.
type Step struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Completed   bool   `json:"completed" yaml:"completed"`
	Evidence    string `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// Quest is a catalog entry together with its live state.
type Quest struct {
	ID           string     `json:"id" yaml:"id"`
	Title        string     `json:"title" yaml:"title"`
	Description  string     `json:"description" yaml:"description"`
	Category     Category   `json:"category" yaml:"category"`
	Difficulty   Difficulty `json:"difficulty" yaml:"difficulty"`
	Points       int        `json:"points" yaml:"points"`
	DurationDays int        `json:"duration" yaml:"duration"`
	Steps        []Step     `json:"steps" yaml:"steps"`
	Requirements []string   `json:"requirements" yaml:"requirements"`
	Icon         string     `json:"icon" yaml:"icon"`

	Status        Status     `json:"status" yaml:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty" yaml:"-"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" yaml:"-"`
	Progress      int        `json:"progress" yaml:"-"`
	FarmerID      string     `json:"farmer_id,omitempty" yaml:"-"`
	RejectionNote string     `json:"rejection_note,omitempty" yaml:"-"`
}

// Step returns the step with the given id.
func (q *Quest) Step(id string) (Step, bool) {
	for _, s := range q.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// CompletedSteps counts finished steps.
func (q *Quest) CompletedSteps() int {
	n := 0
	for _, s := range q.Steps {
		if s.Completed {
			n++
		}
	}
	return n
}

func (q *Quest) clone() Quest {
	out := *q
	out.Steps = append([]Step(nil), q.Steps...)
	out.Requirements = append([]string(nil), q.Requirements...)
	if q.StartedAt != nil {
		t := *q.StartedAt
		out.StartedAt = &t
	}
	if q.CompletedAt != nil {
		t := *q.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Progress is round(100 × done / total). A quest without steps is at 0.
func Progress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}

// Event is the payload of every quest hook.
type Event struct {
	Quest    Quest  `json:"quest"`
	Previous Status `json:"previous"`
	StepID   string `json:"step_id,omitempty"`
	ActorID  string `json:"actor_id,omitempty"`
	Note     string `json:"note,omitempty"`
}
