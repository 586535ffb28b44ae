package quest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kasuganosora/farmquest/plugin/hook"
	"go.uber.org/zap"
)

var (
	ErrNotFound          = errors.New("quest not found")
	ErrStepNotFound      = errors.New("quest step not found")
	ErrInvalidTransition = errors.New("invalid quest transition")
	ErrNotOwner          = errors.New("quest belongs to another farmer")
)

// Options tunes a Store.
type Options struct {
	// Strict enforces transition preconditions and step ownership.
	Strict bool
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Store holds the quest catalog and every quest's live state. All mutations
// run under the write lock; readers get deep copies.
type Store struct {
	mu     sync.RWMutex
	order  []string
	quests map[string]*Quest

	strict bool
	now    func() time.Time
	hooks  *hook.HookCenter
	logger *zap.Logger
}

// NewStore loads catalog into a new Store. hooks may be nil.
func NewStore(catalog []Quest, hooks *hook.HookCenter, logger *zap.Logger, opts Options) (*Store, error) {
	s := &Store{
		quests: make(map[string]*Quest, len(catalog)),
		strict: opts.Strict,
		now:    opts.Now,
		hooks:  hooks,
		logger: logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	for i := range catalog {
		q := catalog[i].clone()
		if q.ID == "" {
			return nil, fmt.Errorf("quest: catalog entry %d has no id", i)
		}
		if _, dup := s.quests[q.ID]; dup {
			return nil, fmt.Errorf("quest: duplicate id %q", q.ID)
		}
		if q.Status == "" {
			q.Status = StatusAvailable
		}
		q.Progress = Progress(q.CompletedSteps(), len(q.Steps))
		s.quests[q.ID] = &q
		s.order = append(s.order, q.ID)
	}
	return s, nil
}

// Strict reports whether transition checks are enforced.
func (s *Store) Strict() bool { return s.strict }

// mutate runs fn on quest id under the write lock and fires event with the
// resulting snapshot once the lock is released.
func (s *Store) mutate(ctx context.Context, id string, fn func(q *Quest) (events []string, ev Event, err error)) (Quest, error) {
	s.mu.Lock()
	q, ok := s.quests[id]
	if !ok {
		s.mu.Unlock()
		return Quest{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	prev := q.Status
	// work on a copy so a failed fn leaves state untouched
	work := q.clone()
	events, ev, err := fn(&work)
	if err != nil {
		s.mu.Unlock()
		return Quest{}, err
	}
	*q = work
	snap := q.clone()
	s.mu.Unlock()

	ev.Quest = snap
	ev.Previous = prev
	for _, name := range events {
		s.trigger(ctx, name, ev)
	}
	return snap, nil
}

func (s *Store) trigger(ctx context.Context, event string, ev Event) {
	if s.hooks == nil {
		return
	}
	if _, err := s.hooks.Trigger(ctx, event, ev); err != nil {
		s.logger.Warn("quest hook failed",
			zap.String("event", event),
			zap.String("quest_id", ev.Quest.ID),
			zap.Error(err))
	}
}

func (s *Store) transition(q *Quest, allowed ...Status) error {
	if !s.strict {
		return nil
	}
	for _, st := range allowed {
		if q.Status == st {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, q.ID, q.Status)
}

// Start assigns the quest to farmerID and makes it active.
func (s *Store) Start(ctx context.Context, questID, farmerID string) (Quest, error) {
	out, err := s.mutate(ctx, questID, func(q *Quest) ([]string, Event, error) {
		if err := s.transition(q, StatusAvailable); err != nil {
			return nil, Event{}, err
		}
		now := s.now()
		q.Status = StatusActive
		q.FarmerID = farmerID
		q.StartedAt = &now
		return []string{hook.OnQuestStart}, Event{ActorID: farmerID}, nil
	})
	if err == nil {
		s.logger.Info("quest started", zap.String("quest_id", questID), zap.String("farmer_id", farmerID))
	}
	return out, err
}

// UpdateProgress marks stepID complete with optional evidence and
// recomputes progress. A quest reaching 100 waits for approval.
func (s *Store) UpdateProgress(ctx context.Context, questID, stepID, evidence, actorID string) (Quest, error) {
	out, err := s.mutate(ctx, questID, func(q *Quest) ([]string, Event, error) {
		if err := s.transition(q, StatusActive, StatusPendingApproval); err != nil {
			return nil, Event{}, err
		}
		if s.strict && q.FarmerID != actorID {
			return nil, Event{}, fmt.Errorf("%w: %s", ErrNotOwner, q.ID)
		}
		idx := -1
		for i := range q.Steps {
			if q.Steps[i].ID == stepID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, Event{}, fmt.Errorf("%w: %s/%s", ErrStepNotFound, q.ID, stepID)
		}
		q.Steps[idx].Completed = true
		if evidence != "" {
			q.Steps[idx].Evidence = evidence
		}
		q.Progress = Progress(q.CompletedSteps(), len(q.Steps))

		wasPending := q.Status == StatusPendingApproval
		events := []string{hook.OnQuestProgress}
		if q.Progress == 100 {
			q.Status = StatusPendingApproval
			if !wasPending {
				events = append(events, hook.OnQuestSubmit)
			}
		} else {
			q.Status = StatusActive
		}
		return events, Event{StepID: stepID, ActorID: actorID}, nil
	})
	if err == nil && out.Status == StatusPendingApproval {
		s.logger.Info("quest submitted", zap.String("quest_id", questID), zap.String("farmer_id", out.FarmerID))
	}
	return out, err
}

func (s *Store) complete(q *Quest) []string {
	prev := q.Status
	now := s.now()
	q.Status = StatusCompleted
	q.CompletedAt = &now
	q.Progress = 100
	q.RejectionNote = ""
	if prev == StatusCompleted {
		return nil
	}
	return []string{hook.OnQuestComplete}
}

// Complete forces the quest into completed with progress 100.
func (s *Store) Complete(ctx context.Context, questID string) (Quest, error) {
	return s.mutate(ctx, questID, func(q *Quest) ([]string, Event, error) {
		if err := s.transition(q, StatusActive, StatusPendingApproval); err != nil {
			return nil, Event{}, err
		}
		return s.complete(q), Event{}, nil
	})
}

// Approve is the administrator's completion of a submitted quest.
func (s *Store) Approve(ctx context.Context, questID, adminID string) (Quest, error) {
	out, err := s.mutate(ctx, questID, func(q *Quest) ([]string, Event, error) {
		if err := s.transition(q, StatusPendingApproval); err != nil {
			return nil, Event{}, err
		}
		return s.complete(q), Event{ActorID: adminID}, nil
	})
	if err == nil {
		s.logger.Info("quest approved",
			zap.String("quest_id", questID),
			zap.String("farmer_id", out.FarmerID),
			zap.String("admin_id", adminID))
	}
	return out, err
}

// Reject records reason against the quest. The status is left as it is so
// the farmer can amend evidence and be reviewed again.
func (s *Store) Reject(ctx context.Context, questID, adminID, reason string) (Quest, error) {
	out, err := s.mutate(ctx, questID, func(q *Quest) ([]string, Event, error) {
		if err := s.transition(q, StatusPendingApproval); err != nil {
			return nil, Event{}, err
		}
		q.RejectionNote = reason
		return []string{hook.OnQuestReject}, Event{ActorID: adminID, Note: reason}, nil
	})
	if err == nil {
		s.logger.Info("quest rejected",
			zap.String("quest_id", questID),
			zap.String("admin_id", adminID),
			zap.String("reason", reason))
	}
	return out, err
}

// Get returns a snapshot of one quest.
func (s *Store) Get(id string) (Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quests[id]
	if !ok {
		return Quest{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return q.clone(), nil
}

func (s *Store) filter(keep func(q *Quest) bool) []Quest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Quest, 0, len(s.order))
	for _, id := range s.order {
		q := s.quests[id]
		if keep(q) {
			out = append(out, q.clone())
		}
	}
	return out
}

// All returns every quest in catalog order.
func (s *Store) All() []Quest {
	return s.filter(func(*Quest) bool { return true })
}

// Active returns the farmer's quests that are in progress or awaiting
// approval.
func (s *Store) Active(farmerID string) []Quest {
	return s.filter(func(q *Quest) bool {
		return q.FarmerID == farmerID &&
			(q.Status == StatusActive || q.Status == StatusPendingApproval)
	})
}

// Available returns every quest nobody has started. farmerID is accepted for
// symmetry with Active and does not narrow the result.
func (s *Store) Available(farmerID string) []Quest {
	_ = farmerID
	return s.filter(func(q *Quest) bool { return q.Status == StatusAvailable })
}

// Completed returns the farmer's completed quests.
func (s *Store) Completed(farmerID string) []Quest {
	return s.filter(func(q *Quest) bool {
		return q.FarmerID == farmerID && q.Status == StatusCompleted
	})
}

// Pending returns every quest awaiting approval.
func (s *Store) Pending() []Quest {
	return s.filter(func(q *Quest) bool { return q.Status == StatusPendingApproval })
}

// CountByStatus tallies quests per status.
func (s *Store) CountByStatus() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[Status]int{
		StatusAvailable:       0,
		StatusActive:          0,
		StatusPendingApproval: 0,
		StatusCompleted:       0,
	}
	for _, q := range s.quests {
		out[q.Status]++
	}
	return out
}
