package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks. ctx is cancelled
// when the scheduler stops.
type TaskFn func(ctx context.Context)

// Scheduler manages periodic and delayed tasks.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	delays  map[string]*delayEntry
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type tickerEntry struct {
	interval time.Duration
	stopCh   chan struct{}
}

type delayEntry struct {
	timer *time.Timer
	due   time.Time
}

// TaskInfo describes a registered task.
type TaskInfo struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"` // ticker | delay
	Interval time.Duration `json:"interval,omitempty"`
	Due      *time.Time    `json:"due,omitempty"`
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		delays:  make(map[string]*delayEntry),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) run(name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", name),
				zap.Any("recover", r))
		}
	}()
	fn(s.ctx)
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}

	if old, ok := s.tickers[name]; ok {
		close(old.stopCh)
	}
	entry := &tickerEntry{interval: interval, stopCh: make(chan struct{})}
	s.tickers[name] = entry

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(name, fn)
			case <-entry.stopCh:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after the given delay, replacing any pending delay
// with the same name.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}

	if old, ok := s.delays[name]; ok {
		old.timer.Stop()
	}
	entry := &delayEntry{due: time.Now().Add(delay)}
	entry.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		// a replaced or removed entry must not clobber its successor
		current := s.delays[name] == entry
		if current {
			delete(s.delays, name)
		}
		s.mu.Unlock()
		if current {
			s.run(name, fn)
		}
	})
	s.delays[name] = entry
}

// Remove stops and removes a ticker or delay task by name.
// It reports whether anything was removed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := false
	if entry, ok := s.tickers[name]; ok {
		close(entry.stopCh)
		delete(s.tickers, name)
		removed = true
	}
	if d, ok := s.delays[name]; ok {
		d.timer.Stop()
		delete(s.delays, name)
		removed = true
	}
	return removed
}

// Has reports whether a ticker or pending delay with name exists.
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, t := s.tickers[name]
	_, d := s.delays[name]
	return t || d
}

// Stop stops all tasks and waits for running tickers to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	for name, d := range s.delays {
		d.timer.Stop()
		delete(s.delays, name)
	}
	s.tickers = make(map[string]*tickerEntry)
	s.mu.Unlock()
	s.wg.Wait()
}

// ListTickers returns the sorted names of all registered ticker tasks.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tasks returns every registered ticker and pending delay, sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tickers)+len(s.delays))
	for name, t := range s.tickers {
		out = append(out, TaskInfo{Name: name, Kind: "ticker", Interval: t.interval})
	}
	for name, d := range s.delays {
		due := d.due
		out = append(out, TaskInfo{Name: name, Kind: "delay", Due: &due})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
