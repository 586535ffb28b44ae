package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/farmquest/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Action names written to the audit log.
const (
	ActionLogin        = "login"
	ActionLogout       = "logout"
	ActionQuestStart   = "quest_start"
	ActionStepComplete = "step_complete"
	ActionQuestApprove = "quest_approve"
	ActionQuestReject  = "quest_reject"
	ActionPostCreate   = "post_create"
	ActionQuizFinish   = "quiz_finish"
	ActionAnnounce     = "announce"
)

// AuditEntry holds one audit event to be logged.
type AuditEntry struct {
	TraceID    string
	UserID     string
	Username   string
	Role       string
	Action     string
	Target     string
	Request    interface{}
	Response   interface{}
	Error      string
	IP         string
	DurationMs int
}

// Options tunes batching. Zero values pick the defaults (2s, 100 rows).
type Options struct {
	FlushInterval time.Duration
	BatchSize     int
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db        *gorm.DB
	ch        chan *model.AuditLog
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

// New creates a new audit Service with default batching and starts its worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	return NewWithOptions(db, logger, Options{})
}

// NewWithOptions creates a Service with explicit batching settings.
func NewWithOptions(db *gorm.DB, logger *zap.Logger, opts Options) *Service {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	svc := &Service{
		db:        db,
		ch:        make(chan *model.AuditLog, 1024),
		stopCh:    make(chan struct{}),
		logger:    logger,
		interval:  opts.FlushInterval,
		batchSize: opts.BatchSize,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

func marshal(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// Log enqueues an audit entry for async DB write. Entries logged after Stop
// or while the queue is full are dropped with a warning.
func (svc *Service) Log(entry AuditEntry) {
	record := &model.AuditLog{
		TraceID:    entry.TraceID,
		UserID:     entry.UserID,
		Username:   entry.Username,
		Role:       entry.Role,
		Action:     entry.Action,
		Target:     entry.Target,
		Request:    marshal(entry.Request),
		Response:   marshal(entry.Response),
		Error:      entry.Error,
		IP:         entry.IP,
		DurationMs: entry.DurationMs,
	}
	select {
	case <-svc.stopCh:
		svc.logger.Warn("audit service stopped, dropping entry", zap.String("action", entry.Action))
		return
	default:
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker has finished or ctx is done.
func (svc *Service) Stop(ctx context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		svc.logger.Warn("audit stop timed out", zap.Error(ctx.Err()))
	}
}

// Filter narrows Recent. Empty fields match everything.
type Filter struct {
	UserID string
	Action string
	Limit  int
}

// Recent returns persisted audit rows, newest first.
func (svc *Service) Recent(ctx context.Context, f Filter) ([]model.AuditLog, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	q := svc.db.WithContext(ctx).Order("id DESC").Limit(f.Limit)
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	var rows []model.AuditLog
	err := q.Find(&rows).Error
	return rows, err
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.interval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, svc.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Error(err), zap.Int("rows", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= svc.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
