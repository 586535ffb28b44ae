package audit

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/farmquest/model"
	"github.com/kasuganosora/farmquest/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLog_EnqueuedAndFlushedOnStop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.NopLogger())

	svc.Log(AuditEntry{
		TraceID:    "trace-123",
		UserID:     "farmer1",
		Username:   "farmer1",
		Role:       "farmer",
		Action:     ActionLogin,
		Request:    map[string]string{"username": "farmer1"},
		Response:   map[string]bool{"ok": true},
		IP:         "127.0.0.1",
		DurationMs: 42,
	})
	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "trace-123", logs[0].TraceID)
	assert.Equal(t, "farmer1", logs[0].UserID)
	assert.Equal(t, ActionLogin, logs[0].Action)
	assert.Equal(t, 42, logs[0].DurationMs)
	assert.JSONEq(t, `{"username":"farmer1"}`, string(logs[0].Request))
}

func TestLog_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewWithOptions(db, testutil.NopLogger(), Options{FlushInterval: time.Hour, BatchSize: 5})
	defer svc.Stop(context.Background())

	for i := 0; i < 5; i++ {
		svc.Log(AuditEntry{Action: ActionPostCreate})
	}

	assert.Eventually(t, func() bool {
		var n int64
		db.Model(&model.AuditLog{}).Count(&n)
		return n == 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLog_TimerFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewWithOptions(db, testutil.NopLogger(), Options{FlushInterval: 20 * time.Millisecond})
	defer svc.Stop(context.Background())

	svc.Log(AuditEntry{Action: ActionQuizFinish})

	assert.Eventually(t, func() bool {
		var n int64
		db.Model(&model.AuditLog{}).Where("action = ?", ActionQuizFinish).Count(&n)
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStop_IdempotentNoLeak(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	svc := New(db, testutil.NopLogger())
	svc.Stop(context.Background())
	svc.Stop(context.Background())
}

func TestLog_AfterStopIsDropped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.NopLogger())
	svc.Stop(context.Background())

	svc.Log(AuditEntry{Action: "late"})

	var n int64
	db.Model(&model.AuditLog{}).Count(&n)
	assert.Zero(t, n)
}

func TestLog_DropsWhenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewWithOptions(db, testutil.NopLogger(), Options{FlushInterval: time.Hour, BatchSize: 5000})

	for i := 0; i < 1100; i++ {
		svc.Log(AuditEntry{Action: "flood"})
	}
	svc.Stop(context.Background())

	var n int64
	db.Model(&model.AuditLog{}).Count(&n)
	assert.LessOrEqual(t, n, int64(1100))
	assert.Positive(t, n)
}

func TestRecent_FiltersNewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.NopLogger())

	svc.Log(AuditEntry{UserID: "admin", Action: ActionQuestApprove, Target: "soil-health"})
	svc.Log(AuditEntry{UserID: "farmer1", Action: ActionLogin})
	svc.Log(AuditEntry{UserID: "admin", Action: ActionQuestReject, Target: "bio-pesticide"})
	svc.Stop(context.Background())

	rows, err := svc.Recent(context.Background(), Filter{UserID: "admin"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ActionQuestReject, rows[0].Action)
	assert.Equal(t, ActionQuestApprove, rows[1].Action)

	rows, err = svc.Recent(context.Background(), Filter{Action: ActionLogin, Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "farmer1", rows[0].UserID)
}
