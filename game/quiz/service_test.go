package quiz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/model"
	"github.com/kasuganosora/farmquest/plugin/hook"
	"github.com/kasuganosora/farmquest/scheduler"
	"github.com/kasuganosora/farmquest/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"
)

func testQuizzes() []Quiz {
	return []Quiz{
		{
			ID: "mulching-banana", QuestID: "mulching-banana", Title: "Mulching Banana Fields",
			Questions: []Question{
				{ID: "q1", Question: "Primary benefit?", Options: []string{"a", "b", "c", "d"}, Correct: 1},
				{ID: "q2", Question: "Ideal thickness?", Options: []string{"a", "b", "c", "d"}, Correct: 1},
				{ID: "q3", Question: "Not suitable?", Options: []string{"a", "b", "c", "d"}, Correct: 3},
			},
		},
		{
			ID: "organic-farming-quiz", Title: "Organic Farming Practices", TimeLimit: 10 * time.Minute, Points: 75,
			Questions: []Question{
				{ID: "q1", Options: []string{"a", "b", "c", "d"}, Correct: 1},
				{ID: "q2", Options: []string{"a", "b", "c", "d"}, Correct: 1},
			},
		},
		{
			ID: "flash", Title: "Flash", TimeLimit: 40 * time.Millisecond,
			Questions: []Question{{ID: "q1", Options: []string{"x", "y"}, Correct: 0}},
		},
	}
}

type fixture struct {
	svc    *Service
	quests *quest.Store
	sched  *scheduler.Scheduler
	db     *gorm.DB
	hooks  *hook.HookCenter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bank, err := NewBank(testQuizzes(), BankDefaults{TimeLimit: 300 * time.Second, Points: 100})
	require.NoError(t, err)
	quests, err := quest.NewStore([]quest.Quest{{
		ID: "mulching-banana", Points: 150, Category: quest.CategorySoil,
		Steps: []quest.Step{{ID: "prepare"}, {ID: "apply-mulch"}, {ID: "maintenance"}},
	}}, nil, testutil.NopLogger(), quest.Options{})
	require.NoError(t, err)

	sched := scheduler.New(testutil.NopLogger())
	t.Cleanup(sched.Stop)
	db := testutil.SetupTestDB(t)
	hooks := hook.NewHookCenter()
	svc := NewService(bank, quests, sched, db, hooks, testutil.NopLogger(), Options{PassPercent: 70})
	return &fixture{svc: svc, quests: quests, sched: sched, db: db, hooks: hooks}
}

func answerAll(t *testing.T, s *Service, attemptID, userID string, choices ...int) Attempt {
	t.Helper()
	var a Attempt
	var err error
	for _, c := range choices {
		_, err = s.Answer(attemptID, userID, c)
		require.NoError(t, err)
		a, err = s.Next(context.Background(), attemptID, userID)
		require.NoError(t, err)
	}
	return a
}

func TestGrade(t *testing.T) {
	q := testQuizzes()[0]
	q.Points = 100

	r := Grade(q, []int{1, 1, 3}, 70)
	assert.Equal(t, 3, r.Correct)
	assert.Equal(t, 100, r.Percent)
	assert.True(t, r.Passed)

	r = Grade(q, []int{1, 1, 0}, 70)
	assert.Equal(t, 67, r.Percent)
	assert.False(t, r.Passed)

	// unanswered counts as wrong
	r = Grade(q, []int{1, -1}, 70)
	assert.Equal(t, 1, r.Correct)
	assert.Equal(t, 33, r.Percent)
	require.Len(t, r.Review, 3)
	assert.Equal(t, -1, r.Review[1].Chosen)
	assert.Equal(t, -1, r.Review[2].Chosen)
	assert.False(t, r.Review[2].IsCorrect)

	standalone := testQuizzes()[1]
	r = Grade(standalone, []int{1, 0}, 70)
	assert.Equal(t, 38, r.Score, "round(0.5 × 75)")
	assert.Equal(t, 50, r.Percent)
	assert.Equal(t, 75, r.MaxScore)
}

func TestAttemptFlow(t *testing.T) {
	f := newFixture(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	var finished []Result
	f.hooks.Register(hook.OnQuizFinish, 0, "t", func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		finished = append(finished, data.(Result))
		return data, nil
	})

	a, err := f.svc.Start(ctx, "mulching-banana", "farmer1")
	require.NoError(t, err)
	assert.Equal(t, []int{-1, -1, -1}, a.Answers)
	assert.Equal(t, 300*time.Second, a.Deadline.Sub(a.StartedAt))
	assert.True(t, f.sched.Has("quiz:"+a.ID))

	// overwrite an answer before moving on
	_, err = f.svc.Answer(a.ID, "farmer1", 0)
	require.NoError(t, err)
	a, err = f.svc.Answer(a.ID, "farmer1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Answers[0])

	_, err = f.svc.Answer(a.ID, "farmer1", 4)
	assert.ErrorIs(t, err, ErrAnswerOutOfRange)
	_, err = f.svc.Answer(a.ID, "farmer2", 1)
	assert.ErrorIs(t, err, ErrAttemptNotFound)

	a, err = f.svc.Next(ctx, a.ID, "farmer1")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Index)

	a = answerAll(t, f.svc, a.ID, "farmer1", 1, 3)
	require.True(t, a.Finished())
	require.NotNil(t, a.Result)
	assert.Equal(t, 100, a.Result.Percent)
	assert.True(t, a.Result.Passed)
	assert.False(t, f.sched.Has("quiz:"+a.ID), "countdown removed on early finish")

	_, err = f.svc.Answer(a.ID, "farmer1", 0)
	assert.ErrorIs(t, err, ErrAttemptFinished)
	_, err = f.svc.Next(ctx, a.ID, "farmer1")
	assert.ErrorIs(t, err, ErrAttemptFinished)

	// Finish is idempotent
	r, err := f.svc.Finish(ctx, a.ID, "farmer1")
	require.NoError(t, err)
	assert.Equal(t, a.Result.Percent, r.Percent)
	require.Len(t, finished, 1)

	var rows []model.QuizResult
	require.NoError(t, f.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, a.ID, rows[0].AttemptID)
	assert.True(t, rows[0].Passed)
}

func TestStartUnknownQuiz(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Start(context.Background(), "nope", "farmer1")
	assert.ErrorIs(t, err, ErrQuizNotFound)
	_, err = f.svc.Get("nope", "farmer1")
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestTimeoutFinishesAttempt(t *testing.T) {
	f := newFixture(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	var mu sync.Mutex
	var timedOut []Result
	f.hooks.Register(hook.OnQuizFinish, 0, "t", func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		mu.Lock()
		timedOut = append(timedOut, data.(Result))
		mu.Unlock()
		return data, nil
	})

	a, err := f.svc.Start(ctx, "flash", "farmer1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(timedOut) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got, err := f.svc.Get(a.ID, "farmer1")
	require.NoError(t, err)
	require.True(t, got.Finished())
	assert.True(t, got.Result.TimedOut)
	assert.Equal(t, 0, got.Result.Correct)
	assert.Equal(t, time.Duration(0), got.Remaining(time.Now()))
	assert.False(t, f.sched.Has("quiz:"+a.ID))

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, timedOut[0].TimedOut)
}

func TestStartQuest_RequiresPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartQuest(ctx, "mulching-banana", "farmer1")
	assert.ErrorIs(t, err, ErrNotPassed)

	// a failing attempt does not unlock
	a, _ := f.svc.Start(ctx, "mulching-banana", "farmer1")
	answerAll(t, f.svc, a.ID, "farmer1", 0, 0, 0)
	_, err = f.svc.StartQuest(ctx, "mulching-banana", "farmer1")
	assert.ErrorIs(t, err, ErrNotPassed)

	a, _ = f.svc.Start(ctx, "mulching-banana", "farmer1")
	answerAll(t, f.svc, a.ID, "farmer1", 1, 1, 0)
	a, _ = f.svc.Get(a.ID, "farmer1")
	assert.Equal(t, 67, a.Result.Percent)
	assert.False(t, a.Result.Passed)

	a, _ = f.svc.Start(ctx, "mulching-banana", "farmer1")
	answerAll(t, f.svc, a.ID, "farmer1", 1, 1, 3)
	assert.True(t, f.svc.HasPassed("farmer1", "mulching-banana"))
	assert.False(t, f.svc.HasPassed("farmer2", "mulching-banana"))

	q, err := f.svc.StartQuest(ctx, "mulching-banana", "farmer1")
	require.NoError(t, err)
	assert.Equal(t, quest.StatusActive, q.Status)
	assert.Equal(t, "farmer1", q.FarmerID)
	assert.Equal(t, 33, q.Progress)
	assert.True(t, q.Steps[0].Completed)
	assert.Equal(t, QuizEvidence, q.Steps[0].Evidence)

	_, err = f.svc.StartQuest(ctx, "nope", "farmer1")
	assert.ErrorIs(t, err, quest.ErrNotFound)
}

func TestGC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()
	f.svc.opts.Now = func() time.Time { return now }
	f.svc.opts.AttemptTTL = time.Minute

	done, _ := f.svc.Start(ctx, "organic-farming-quiz", "farmer1")
	_, err := f.svc.Finish(ctx, done.ID, "farmer1")
	require.NoError(t, err)
	open, _ := f.svc.Start(ctx, "organic-farming-quiz", "farmer2")

	assert.Equal(t, 0, f.svc.GC())
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, f.svc.GC())
	_, err = f.svc.Get(done.ID, "farmer1")
	assert.ErrorIs(t, err, ErrAttemptNotFound)
	_, err = f.svc.Get(open.ID, "farmer2")
	assert.NoError(t, err, "unfinished attempt lives until its deadline plus ttl")

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 1, f.svc.GC())
	assert.Equal(t, 0, f.svc.Live())
}

func TestPassPercentBounds(t *testing.T) {
	bank, err := NewBank(testQuizzes(), BankDefaults{TimeLimit: time.Minute, Points: 100})
	require.NoError(t, err)
	sched := scheduler.New(testutil.NopLogger())
	t.Cleanup(sched.Stop)
	ctx := context.Background()

	open := NewService(bank, nil, sched, nil, nil, testutil.NopLogger(), Options{})
	assert.Equal(t, 0, open.PassPercent())
	a, err := open.Start(ctx, "organic-farming-quiz", "farmer1")
	require.NoError(t, err)
	r, err := open.Finish(ctx, a.ID, "farmer1")
	require.NoError(t, err)
	assert.Equal(t, 0, r.Percent)
	assert.True(t, r.Passed, "a zero pass mark passes everyone")

	assert.Equal(t, 100, NewService(bank, nil, sched, nil, nil, testutil.NopLogger(), Options{PassPercent: 250}).PassPercent())
}

func TestAttemptKeepsQuizFromStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Start(ctx, "organic-farming-quiz", "farmer1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Bank().Merge([]Quiz{{
		ID: "organic-farming-quiz",
		Questions: []Question{
			{ID: "q1", Options: []string{"a", "b"}, Correct: 0},
			{ID: "q3", Options: []string{"a", "b", "c", "d"}, Correct: 2},
		},
	}}))

	answerAll(t, f.svc, a.ID, "farmer1", 1, 1)
	r, err := f.svc.Finish(ctx, a.ID, "farmer1")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Total)
	assert.Equal(t, 2, r.Correct)
	assert.True(t, r.Passed)

	fresh, err := f.svc.Start(ctx, "organic-farming-quiz", "farmer2")
	require.NoError(t, err)
	assert.Len(t, fresh.Answers, 3)
}
