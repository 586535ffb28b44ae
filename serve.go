package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/api/rest"
	"github.com/kasuganosora/farmquest/api/sse"
	"github.com/kasuganosora/farmquest/api/ws"
	"github.com/kasuganosora/farmquest/audit"
	"github.com/kasuganosora/farmquest/cache"
	"github.com/kasuganosora/farmquest/config"
	dbadapter "github.com/kasuganosora/farmquest/db"
	"github.com/kasuganosora/farmquest/game/community"
	"github.com/kasuganosora/farmquest/game/player"
	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/game/quiz"
	"github.com/kasuganosora/farmquest/game/ranking"
	"github.com/kasuganosora/farmquest/game/reward"
	mw "github.com/kasuganosora/farmquest/middleware"
	"github.com/kasuganosora/farmquest/model"
	"github.com/kasuganosora/farmquest/plugin/hook"
	"github.com/kasuganosora/farmquest/resource"
	"github.com/kasuganosora/farmquest/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the SSE feed and the quiz WebSocket",
	RunE:  runServe,
}

// app holds the long-lived services shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db     *gorm.DB
	cache  cache.Cache
	pubsub cache.PubSub
	sched  *scheduler.Scheduler
	hooks  *hook.HookCenter
	audit  *audit.Service

	roster   *player.Roster
	sessions *player.SessionStore
	quests   *quest.Store
	quizzes  *quiz.Service
	feed     *community.Feed
	ranks    *ranking.Service
	rewards  *reward.Service
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, hooks: hook.NewHookCenter()}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	a.db = db
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	if a.cache, err = cache.NewCache(cfg.Cache); err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	if a.pubsub, err = cache.NewPubSub(cfg.Cache); err != nil {
		return nil, fmt.Errorf("pubsub: %w", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Seed data ----
	data, err := resource.NewLoader(cfg.Data.Dir, cfg.Data.QuizXLSX).Load()
	if err != nil {
		return nil, fmt.Errorf("resources: %w", err)
	}

	// ---- Game services ----
	if a.roster, err = player.NewRoster(data.Accounts, cfg.Security.BcryptCost); err != nil {
		return nil, err
	}
	if a.quests, err = quest.NewStore(data.Quests, a.hooks, logger, quest.Options{Strict: cfg.Game.StrictTransitions}); err != nil {
		return nil, err
	}
	bank, err := quiz.NewBank(data.Quizzes, quiz.BankDefaults{TimeLimit: cfg.Game.QuestQuizTimeLimit})
	if err != nil {
		return nil, err
	}
	if len(data.Imported) > 0 {
		if err := bank.Merge(data.Imported); err != nil {
			return nil, fmt.Errorf("quiz workbook: %w", err)
		}
		logger.Info("quiz workbook merged", zap.String("path", cfg.Data.QuizXLSX), zap.Int("quizzes", len(data.Imported)))
	}
	a.feed = community.NewFeed(data.Posts, a.hooks, logger)
	a.sched = scheduler.New(logger)
	a.quizzes = quiz.NewService(bank, a.quests, a.sched, db, a.hooks, logger, quiz.Options{
		PassPercent: cfg.Game.QuizPassPercent,
		AttemptTTL:  cfg.Game.AttemptTTL,
	})
	a.ranks = ranking.NewService(a.roster, a.quests, a.cache, logger)
	a.rewards = reward.NewService(a.roster, db, a.cache, a.ranks, a.hooks, logger, reward.Options{
		PointsPerLevel: cfg.Game.PointsPerLevel,
		MaxLevel:       cfg.Game.MaxLevel,
	})
	a.rewards.Register()
	a.sessions = player.NewSessionStore(a.roster, a.cache, cfg.Security, a.hooks, logger)
	a.audit = audit.New(db, logger)

	if err := a.ranks.Refresh(ctx); err != nil {
		logger.Warn("initial ranking refresh failed", zap.Error(err))
	}
	logger.Info("game data loaded",
		zap.Int("quests", len(data.Quests)),
		zap.Int("quizzes", len(bank.List())),
		zap.Int("accounts", len(data.Accounts)),
		zap.Int("posts", a.feed.Count()))
	return a, nil
}

func (a *app) Close() {
	a.sched.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.audit.Stop(ctx)
	if closer, ok := a.cache.(interface{ Close() }); ok {
		closer.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; ops endpoints are disabled")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// ---- Live channels ----
	sseH := sse.NewHandler(a.pubsub, a.cache, cfg.Security, logger)
	sseH.RegisterHooks(a.hooks)

	hub := ws.NewHub(a.quizzes, logger)
	hub.RegisterHooks(a.hooks)
	wsRouter := ws.NewRouter(logger)
	ws.NewQuizHandlers(a.quizzes, hub, logger).Register(wsRouter)
	wsH := ws.NewHandler(a.cache, cfg.Security, hub, wsRouter, logger)

	// ---- Periodic Scheduler Tasks ----
	if cfg.Game.RankingRefresh > 0 {
		a.sched.AddTicker("ranking:refresh", cfg.Game.RankingRefresh, func(ctx context.Context) {
			if err := a.ranks.Refresh(ctx); err != nil {
				logger.Warn("ranking refresh failed", zap.Error(err))
			}
		})
	}
	a.sched.AddTicker("quiz:gc", time.Minute, func(context.Context) {
		if n := a.quizzes.GC(); n > 0 {
			logger.Debug("quiz attempts collected", zap.Int("removed", n))
		}
	})
	a.sched.AddTicker("quiz:tick", time.Second, hub.Tick)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger), mw.CORS(cfg.Security.AllowedOrigins))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers := &rest.Handlers{
		Auth:      rest.NewAuthHandler(a.sessions, a.roster, a.audit),
		Dashboard: rest.NewDashboardHandler(a.roster, a.quests, a.feed, a.ranks),
		Quest:     rest.NewQuestHandler(a.quests, a.quizzes, a.audit),
		Quiz:      rest.NewQuizHandler(a.quizzes, a.audit),
		Community: rest.NewCommunityHandler(a.feed, a.roster, a.quests, cfg.Game.FeedPageSize, a.audit),
		Ranking:   rest.NewRankingHandler(a.ranks, logger),
		Admin:     rest.NewAdminHandler(a.quests, a.roster, a.feed, a.ranks, a.rewards, a.audit, logger),
		Ops: rest.NewOpsHandler(a.quests, a.feed, a.quizzes, a.ranks, a.sched, sseH,
			map[string]rest.Gauge{"ws_sessions": hub}, a.audit, logger),
	}
	handlers.Mount(r.Group("/api"), cfg.Security, cfg.Server, a.cache)

	r.GET("/ws", wsH.ServeWS)
	r.GET("/sse", sseH.ServeSSE)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}
