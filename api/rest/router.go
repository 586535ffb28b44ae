package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/cache"
	"github.com/kasuganosora/farmquest/config"
	"github.com/kasuganosora/farmquest/game/player"
	mw "github.com/kasuganosora/farmquest/middleware"
)

// Handlers groups every REST handler mounted under /api.
type Handlers struct {
	Auth      *AuthHandler
	Dashboard *DashboardHandler
	Quest     *QuestHandler
	Quiz      *QuizHandler
	Community *CommunityHandler
	Ranking   *RankingHandler
	Admin     *AdminHandler
	Ops       *OpsHandler
}

// Mount registers the REST routes on api. main.go and the integration
// harness share it so their routing cannot drift apart.
func (h *Handlers) Mount(api *gin.RouterGroup, sec config.SecurityConfig, srv config.ServerConfig, c cache.Cache) {
	auth := mw.Auth(sec, c)

	authG := api.Group("/auth")
	authG.POST("/login", h.Auth.Login)
	authG.POST("/logout", auth, h.Auth.Logout)
	authG.POST("/refresh", auth, h.Auth.Refresh)
	authG.GET("/me", auth, h.Auth.Me)

	api.GET("/dashboard", auth, h.Dashboard.Get)

	questsG := api.Group("/quests", auth)
	questsG.GET("", h.Quest.List)
	questsG.GET("/available", h.Quest.Available)
	questsG.GET("/active", h.Quest.Active)
	questsG.GET("/completed", h.Quest.Completed)
	questsG.GET("/:id", h.Quest.Detail)
	questsG.GET("/:id/quiz", h.Quest.Quiz)
	questsG.POST("/:id/start", h.Quest.Start)
	questsG.POST("/:id/steps/:step/complete", h.Quest.CompleteStep)

	quizG := api.Group("/quizzes", auth)
	quizG.GET("", h.Quiz.List)
	quizG.GET("/:id", h.Quiz.Detail)
	quizG.POST("/:id/attempts", h.Quiz.Start)

	attemptG := api.Group("/attempts", auth)
	attemptG.GET("/:id", h.Quiz.Attempt)
	attemptG.POST("/:id/answer", h.Quiz.Answer)
	attemptG.POST("/:id/next", h.Quiz.Next)
	attemptG.POST("/:id/finish", h.Quiz.Finish)

	communityG := api.Group("/community", auth)
	communityG.GET("/posts", h.Community.List)
	communityG.POST("/posts", h.Community.Create)
	communityG.GET("/posts/:id", h.Community.Detail)
	communityG.POST("/posts/:id/like", h.Community.Like)

	rankG := api.Group("/ranking", auth)
	rankG.GET("/farmers", h.Ranking.Farmers)
	rankG.GET("/panchayats", h.Ranking.Panchayats)
	rankG.GET("/me", h.Ranking.Me)

	adminG := api.Group("/admin", auth, mw.RequireRole(string(player.RoleAdmin)))
	adminG.GET("/approvals", h.Admin.Approvals)
	adminG.POST("/quests/:id/approve", h.Admin.Approve)
	adminG.POST("/quests/:id/reject", h.Admin.Reject)
	adminG.POST("/quests/:id/complete", h.Admin.Complete)
	adminG.GET("/stats", h.Admin.Stats)
	adminG.GET("/posts", h.Admin.Posts)
	adminG.GET("/audit", h.Admin.Audit)
	adminG.GET("/farmers/:id/rewards", h.Admin.Rewards)
	adminG.GET("/export/leaderboard.xlsx", h.Admin.ExportLeaderboard)

	opsG := api.Group("/ops", mw.IPWhitelist(srv.OpsWhitelist), OpsAuth(srv.AdminKey))
	opsG.GET("/metrics", h.Ops.Metrics)
	opsG.GET("/scheduler", h.Ops.ListSchedulerTasks)
	opsG.POST("/announce", h.Ops.Announce)
	opsG.POST("/ranking/refresh", h.Ops.RefreshRanking)
}
