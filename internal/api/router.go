package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crewmesh/crewmesh/internal/common/logger"
)

// NewRouter builds the coordinator's HTTP router.
func NewRouter(handler *Handler, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(Recovery(log))
	router.Use(RequestLogger(log))
	router.Use(CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		tasks := api.Group("/tasks")
		{
			tasks.POST("", handler.CreateTask)
			tasks.GET("", handler.ListTasks)
			tasks.GET("/:taskId", handler.GetTask)
			tasks.POST("/:taskId/claim", handler.ClaimTask)
			tasks.POST("/:taskId/start", handler.StartTask)
			tasks.POST("/:taskId/complete", handler.CompleteTask)
			tasks.POST("/:taskId/fail", handler.FailTask)
		}

		locks := api.Group("/locks")
		{
			locks.POST("", handler.ClaimResource)
			locks.GET("", handler.ListLocks)
			locks.DELETE("/:resourceId", handler.ReleaseResource)
		}

		agents := api.Group("/agents")
		{
			agents.POST("", handler.RegisterAgent)
			agents.GET("", handler.ListAgents)
			agents.DELETE("/:agentId", handler.DeregisterAgent)
			agents.GET("/:agentId/inbox", handler.GetInbox)
			agents.GET("/:agentId/outbox", handler.GetOutbox)
			agents.GET("/:agentId/available-tasks", handler.ListAvailableTasks)
		}

		api.POST("/messages", handler.SendMessage)
		api.POST("/broadcasts", handler.BroadcastMessage)
		api.GET("/broadcasts", handler.ListBroadcasts)

		testing := api.Group("/testing")
		{
			testing.POST("/suites", handler.RegisterSuite)
			testing.GET("/suites", handler.ListSuites)
			testing.POST("/suites/:suiteId/schedule", handler.ScheduleExecution)
			testing.GET("/executions", handler.ListExecutions)
			testing.GET("/executions/:executionId", handler.GetExecution)
			testing.GET("/reservations", handler.ListReservations)
		}

		know := api.Group("/knowledge")
		{
			know.POST("/entries", handler.CreateEntry)
			know.GET("/entries/:entryId", handler.GetEntry)
			know.POST("/entries/:entryId/validate", handler.ValidateEntry)
			know.POST("/search", handler.SearchEntries)
			know.POST("/patterns/match", handler.MatchPatterns)
			know.GET("/learning-events", handler.ListLearningEvents)
		}

		issues := api.Group("/issues")
		{
			issues.POST("", handler.ReportIssue)
			issues.GET("", handler.ListIssues)
			issues.GET("/:issueId", handler.GetIssue)
			issues.POST("/:issueId/status", handler.TransitionIssue)
			issues.POST("/:issueId/resolve", handler.ResolveIssue)
		}

		api.GET("/solutions/:solutionId", handler.GetSolution)
	}

	return router
}
