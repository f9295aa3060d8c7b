package router

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/image-tasks/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.WarnContext(c.Request.Context(), "Health check failed", slog.String("error", err.Error()))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "image-api-service",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "image-api-service",
		})
	})

	taskHandler := handler.NewTaskHandler(deps)

	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/processing/:file_id - Create a processing task for a file
		v1.POST("/processing/:file_id", taskHandler.CreateTask)

		tasks := v1.Group("/tasks")
		{
			// GET /api/v1/tasks - List all tasks, newest first
			tasks.GET("", taskHandler.ListTasks)

			// GET /api/v1/tasks/:task_id - Get task status
			tasks.GET("/:task_id", taskHandler.GetTask)
		}
	}

	return r
}
