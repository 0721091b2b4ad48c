// internal/api/router.go
package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AshgroveGames/ParleyCore/internal/config"
	"github.com/AshgroveGames/ParleyCore/internal/di"
	"github.com/AshgroveGames/ParleyCore/internal/services"
	"github.com/AshgroveGames/ParleyCore/internal/storage"
)

// SetupRouter 配置HTTP路由
// 只从容器获取服务，不创建新实例
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	runService, ok := container.Get("runs").(*services.RunService)
	if !ok {
		return nil, fmt.Errorf("运行服务未正确初始化")
	}
	contentStore, ok := container.Get("content").(*storage.ContentStore)
	if !ok {
		return nil, fmt.Errorf("内容存储未正确初始化")
	}
	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("模型网关未正确初始化")
	}

	stream := NewRunStream()
	container.Register("stream", stream)

	handler := NewHandler(runService, contentStore, llmService, stream)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(corsMiddleware())
	r.Use(RequestIDMiddleware())

	limiter := NewRateLimiter()

	r.GET("/healthz", handler.Health)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/scenarios", handler.ListScenarios)

		runs := apiGroup.Group("/runs")
		{
			runs.POST("", handler.CreateRun)
			runs.GET("", handler.ListRuns)
			runs.GET("/:id", handler.GetRun)
			runs.POST("/:id/input", RateLimitMiddleware(limiter, 30, time.Minute), handler.SubmitInput)
			runs.DELETE("/:id", handler.EndRun)
		}

		apiGroup.GET("/stats", handler.Stats)
		apiGroup.GET("/settings", handler.GetSettings)
		apiGroup.PUT("/settings", handler.UpdateSettings)
	}

	// 运行事件流
	r.GET("/ws/runs/:id", handler.StreamRun)

	return r, nil
}
