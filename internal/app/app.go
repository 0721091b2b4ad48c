// internal/app/app.go
package app

import (
	"fmt"

	"github.com/AshgroveGames/ParleyCore/internal/config"
	"github.com/AshgroveGames/ParleyCore/internal/di"
	"github.com/AshgroveGames/ParleyCore/internal/services"
	"github.com/AshgroveGames/ParleyCore/internal/storage"
	"github.com/AshgroveGames/ParleyCore/internal/trace"
	"github.com/AshgroveGames/ParleyCore/internal/utils"
)

// InitServices 按依赖顺序创建全部服务并注册进容器
// 调用前必须完成 config.InitConfig
func InitServices() error {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	container := di.GetContainer()

	// 内容存储
	contentStore, err := storage.NewContentStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化内容存储失败: %w", err)
	}
	container.Register("content", contentStore)

	// 遥测接收器：不可用时退化为丢弃，绝不阻塞启动
	var sink trace.Sink
	sink, err = trace.NewSQLiteSink(cfg.DataDir)
	if err != nil {
		utils.GetLogger().Warn("遥测数据库不可用，事件将被丢弃", map[string]interface{}{
			"error": err.Error(),
		})
		sink = trace.NopSink{}
	}
	container.Register("trace", sink)

	// 模型网关
	llmService, err := services.NewLLMService()
	if err != nil {
		return fmt.Errorf("初始化模型网关失败: %w", err)
	}
	llmService.SetTraceSink(sink)
	container.Register("llm", llmService)

	if ready, state := llmService.GetProviderStatus(); !ready {
		utils.GetLogger().Warn("模型网关未就绪", map[string]interface{}{"state": state})
	}

	// 回合管线
	master := services.NewGameMasterServiceWithLLM(llmService)
	gameService := services.NewGameService(
		services.NewCommandParser(),
		services.NewClassifierService(llmService),
		services.NewExtractorService(llmService),
		services.NewValidatorService(),
		services.NewCharacterService(llmService),
		services.NewNPCParserService(llmService),
		master,
	)
	container.Register("game", gameService)

	// 运行管理
	runService := services.NewRunService(contentStore, gameService, master)
	container.Register("runs", runService)

	return nil
}

// Cleanup 停止后台任务并释放资源
func Cleanup() {
	container := di.GetContainer()

	if runService, ok := container.Get("runs").(*services.RunService); ok {
		runService.Shutdown()
	}
	if sink, ok := container.Get("trace").(trace.Sink); ok {
		if err := sink.Close(); err != nil {
			utils.GetLogger().Warn("关闭遥测接收器失败", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
