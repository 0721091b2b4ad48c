// internal/api/handlers.go
package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AshgroveGames/ParleyCore/internal/config"
	"github.com/AshgroveGames/ParleyCore/internal/llm"
	"github.com/AshgroveGames/ParleyCore/internal/services"
	"github.com/AshgroveGames/ParleyCore/internal/storage"
	"github.com/AshgroveGames/ParleyCore/internal/utils"
)

// Handler 聚合HTTP端点需要的服务
type Handler struct {
	Runs    *services.RunService
	Content *storage.ContentStore
	LLM     *services.LLMService
	Stream  *RunStream

	resp *ResponseHelper
}

// NewHandler 创建API处理器
func NewHandler(runs *services.RunService, content *storage.ContentStore, llmService *services.LLMService, stream *RunStream) *Handler {
	return &Handler{
		Runs:    runs,
		Content: content,
		LLM:     llmService,
		Stream:  stream,
		resp:    NewResponseHelper(),
	}
}

// Health 健康检查：进程活着、网关状态如何
func (h *Handler) Health(c *gin.Context) {
	ready, state := h.LLM.GetProviderStatus()
	h.resp.Success(c, gin.H{
		"status":        "ok",
		"gateway_ready": ready,
		"gateway_state": state,
	})
}

// ListScenarios 列出可用剧本
func (h *Handler) ListScenarios(c *gin.Context) {
	ids, err := h.Content.ListScenarios()
	if err != nil {
		h.resp.Error(c, err)
		return
	}

	type scenarioInfo struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	infos := make([]scenarioInfo, 0, len(ids))
	for _, id := range ids {
		scenario, err := h.Content.LoadScenario(id)
		if err != nil {
			utils.GetLogger().Warn("剧本加载失败，跳过", map[string]interface{}{
				"scenario": id,
				"error":    err.Error(),
			})
			continue
		}
		infos = append(infos, scenarioInfo{ID: scenario.ID, Name: scenario.Name, Description: scenario.Description})
	}
	h.resp.Success(c, infos)
}

type createRunRequest struct {
	ScenarioID string `json:"scenario_id" binding:"required"`
}

// CreateRun 开始一次新的剧本运行
func (h *Handler) CreateRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "scenario_id is required")
		return
	}

	run, intro, err := h.Runs.CreateRun(req.ScenarioID)
	if err != nil {
		h.resp.Error(c, err)
		return
	}

	h.resp.Created(c, gin.H{
		"run_id": run.ID,
		"intro":  intro,
	})
}

// ListRuns 列出活跃运行
func (h *Handler) ListRuns(c *gin.Context) {
	h.resp.Success(c, gin.H{"runs": h.Runs.ListRuns()})
}

// GetRun 返回运行状态的只读切片
func (h *Handler) GetRun(c *gin.Context) {
	snapshot, err := h.Runs.Snapshot(c.Param("id"))
	if err != nil {
		h.resp.Error(c, err)
		return
	}
	h.resp.Success(c, snapshot)
}

type submitInputRequest struct {
	Text string `json:"text" binding:"required"`
}

// SubmitInput 提交玩家输入并推进一个回合
func (h *Handler) SubmitInput(c *gin.Context) {
	runID := c.Param("id")

	var req submitInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "text is required")
		return
	}

	result, err := h.Runs.SubmitInput(c.Request.Context(), runID, req.Text)
	if err != nil {
		h.resp.Error(c, err)
		return
	}

	h.Stream.Broadcast(runID, result)
	if result.Victory != nil {
		h.Stream.CloseRun(runID)
	}

	h.resp.Success(c, result)
}

// EndRun 玩家退出运行，返回结语
func (h *Handler) EndRun(c *gin.Context) {
	runID := c.Param("id")

	epilogue, err := h.Runs.EndRun(runID)
	if err != nil {
		h.resp.Error(c, err)
		return
	}

	h.Stream.CloseRun(runID)
	h.Runs.RemoveRun(runID)

	h.resp.Success(c, gin.H{"epilogue": epilogue})
}

// StreamRun 订阅运行的事件流
func (h *Handler) StreamRun(c *gin.Context) {
	runID := c.Param("id")
	if _, err := h.Runs.GetRun(runID); err != nil {
		h.resp.Error(c, err)
		return
	}
	h.Stream.Subscribe(c, runID)
}

// Stats 返回进程内计数器快照
func (h *Handler) Stats(c *gin.Context) {
	h.resp.Success(c, utils.GetMetricsCollector().GetMetrics())
}

// GetSettings 返回当前LLM配置，密钥打码
func (h *Handler) GetSettings(c *gin.Context) {
	cfg := config.GetCurrentConfig()

	masked := make(map[string]string, len(cfg.LLMConfig))
	for k, v := range cfg.LLMConfig {
		if strings.Contains(strings.ToLower(k), "key") && len(v) > 4 {
			masked[k] = "****" + v[len(v)-4:]
		} else {
			masked[k] = v
		}
	}

	h.resp.Success(c, gin.H{
		"provider":             cfg.LLMProvider,
		"llm_config":           masked,
		"available_providers":  llm.ListProviders(),
		"confidence_threshold": cfg.IntentConfidenceThreshold,
		"history_window":       cfg.HistoryWindow,
	})
}

type updateSettingsRequest struct {
	Provider  string            `json:"provider" binding:"required"`
	LLMConfig map[string]string `json:"llm_config" binding:"required"`
}

// UpdateSettings 切换LLM提供商配置
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "provider and llm_config are required")
		return
	}

	if err := h.LLM.UpdateProvider(req.Provider, req.LLMConfig); err != nil {
		h.resp.Error(c, err)
		return
	}
	if err := config.UpdateLLMConfig(req.Provider, req.LLMConfig); err != nil {
		h.resp.Error(c, err)
		return
	}

	h.resp.Success(c, gin.H{"provider": req.Provider}, "provider updated")
}
