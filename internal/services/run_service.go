// internal/services/run_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/AshgroveGames/ParleyCore/internal/errors"
	"github.com/AshgroveGames/ParleyCore/internal/models"
	"github.com/AshgroveGames/ParleyCore/internal/storage"
	"github.com/AshgroveGames/ParleyCore/internal/utils"
)

// GameRun 一次进行中的剧本运行
// mutex 保证同一运行同一时刻只有一个写者在推进回合
type GameRun struct {
	ID         string
	ScenarioID string
	State      *models.GameState
	CreatedAt  time.Time
	LastActive time.Time
	Ended      bool
	EndReason  string

	mutex sync.Mutex
}

// RunService 管理剧本运行的生命周期：创建、查找、回合推进、结束和过期清理
type RunService struct {
	Content *storage.ContentStore
	Game    *GameService
	Master  *GameMasterService

	runs          map[string]*GameRun
	globalLock    sync.RWMutex
	runTTL        time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

// NewRunService 创建运行管理器并启动过期清理
func NewRunService(content *storage.ContentStore, game *GameService, master *GameMasterService) *RunService {
	rs := &RunService{
		Content:     content,
		Game:        game,
		Master:      master,
		runs:        make(map[string]*GameRun),
		runTTL:      2 * time.Hour,
		stopCleanup: make(chan struct{}),
	}
	rs.startCleanup()
	return rs
}

// CreateRun 加载剧本内容并开始一次新运行，返回运行和开场旁白
func (rs *RunService) CreateRun(scenarioID string) (*GameRun, string, error) {
	state, err := rs.Content.BuildGameState(scenarioID)
	if err != nil {
		return nil, "", err
	}

	run := &GameRun{
		ID:         uuid.NewString(),
		ScenarioID: scenarioID,
		State:      state,
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}

	rs.globalLock.Lock()
	rs.runs[run.ID] = run
	rs.globalLock.Unlock()

	utils.GetLogger().Info("创建剧本运行", map[string]interface{}{
		"run_id":   run.ID,
		"scenario": scenarioID,
	})

	return run, rs.Master.Intro(state), nil
}

// GetRun 按ID查找运行
func (rs *RunService) GetRun(runID string) (*GameRun, error) {
	rs.globalLock.RLock()
	defer rs.globalLock.RUnlock()

	run, ok := rs.runs[runID]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("运行不存在: %s", runID), nil)
	}
	return run, nil
}

// ListRuns 返回所有活跃运行的ID
func (rs *RunService) ListRuns() []string {
	rs.globalLock.RLock()
	defer rs.globalLock.RUnlock()

	ids := make([]string, 0, len(rs.runs))
	for id := range rs.runs {
		ids = append(ids, id)
	}
	return ids
}

// SubmitInput 在运行的独占写锁下推进一个回合
// 胜利达成后运行进入终态，后续输入被拒绝
func (rs *RunService) SubmitInput(ctx context.Context, runID, playerText string) (*models.TurnResult, error) {
	run, err := rs.GetRun(runID)
	if err != nil {
		return nil, err
	}

	run.mutex.Lock()
	defer run.mutex.Unlock()

	if run.Ended {
		return nil, apperrors.NewValidationError("该运行已结束", nil)
	}

	result, err := rs.Game.ProcessTurn(ctx, run.State, playerText)
	if err != nil {
		return nil, err
	}

	run.LastActive = time.Now()
	if result.Victory != nil {
		run.Ended = true
		run.EndReason = "victory"
	}
	return result, nil
}

// Snapshot 在写锁下取运行状态的只读切片
func (rs *RunService) Snapshot(runID string) (models.StateSnapshot, error) {
	run, err := rs.GetRun(runID)
	if err != nil {
		return models.StateSnapshot{}, err
	}

	run.mutex.Lock()
	defer run.mutex.Unlock()
	return run.State.Snapshot(), nil
}

// EndRun 玩家主动退出，返回结语旁白
func (rs *RunService) EndRun(runID string) (string, error) {
	run, err := rs.GetRun(runID)
	if err != nil {
		return "", err
	}

	run.mutex.Lock()
	defer run.mutex.Unlock()

	if !run.Ended {
		run.Ended = true
		run.EndReason = "quit"
	}
	return rs.Master.Epilogue(run.State), nil
}

// RemoveRun 从注册表移除运行
func (rs *RunService) RemoveRun(runID string) {
	rs.globalLock.Lock()
	delete(rs.runs, runID)
	rs.globalLock.Unlock()
}

// Shutdown 停止后台清理
func (rs *RunService) Shutdown() {
	if rs.cleanupTicker != nil {
		rs.cleanupTicker.Stop()
	}
	close(rs.stopCleanup)
}

func (rs *RunService) startCleanup() {
	rs.cleanupTicker = time.NewTicker(10 * time.Minute)
	go func() {
		for {
			select {
			case <-rs.cleanupTicker.C:
				rs.cleanupStaleRuns()
			case <-rs.stopCleanup:
				return
			}
		}
	}()
}

// cleanupStaleRuns 清理长时间无活动的运行
func (rs *RunService) cleanupStaleRuns() {
	rs.globalLock.Lock()
	defer rs.globalLock.Unlock()

	now := time.Now()
	for id, run := range rs.runs {
		if now.Sub(run.LastActive) > rs.runTTL {
			utils.GetLogger().Info("清理过期运行", map[string]interface{}{
				"run_id":   id,
				"scenario": run.ScenarioID,
			})
			delete(rs.runs, id)
		}
	}
}
