// internal/services/helpers_test.go
package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/AshgroveGames/ParleyCore/internal/llm"
	"github.com/AshgroveGames/ParleyCore/internal/models"
)

var errScriptExhausted = errors.New("脚本响应已用尽")

// scriptedReply 脚本化提供者的单次响应
type scriptedReply struct {
	text string
	err  error
}

// scriptedProvider 按脚本顺序逐次返回响应的假提供者
// 脚本用尽后返回错误，借此覆盖网关失败分支
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []llm.CompletionRequest
}

func (p *scriptedProvider) Initialize(config map[string]string) error { return nil }

func (p *scriptedProvider) GetName() string { return "scripted" }

func (p *scriptedProvider) GetSupportedModels() []string { return []string{"scripted-1"} }

func (p *scriptedProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if len(p.replies) == 0 {
		return nil, errScriptExhausted
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	if reply.err != nil {
		return nil, reply.err
	}
	return &llm.CompletionResponse{Text: reply.text, ModelName: "scripted-1"}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// newTestLLMService 把脚本化提供者直接挂到网关上
func newTestLLMService(p llm.Provider) *LLMService {
	svc := createBaseLLMService()
	svc.provider = p
	svc.providerName = "scripted"
	svc.activeDefaultModel = "scripted-1"
	svc.isReady = true
	svc.readyState = "Ready"
	return svc
}

// setupTestEnv 把数据和日志目录指到临时目录，避免测试污染工作区
func setupTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("LOG_DIR", t.TempDir())
}

// newTestGameService 用脚本化网关组装完整回合管线
func newTestGameService(llmService *LLMService) *GameService {
	return NewGameService(
		NewCommandParser(),
		NewClassifierService(llmService),
		NewExtractorService(llmService),
		NewValidatorService(),
		NewCharacterService(llmService),
		NewNPCParserService(llmService),
		NewGameMasterServiceWithLLM(llmService),
	)
}

// buildMarketState 命令与校验测试共用的小型场景
func buildMarketState() *models.GameState {
	scenario := &models.Scenario{
		ID:           "market",
		Name:         "Salt Market",
		LocationID:   "market",
		PlayerID:     "player",
		CharacterIDs: []string{"brinn"},
	}
	state := models.NewGameState(scenario)
	state.Locations["market"] = &models.Location{ID: "market", Name: "Salt Market", Description: "Stalls in the wind."}
	state.Characters["player"] = &models.Character{
		ID:       "player",
		Name:     "Courier",
		IsPlayer: true,
		Items:    []models.Item{{ID: "silver_flask", Name: "silver flask"}, {ID: "sealed_letters", Name: "sealed letters"}},
	}
	state.Characters["brinn"] = &models.Character{
		ID:          "brinn",
		Name:        "Brinn",
		Personality: "Blunt, fair.",
		Goal:        "Close one good trade.",
		Disposition: -10,
		Items:       []models.Item{{ID: "storm_glass", Name: "storm-glass"}},
	}
	state.Items["silver_flask"] = models.Item{ID: "silver_flask", Name: "silver flask"}
	state.Items["sealed_letters"] = models.Item{ID: "sealed_letters", Name: "sealed letters"}
	state.Items["storm_glass"] = models.Item{ID: "storm_glass", Name: "storm-glass"}
	return state
}

// buildChamberState 赠予换赠予的端到端场景：
// 玩家持有密码本，档案员持有回音室钥匙并以获得密码本为目标
func buildChamberState() *models.GameState {
	scenario := &models.Scenario{
		ID:           "echo_chamber",
		Name:         "The Echo Chamber",
		LocationID:   "chamber",
		PlayerID:     "player",
		CharacterIDs: []string{"archivist"},
		VictoryConditions: []models.VictoryCondition{{
			ID:          "vc_obtain_key",
			Type:        models.VictoryCharacterHasItem,
			CharacterID: "player",
			ItemID:      "echo_chamber_key",
			Description: "You hold the key to the echo chamber.",
		}},
	}
	state := models.NewGameState(scenario)
	state.Locations["chamber"] = &models.Location{ID: "chamber", Name: "Echo Chamber Antechamber"}
	state.Characters["player"] = &models.Character{
		ID:       "player",
		Name:     "Traveler",
		IsPlayer: true,
		Items:    []models.Item{{ID: "translation_cypher", Name: "translation cypher"}},
	}
	state.Characters["archivist"] = &models.Character{
		ID:          "archivist",
		Name:        "Maren",
		Personality: "Precise, wary, curious.",
		Goal:        "Obtain a translation cypher for the chamber inscriptions.",
		Items:       []models.Item{{ID: "echo_chamber_key", Name: "echo chamber key"}},
	}
	state.Items["translation_cypher"] = models.Item{ID: "translation_cypher", Name: "translation cypher"}
	state.Items["echo_chamber_key"] = models.Item{ID: "echo_chamber_key", Name: "echo chamber key"}
	return state
}
