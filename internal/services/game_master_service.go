// internal/services/game_master_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/AshgroveGames/ParleyCore/internal/models"
	"github.com/AshgroveGames/ParleyCore/internal/utils"
)

// GameMasterService 承担不属于任何单个角色的叙事职责：
// 开场白、退场结语和胜利判定
// 胜利判定是纯确定性的状态谓词求值；胜利叙事可由模型润色，
// 生成失败时退回确定性模板，绝不阻塞胜利上报
type GameMasterService struct {
	LLMService *LLMService // 可为nil，此时叙事全部走模板
}

// NewGameMasterService 创建主持人服务
func NewGameMasterService() *GameMasterService {
	return &GameMasterService{}
}

// NewGameMasterServiceWithLLM 创建带叙事润色的主持人服务
func NewGameMasterServiceWithLLM(llmService *LLMService) *GameMasterService {
	return &GameMasterService{LLMService: llmService}
}

// EvaluateVictory 按声明顺序求值胜利条件，第一个满足的条件胜出
// 未满足时返回 nil
func (s *GameMasterService) EvaluateVictory(ctx context.Context, state *models.GameState) *models.VictoryResult {
	for _, cond := range state.Scenario.VictoryConditions {
		if !s.conditionMet(state, cond) {
			continue
		}
		return &models.VictoryResult{
			Achieved:    true,
			ConditionID: cond.ID,
			Narrative:   s.victoryNarrative(ctx, state, cond),
		}
	}
	return nil
}

func (s *GameMasterService) conditionMet(state *models.GameState, cond models.VictoryCondition) bool {
	character, ok := state.Character(cond.CharacterID)
	if !ok {
		return false
	}
	switch cond.Type {
	case models.VictoryCharacterHasItem:
		return character.HasItem(cond.ItemID)
	case models.VictoryDispositionAtLeast:
		return character.Disposition >= cond.Threshold
	default:
		return false
	}
}

// victoryNarrative 胜利结语：先尝试模型润色，失败退回模板
func (s *GameMasterService) victoryNarrative(ctx context.Context, state *models.GameState, cond models.VictoryCondition) string {
	fallback := s.templateNarrative(state, cond)

	if s.LLMService == nil {
		return fallback
	}

	prompt := fmt.Sprintf(`The interactive scene "%s" has just ended in the player's favor.
Winning condition: %s
Closing facts: %s

Write a closing narration of two or three sentences. Past tense, second person, no headings.`,
		state.Scenario.Name, s.conditionSummary(state, cond), fallback)

	text, err := s.LLMService.CreateTextCompletion(ctx, "game_master", "victory_epilogue", prompt,
		"You narrate endings for short interactive fiction scenes.")
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			utils.GetLogger().Warn("胜利叙事生成失败，使用模板", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return fallback
	}
	return text
}

func (s *GameMasterService) conditionSummary(state *models.GameState, cond models.VictoryCondition) string {
	if cond.Description != "" {
		return cond.Description
	}
	character, _ := state.Character(cond.CharacterID)
	switch cond.Type {
	case models.VictoryCharacterHasItem:
		itemName := cond.ItemID
		if item, ok := state.Items[cond.ItemID]; ok {
			itemName = item.Name
		}
		return fmt.Sprintf("%s holds the %s", character.Name, itemName)
	case models.VictoryDispositionAtLeast:
		return fmt.Sprintf("%s's disposition reached %d", character.Name, cond.Threshold)
	default:
		return string(cond.Type)
	}
}

// templateNarrative 确定性结语模板
func (s *GameMasterService) templateNarrative(state *models.GameState, cond models.VictoryCondition) string {
	if cond.Description != "" {
		return cond.Description
	}
	character, _ := state.Character(cond.CharacterID)
	switch cond.Type {
	case models.VictoryCharacterHasItem:
		itemName := cond.ItemID
		if item, ok := state.Items[cond.ItemID]; ok {
			itemName = item.Name
		}
		return fmt.Sprintf("%s now holds the %s. The scene draws to a close.", character.Name, itemName)
	case models.VictoryDispositionAtLeast:
		return fmt.Sprintf("%s regards you warmly now. The scene draws to a close.", character.Name)
	default:
		return "The scene draws to a close."
	}
}

// Intro 开场旁白：地点、在场角色和玩家持有物
func (s *GameMasterService) Intro(state *models.GameState) string {
	var sb strings.Builder

	sb.WriteString(state.Scenario.Name)
	if state.Scenario.Description != "" {
		sb.WriteString("\n\n")
		sb.WriteString(state.Scenario.Description)
	}

	if loc, ok := state.Locations[state.Scenario.LocationID]; ok {
		sb.WriteString("\n\n")
		sb.WriteString(loc.Description)
	}

	var npcs []string
	for _, id := range state.Scenario.CharacterIDs {
		if c, ok := state.Character(id); ok {
			npcs = append(npcs, c.Name)
		}
	}
	if len(npcs) > 0 {
		sb.WriteString(fmt.Sprintf("\n\nPresent: %s.", strings.Join(npcs, ", ")))
	}

	if player := state.Player(); player != nil {
		if len(player.Items) > 0 {
			sb.WriteString(fmt.Sprintf("\nYou carry: %s.", strings.Join(player.ItemNames(), ", ")))
		} else {
			sb.WriteString("\nYou carry nothing.")
		}
	}

	return sb.String()
}

// Epilogue 玩家中途退出时的结语，按回合数和当前局面收尾
func (s *GameMasterService) Epilogue(state *models.GameState) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("You step away after %d turns.", state.TurnCount))

	if player := state.Player(); player != nil && len(player.Items) > 0 {
		sb.WriteString(fmt.Sprintf(" You leave carrying: %s.", strings.Join(player.ItemNames(), ", ")))
	}

	open := 0
	for _, offer := range state.Offers {
		if offer.IsOpen() {
			open++
		}
	}
	if open > 0 {
		sb.WriteString(" An offer hangs unanswered behind you.")
	}

	return sb.String()
}
