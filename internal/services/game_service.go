// internal/services/game_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/AshgroveGames/ParleyCore/internal/config"
	apperrors "github.com/AshgroveGames/ParleyCore/internal/errors"
	"github.com/AshgroveGames/ParleyCore/internal/models"
	"github.com/AshgroveGames/ParleyCore/internal/utils"
)

// GameService 驱动单个回合的完整解析管线：
// 玩家输入 → 分类 → 提取 → 校验 → 应用 → NPC回应 → NPC动作 → 胜利判定
// 调用方必须持有该运行的独占写锁
type GameService struct {
	Commands   *CommandParser
	Classifier *ClassifierService
	Extractor  *ExtractorService
	Validator  *ValidatorService
	Characters *CharacterService
	NPCParser  *NPCParserService
	GameMaster *GameMasterService
}

// NewGameService 组装回合管线
func NewGameService(
	commands *CommandParser,
	classifier *ClassifierService,
	extractor *ExtractorService,
	validator *ValidatorService,
	characters *CharacterService,
	npcParser *NPCParserService,
	gameMaster *GameMasterService,
) *GameService {
	return &GameService{
		Commands:   commands,
		Classifier: classifier,
		Extractor:  extractor,
		Validator:  validator,
		Characters: characters,
		NPCParser:  npcParser,
		GameMaster: gameMaster,
	}
}

// ProcessTurn 解析一次玩家输入并推进游戏状态
// 返回错误仅限于内容完整性问题；模型侧的失败都在管线内部消化
func (s *GameService) ProcessTurn(ctx context.Context, state *models.GameState, playerText string) (*models.TurnResult, error) {
	player := state.Player()
	if player == nil {
		return nil, apperrors.NewContentError("剧本没有玩家角色", nil)
	}

	playerText = strings.TrimSpace(playerText)
	if playerText == "" {
		return &models.TurnResult{}, nil
	}

	// 分类与提取共享同一份回合快照，校验与应用读写实时状态
	snapshot := state.Snapshot()
	history := state.History.Window(s.historyWindow())

	proposed, commandErr := s.parsePlayerInput(ctx, snapshot, history, player.ID, playerText)
	if commandErr != nil {
		// 命令语法错误不消耗回合，直接回显帮助信息
		return &models.TurnResult{
			Events: []models.DisplayEvent{{
				Type: models.EventNarration,
				Text: commandErr.Error(),
			}},
		}, nil
	}

	state.TurnCount++
	utils.GetMetricsCollector().IncrementCounter("turns_processed")

	action := s.Validator.Validate(state, proposed)
	if action.IsDowngrade() {
		utils.GetMetricsCollector().IncrementCounter("actions_downgraded")
	}
	result := &models.TurnResult{}

	result.Events = append(result.Events, models.DisplayEvent{
		Type:      models.EventDialogue,
		SpeakerID: player.ID,
		Speaker:   player.Name,
		Text:      action.RawText,
		Action:    action,
	})
	if action.IsDowngrade() && action.DowngradeReason != "" {
		result.Events = append(result.Events, models.DisplayEvent{
			Type: models.EventNarration,
			Text: fmt.Sprintf("(Nothing comes of it: %s.)", action.DowngradeReason),
		})
	}

	result.Events = append(result.Events, s.applyAction(state, action)...)
	state.History.Append(player.ID, action.RawText, action)

	// 胜利可能在玩家动作后立即达成，此时不再生成NPC回应
	if victory := s.GameMaster.EvaluateVictory(ctx, state); victory != nil {
		s.finishWithVictory(result, victory)
		return result, nil
	}

	npcID := s.pickRespondent(state, action)
	if npcID != "" {
		s.runNPCResponse(ctx, state, npcID, action, result)
	}

	if result.Victory == nil {
		if victory := s.GameMaster.EvaluateVictory(ctx, state); victory != nil {
			s.finishWithVictory(result, victory)
		}
	}

	return result, nil
}

func (s *GameService) historyWindow() int {
	if cfg := config.GetCurrentConfig(); cfg != nil && cfg.HistoryWindow > 0 {
		return cfg.HistoryWindow
	}
	return config.DefaultHistoryWindow
}

// parsePlayerInput 命令走确定性通道，自然语言走分类+提取
// 返回的 error 只可能来自命令语法，自然语言路径永不报错
func (s *GameService) parsePlayerInput(ctx context.Context, snapshot models.StateSnapshot, history []models.InteractionEntry, playerID, text string) (*models.ProposedAction, error) {
	if s.Commands.IsCommand(text) {
		return s.Commands.Parse(snapshot, playerID, text)
	}

	classification := s.Classifier.Classify(ctx, snapshot, text, history)

	proposed := &models.ProposedAction{
		Intent:  classification.Intent,
		ActorID: playerID,
		RawText: text,
	}

	if !classification.Intent.NeedsExtraction() {
		return proposed, nil
	}

	extracted, err := s.Extractor.Extract(ctx, snapshot, playerID, text, classification.Intent)
	if err != nil {
		// 提取失败不终止回合：带着空参数交给校验器降级
		utils.GetLogger().Warn("参数提取失败，动作将降级", map[string]interface{}{
			"intent": string(classification.Intent),
			"error":  err.Error(),
		})
		return proposed, nil
	}
	return extracted, nil
}

// runNPCResponse 生成NPC对白并解析、校验、应用其伴随动作
// 对白生成失败回落到沉默旁白；动作解析失败只丢弃动作，保留对白
func (s *GameService) runNPCResponse(ctx context.Context, state *models.GameState, npcID string, playerAction *models.Action, result *models.TurnResult) {
	npc, ok := state.Character(npcID)
	if !ok {
		return
	}

	dialogue, err := s.Characters.GenerateDialogue(ctx, state, npcID, playerAction)
	if err != nil {
		utils.GetLogger().Warn("NPC对白生成失败", map[string]interface{}{
			"npc":   npcID,
			"error": err.Error(),
		})
		result.Events = append(result.Events, models.DisplayEvent{
			Type: models.EventNarration,
			Text: fmt.Sprintf("%s says nothing.", npc.Name),
		})
		state.History.Append(npcID, "", nil)
		return
	}

	result.Events = append(result.Events, models.DisplayEvent{
		Type:      models.EventDialogue,
		SpeakerID: npcID,
		Speaker:   npc.Name,
		Text:      dialogue,
	})

	// 动作解析基于玩家动作已生效后的状态
	proposals, err := s.NPCParser.ParseActions(ctx, state.Snapshot(), npcID, dialogue)
	if err != nil {
		utils.GetLogger().Warn("NPC动作解析失败，丢弃全部动作", map[string]interface{}{
			"npc":   npcID,
			"error": err.Error(),
		})
		proposals = nil
	}

	var firstApplied *models.Action
	gaveRequestedItem := false

	for _, proposal := range proposals {
		// 逐个对照实时状态校验：前一个动作的效果对后一个可见
		action := s.Validator.Validate(state, proposal)
		if action.IsDowngrade() {
			utils.GetLogger().Info("NPC动作被丢弃", map[string]interface{}{
				"npc":    npcID,
				"intent": string(action.DowngradedFrom),
				"reason": action.DowngradeReason,
			})
			continue
		}
		if action.Intent == models.IntentDialogue {
			continue
		}

		result.Events = append(result.Events, s.applyAction(state, action)...)
		utils.GetMetricsCollector().IncrementCounter("npc_actions_applied")
		if firstApplied == nil {
			firstApplied = action
		}
		if playerAction.Intent == models.IntentTakeItem && playerAction.Take != nil &&
			action.Intent == models.IntentGiveItem && action.Give != nil &&
			action.Give.ItemID == playerAction.Take.ItemID && action.Give.TargetID == playerAction.ActorID {
			gaveRequestedItem = true
		}

		if victory := s.GameMaster.EvaluateVictory(ctx, state); victory != nil {
			state.History.Append(npcID, dialogue, firstApplied)
			s.finishWithVictory(result, victory)
			return
		}
	}

	// 玩家的索取被无视算作拒绝
	if playerAction.Intent == models.IntentTakeItem && playerAction.Take != nil &&
		playerAction.Take.TargetID == npcID && !playerAction.IsDowngrade() && !gaveRequestedItem {
		s.adjustDisposition(state, npcID, DispositionRequestDenied)
	}

	state.History.Append(npcID, dialogue, firstApplied)
}

// pickRespondent 选出回应本回合的NPC：
// 动作目标优先，其次是最近发言的NPC，最后落到剧本声明的第一个NPC
func (s *GameService) pickRespondent(state *models.GameState, action *models.Action) string {
	if target := actionTarget(action); target != "" {
		if c, ok := state.Character(target); ok && !c.IsPlayer {
			return target
		}
	}
	if action.Intent == models.IntentAcceptOffer || action.Intent == models.IntentDeclineOffer || action.Intent == models.IntentCounterOffer {
		if offer := state.OfferByID(action.OfferID); offer != nil {
			other := offer.ProposerID
			if other == action.ActorID {
				other = offer.TargetID
			}
			if c, ok := state.Character(other); ok && !c.IsPlayer {
				return other
			}
		}
	}
	entries := state.History.Entries()
	for j := len(entries) - 1; j >= 0; j-- {
		if c, ok := state.Character(entries[j].SpeakerID); ok && !c.IsPlayer {
			return c.ID
		}
	}
	if len(state.Scenario.CharacterIDs) > 0 {
		return state.Scenario.CharacterIDs[0]
	}
	return ""
}

func actionTarget(action *models.Action) string {
	switch {
	case action.Give != nil:
		return action.Give.TargetID
	case action.Take != nil:
		return action.Take.TargetID
	case action.Trade != nil:
		return action.Trade.TargetID
	}
	return ""
}

// applyAction 把已校验的动作落到游戏状态，返回产生的展示事件
// 调用前动作必须已通过校验，这里的失败只可能是编程错误
func (s *GameService) applyAction(state *models.GameState, action *models.Action) []models.DisplayEvent {
	actor, _ := state.Character(action.ActorID)

	switch action.Intent {
	case models.IntentDialogue:
		return nil

	case models.IntentGiveItem:
		item, _ := actor.FindItem(action.Give.ItemID)
		target, _ := state.Character(action.Give.TargetID)
		if err := state.TransferItem(action.ActorID, action.Give.TargetID, action.Give.ItemID); err != nil {
			utils.GetLogger().Error("已校验的赠予无法应用", map[string]interface{}{"error": err.Error()})
			return nil
		}
		if !target.IsPlayer {
			s.adjustDisposition(state, target.ID, DispositionGiftReceived)
		}
		return []models.DisplayEvent{{
			Type:   models.EventActionResult,
			Text:   fmt.Sprintf("%s hands the %s to %s.", actor.Name, item.Name, target.Name),
			Action: action,
		}}

	case models.IntentTakeItem:
		// 索取本身不转移物品，目标角色决定是否交出
		target, _ := state.Character(action.Take.TargetID)
		itemName := action.Take.ItemID
		if item, ok := target.FindItem(action.Take.ItemID); ok {
			itemName = item.Name
		}
		return []models.DisplayEvent{{
			Type:   models.EventActionResult,
			Text:   fmt.Sprintf("%s asks %s for the %s.", actor.Name, target.Name, itemName),
			Action: action,
		}}

	case models.IntentProposeTrade:
		target, _ := state.Character(action.Trade.TargetID)
		offer := state.OpenTradeOffer(uuid.NewString(), action.ActorID, action.Trade.TargetID,
			action.Trade.OfferItems, action.Trade.RequestItems)
		return []models.DisplayEvent{{
			Type: models.EventActionResult,
			Text: fmt.Sprintf("%s offers %s in exchange for %s.",
				actor.Name,
				itemListNames(state, offer.OfferedItems),
				itemListNames(state, offer.RequestedItems)),
			Action: action,
		}, {
			Type: models.EventNarration,
			Text: fmt.Sprintf("The offer hangs in the air, waiting on %s.", target.Name),
		}}

	case models.IntentAcceptOffer:
		return s.applyAcceptOffer(state, action, actor)

	case models.IntentDeclineOffer:
		offer := state.OfferByID(action.OfferID)
		if offer == nil {
			return nil
		}
		offer.Status = models.TradeStatusDeclined
		proposer, _ := state.Character(offer.ProposerID)
		if !actor.IsPlayer {
			s.adjustDisposition(state, actor.ID, DispositionOfferDeclined)
		} else if proposer != nil && !proposer.IsPlayer {
			s.adjustDisposition(state, proposer.ID, DispositionTradeDeclined)
		}
		return []models.DisplayEvent{{
			Type:   models.EventActionResult,
			Text:   fmt.Sprintf("%s declines the offer.", actor.Name),
			Action: action,
		}}

	case models.IntentCounterOffer:
		prior := state.OfferByID(action.OfferID)
		if prior == nil {
			return nil
		}
		prior.Status = models.TradeStatusCountered
		offer := state.OpenTradeOffer(uuid.NewString(), action.ActorID, action.Trade.TargetID,
			action.Trade.OfferItems, action.Trade.RequestItems)
		target, _ := state.Character(action.Trade.TargetID)
		return []models.DisplayEvent{{
			Type: models.EventActionResult,
			Text: fmt.Sprintf("%s counters: %s for %s.",
				actor.Name,
				itemListNames(state, offer.OfferedItems),
				itemListNames(state, offer.RequestedItems)),
			Action: action,
		}, {
			Type: models.EventNarration,
			Text: fmt.Sprintf("The new terms wait on %s.", target.Name),
		}}
	}

	return nil
}

// applyAcceptOffer 成交：双向转移全部条款物品，报价进入终态
func (s *GameService) applyAcceptOffer(state *models.GameState, action *models.Action, actor *models.Character) []models.DisplayEvent {
	offer := state.OfferByID(action.OfferID)
	if offer == nil {
		return nil
	}

	for _, itemID := range offer.OfferedItems {
		if err := state.TransferItem(offer.ProposerID, offer.TargetID, itemID); err != nil {
			utils.GetLogger().Error("已校验的成交无法应用", map[string]interface{}{"error": err.Error()})
		}
	}
	for _, itemID := range offer.RequestedItems {
		if err := state.TransferItem(offer.TargetID, offer.ProposerID, itemID); err != nil {
			utils.GetLogger().Error("已校验的成交无法应用", map[string]interface{}{"error": err.Error()})
		}
	}
	offer.Status = models.TradeStatusAccepted
	utils.GetMetricsCollector().IncrementCounter("trades_completed")

	// 成交提升NPC一方的好感度
	for _, id := range []string{offer.ProposerID, offer.TargetID} {
		if c, ok := state.Character(id); ok && !c.IsPlayer {
			s.adjustDisposition(state, id, DispositionTradeAccepted)
		}
	}

	proposer, _ := state.Character(offer.ProposerID)
	return []models.DisplayEvent{{
		Type: models.EventActionResult,
		Text: fmt.Sprintf("The trade is struck: %s's %s for %s's %s.",
			proposer.Name, itemListNames(state, offer.OfferedItems),
			actor.Name, itemListNames(state, offer.RequestedItems)),
		Action: action,
	}}
}

// adjustDisposition 应用好感度规则并记录变化
func (s *GameService) adjustDisposition(state *models.GameState, characterID string, event DispositionEvent) {
	c, ok := state.Character(characterID)
	if !ok || c.IsPlayer {
		return
	}
	delta := DispositionDelta(event)
	if delta == 0 {
		return
	}
	before := c.Disposition
	c.AdjustDisposition(delta)
	utils.GetLogger().Debug("好感度变化", map[string]interface{}{
		"character": characterID,
		"event":     string(event),
		"before":    before,
		"after":     c.Disposition,
	})
}

func (s *GameService) finishWithVictory(result *models.TurnResult, victory *models.VictoryResult) {
	result.Victory = victory
	result.Events = append(result.Events, models.DisplayEvent{
		Type: models.EventVictory,
		Text: victory.Narrative,
	})
}

// itemListNames 把物品ID清单渲染为可读名称
func itemListNames(state *models.GameState, itemIDs []string) string {
	if len(itemIDs) == 0 {
		return "nothing"
	}
	names := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		if item, ok := state.Items[id]; ok {
			names[i] = item.Name
		} else {
			names[i] = id
		}
	}
	return strings.Join(names, ", ")
}
