// internal/services/validator_service.go
package services

import (
	"fmt"

	"github.com/AshgroveGames/ParleyCore/internal/models"
	"github.com/AshgroveGames/ParleyCore/internal/utils"
)

// ValidatorService 对照实时游戏状态检查动作提案的前置条件
// 校验永不报错：前置条件不满足的动作降级为 dialogue，原话语保留为对话内容
// 校验读的是实时状态而非回合快照，同一话语内先前动作的效果必须可见
type ValidatorService struct{}

// NewValidatorService 创建动作校验器
func NewValidatorService() *ValidatorService {
	return &ValidatorService{}
}

// Validate 返回可以安全应用的动作
func (s *ValidatorService) Validate(state *models.GameState, proposed *models.ProposedAction) *models.Action {
	action := &models.Action{
		Intent:  proposed.Intent,
		ActorID: proposed.ActorID,
		RawText: proposed.RawText,
		Give:    proposed.Give,
		Take:    proposed.Take,
		Trade:   proposed.Trade,
	}

	if reason := s.checkPreconditions(state, proposed, action); reason != "" {
		utils.GetLogger().Info("动作未通过前置条件，降级为对话", map[string]interface{}{
			"actor":  proposed.ActorID,
			"intent": string(proposed.Intent),
			"reason": reason,
		})
		return downgrade(proposed, reason)
	}
	return action
}

// checkPreconditions 前置条件表；返回空串表示通过
// accept/decline/counter 通过时把解析到的报价ID写进 action
func (s *ValidatorService) checkPreconditions(state *models.GameState, proposed *models.ProposedAction, action *models.Action) string {
	actor, ok := state.Character(proposed.ActorID)
	if !ok {
		return fmt.Sprintf("actor %s is not part of the scene", proposed.ActorID)
	}

	switch proposed.Intent {
	case models.IntentDialogue:
		return ""

	case models.IntentUnknown:
		return "the utterance could not be read as a concrete action"

	case models.IntentGiveItem:
		if proposed.Give == nil {
			return "it is unclear what should be given to whom"
		}
		target, ok := state.Character(proposed.Give.TargetID)
		if !ok {
			return fmt.Sprintf("there is no one called %s here", proposed.Give.TargetID)
		}
		if target.ID == actor.ID {
			return "an item cannot be handed to oneself"
		}
		if !actor.HasItem(proposed.Give.ItemID) {
			return fmt.Sprintf("%s does not hold that item", actor.Name)
		}
		return ""

	case models.IntentTakeItem:
		if proposed.Take == nil {
			return "it is unclear what should be asked of whom"
		}
		target, ok := state.Character(proposed.Take.TargetID)
		if !ok {
			return fmt.Sprintf("there is no one called %s here", proposed.Take.TargetID)
		}
		if target.ID == actor.ID {
			return "an item cannot be demanded from oneself"
		}
		if !target.HasItem(proposed.Take.ItemID) {
			return fmt.Sprintf("%s does not hold that item", target.Name)
		}
		return ""

	case models.IntentProposeTrade:
		if proposed.Trade == nil {
			return "the terms of the trade are unclear"
		}
		return s.checkTradeTerms(state, actor, proposed.Trade)

	case models.IntentAcceptOffer:
		offer := state.OpenOfferFor(actor.ID)
		if offer == nil {
			return "there is no open offer to answer"
		}
		// 接受时双方必须仍然持有各自承诺的物品，否则报价作废
		if reason := offerStillDeliverable(state, offer); reason != "" {
			offer.Status = models.TradeStatusExpired
			return reason
		}
		action.OfferID = offer.ID
		return ""

	case models.IntentDeclineOffer:
		offer := state.OpenOfferFor(actor.ID)
		if offer == nil {
			return "there is no open offer to answer"
		}
		action.OfferID = offer.ID
		return ""

	case models.IntentCounterOffer:
		prior := state.OpenOfferFor(actor.ID)
		if prior == nil {
			return "there is no open offer to counter"
		}
		if proposed.Trade == nil {
			return "the terms of the counter are unclear"
		}
		if reason := s.checkTradeTerms(state, actor, proposed.Trade); reason != "" {
			return reason
		}
		action.OfferID = prior.ID
		return ""

	default:
		return fmt.Sprintf("unrecognized intent %s", proposed.Intent)
	}
}

// checkTradeTerms 交易条款的共同前置条件：
// 目标存在且不是自己，行动方持有给出的物品，目标持有索取的物品
func (s *ValidatorService) checkTradeTerms(state *models.GameState, actor *models.Character, trade *models.TradeParams) string {
	target, ok := state.Character(trade.TargetID)
	if !ok {
		return fmt.Sprintf("there is no one called %s here", trade.TargetID)
	}
	if target.ID == actor.ID {
		return "a trade needs another party"
	}
	if !holdsAll(actor, trade.OfferItems) {
		return fmt.Sprintf("%s does not hold everything offered", actor.Name)
	}
	if !holdsAll(target, trade.RequestItems) {
		return fmt.Sprintf("%s does not hold everything asked for", target.Name)
	}
	return ""
}

// offerStillDeliverable 报价双方是否仍能履约
func offerStillDeliverable(state *models.GameState, offer *models.TradeOffer) string {
	proposer, ok := state.Character(offer.ProposerID)
	if !ok {
		return fmt.Sprintf("the proposer %s is no longer in the scene", offer.ProposerID)
	}
	target, ok := state.Character(offer.TargetID)
	if !ok {
		return fmt.Sprintf("the recipient %s is no longer in the scene", offer.TargetID)
	}
	if !holdsAll(proposer, offer.OfferedItems) {
		return fmt.Sprintf("%s no longer holds the goods promised in the offer", proposer.Name)
	}
	if !holdsAll(target, offer.RequestedItems) {
		return fmt.Sprintf("%s no longer holds the goods asked for in the offer", target.Name)
	}
	return ""
}

// holdsAll 检查角色是否持有清单中每个物品
// 同一物品出现多次时需要持有对应数量
func holdsAll(c *models.Character, itemIDs []string) bool {
	needed := make(map[string]int)
	for _, id := range itemIDs {
		needed[id]++
	}
	for id, n := range needed {
		if c.ItemCount(id) < n {
			return false
		}
	}
	return true
}

// downgrade 把未通过校验的提案转为保留原话语的对话动作
func downgrade(proposed *models.ProposedAction, reason string) *models.Action {
	return &models.Action{
		Intent:          models.IntentDialogue,
		ActorID:         proposed.ActorID,
		RawText:         proposed.RawText,
		DowngradedFrom:  proposed.Intent,
		DowngradeReason: reason,
	}
}
