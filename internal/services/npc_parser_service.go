// internal/services/npc_parser_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/AshgroveGames/ParleyCore/internal/errors"
	"github.com/AshgroveGames/ParleyCore/internal/models"
	"github.com/AshgroveGames/ParleyCore/internal/utils"
)

// NPCParserService 从NPC生成的对白中解析伴随动作
// 与玩家侧不同：单次调用可产出多个动作，按对白中的出现顺序返回
// 解析失败只丢弃动作，对白本身照常展示
type NPCParserService struct {
	LLMService *LLMService
}

// NewNPCParserService 创建NPC动作解析器
func NewNPCParserService(llmService *LLMService) *NPCParserService {
	return &NPCParserService{LLMService: llmService}
}

// npcActionPayload 模型输出的单个NPC动作
type npcActionPayload struct {
	Intent       string   `json:"intent"`
	ItemID       string   `json:"item_id,omitempty"`
	TargetID     string   `json:"target_id,omitempty"`
	OfferItems   []string `json:"offer_items,omitempty"`
	RequestItems []string `json:"request_items,omitempty"`
}

type npcActionsPayload struct {
	Actions []npcActionPayload `json:"actions"`
}

const npcParserSystemPrompt = `You analyze an NPC's reply in a narrative trading game and list the concrete actions the NPC commits to in that reply, in the order they occur.

Possible intents:
- give_item: the NPC hands over one of its items (item_id, target_id)
- take_item: the NPC asks another character for an item (item_id, target_id)
- propose_trade: the NPC proposes an exchange (offer_items it gives, request_items it wants, target_id)
- counter_offer: the NPC counters the open offer directed at it with new terms (offer_items, request_items, target_id)
- accept_offer: the NPC accepts the open trade offer directed at it (no parameters)
- decline_offer: the NPC declines the open trade offer directed at it (no parameters)

Rules:
- List ONLY actions the reply actually commits to. Musing, refusing or deflecting is not an action.
- Refer to items and characters ONLY by the ids listed in the scene state.
- A reply that commits to nothing yields an empty list.`

// ParseActions 解析NPC对白携带的动作列表
// 相互矛盾的动作组合视为提取失败，调用方丢弃全部动作只保留对白
func (s *NPCParserService) ParseActions(ctx context.Context, snapshot models.StateSnapshot, npcID, dialogueText string) ([]*models.ProposedAction, error) {
	prompt := buildNPCParserPrompt(snapshot, npcID, dialogueText)

	var payload npcActionsPayload
	if err := s.LLMService.CreateStructuredCompletion(ctx, "npc_parser", "npc_action_parse", prompt, npcParserSystemPrompt, &payload); err != nil {
		return nil, err
	}

	actions := make([]*models.ProposedAction, 0, len(payload.Actions))
	var accepts, declines int

	for _, raw := range payload.Actions {
		intent := models.Intent(strings.TrimSpace(strings.ToLower(raw.Intent)))
		if intent == models.IntentDialogue || intent == models.IntentUnknown || intent == "" {
			continue
		}
		if !intent.Valid() {
			utils.GetLogger().Warn("NPC动作解析出集合外的意图，跳过", map[string]interface{}{
				"npc":    npcID,
				"intent": raw.Intent,
			})
			continue
		}

		proposed, err := s.buildProposal(snapshot, npcID, dialogueText, intent, raw)
		if err != nil {
			return nil, err
		}

		switch intent {
		case models.IntentAcceptOffer:
			accepts++
		case models.IntentDeclineOffer:
			declines++
		}
		actions = append(actions, proposed)
	}

	// 同一回应既接受又拒绝（或重复表态）无法确定NPC的真实决定
	if accepts+declines > 1 {
		return nil, apperrors.NewExtractionError("NPC对报价的表态相互矛盾", nil)
	}

	return actions, nil
}

func (s *NPCParserService) buildProposal(snapshot models.StateSnapshot, npcID, dialogueText string, intent models.Intent, raw npcActionPayload) (*models.ProposedAction, error) {
	proposed := &models.ProposedAction{
		Intent:  intent,
		ActorID: npcID,
		RawText: dialogueText,
	}

	switch intent {
	case models.IntentGiveItem, models.IntentTakeItem:
		itemID, ok := resolveItemID(snapshot, raw.ItemID)
		if !ok {
			return nil, apperrors.NewExtractionError(fmt.Sprintf("NPC动作引用了无法解析的物品: %q", raw.ItemID), nil)
		}
		targetID, ok := resolveCharacterID(snapshot, raw.TargetID, npcID)
		if !ok {
			return nil, apperrors.NewExtractionError(fmt.Sprintf("NPC动作引用了无法解析的角色: %q", raw.TargetID), nil)
		}
		if intent == models.IntentGiveItem {
			proposed.Give = &models.GiveItemParams{ItemID: itemID, TargetID: targetID}
		} else {
			proposed.Take = &models.TakeItemParams{ItemID: itemID, TargetID: targetID}
		}

	case models.IntentProposeTrade, models.IntentCounterOffer:
		targetID, ok := resolveCharacterID(snapshot, raw.TargetID, npcID)
		if !ok {
			return nil, apperrors.NewExtractionError(fmt.Sprintf("NPC动作引用了无法解析的角色: %q", raw.TargetID), nil)
		}
		offer, err := resolveItemList(snapshot, raw.OfferItems)
		if err != nil {
			return nil, err
		}
		request, err := resolveItemList(snapshot, raw.RequestItems)
		if err != nil {
			return nil, err
		}
		if len(offer) == 0 && len(request) == 0 {
			return nil, apperrors.NewExtractionError("NPC交易条款两侧均为空", nil)
		}
		proposed.Trade = &models.TradeParams{
			OfferItems:   offer,
			RequestItems: request,
			TargetID:     targetID,
		}
	}

	return proposed, nil
}

// buildNPCParserPrompt 解析提示词：场景状态 + NPC身份 + 待解析对白
func buildNPCParserPrompt(snapshot models.StateSnapshot, npcID, dialogueText string) string {
	var sb strings.Builder

	sb.WriteString("Scene state:\n")
	sb.WriteString(formatSnapshot(snapshot))

	name := npcID
	if c, ok := snapshot.Character(npcID); ok {
		name = c.Name
	}
	sb.WriteString(fmt.Sprintf("\nThe reply below was spoken by %s (id: %s).\n", name, npcID))
	sb.WriteString("Reply:\n")
	sb.WriteString(dialogueText)
	sb.WriteString("\n\nOutput schema: {\"actions\": [{\"intent\": \"...\", \"item_id\": \"...\", \"target_id\": \"...\", \"offer_items\": [], \"request_items\": []}]}")

	return sb.String()
}
