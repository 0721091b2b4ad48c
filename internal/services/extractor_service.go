// internal/services/extractor_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/AshgroveGames/ParleyCore/internal/errors"
	"github.com/AshgroveGames/ParleyCore/internal/models"
)

// ExtractorService 玩家话语解析的第二阶段：对已分类的意图提取结构化参数
// 只对携带参数的意图调用（give_item/take_item/propose_trade/counter_offer），
// dialogue、unknown、accept/decline 由调用方短路
type ExtractorService struct {
	LLMService *LLMService
}

// NewExtractorService 创建参数提取器
func NewExtractorService(llmService *LLMService) *ExtractorService {
	return &ExtractorService{LLMService: llmService}
}

// transferPayload give_item/take_item 的模型输出
type transferPayload struct {
	ItemID   string `json:"item_id"`
	TargetID string `json:"target_id"`
}

// tradePayload propose_trade/counter_offer 的模型输出
type tradePayload struct {
	OfferItems   []string `json:"offer_items"`
	RequestItems []string `json:"request_items"`
	TargetID     string   `json:"target_id"`
}

const extractorSystemPrompt = `You extract transaction parameters from a player's utterance in a narrative trading game.
Refer to characters and items ONLY by the ids listed in the scene state.
If the utterance names an item or character loosely, resolve it to the closest listed id.
If a required parameter cannot be resolved from the utterance, use an empty string (or empty list) for it.`

// Extract 对给定意图提取参数并返回未校验的动作提案
// 参数无法落到已知实体时返回提取错误，调用方据此降级为 dialogue
func (s *ExtractorService) Extract(ctx context.Context, snapshot models.StateSnapshot, actorID, text string, intent models.Intent) (*models.ProposedAction, error) {
	if !intent.NeedsExtraction() {
		return nil, apperrors.NewExtractionError(fmt.Sprintf("意图 %s 不携带可提取参数", intent), nil)
	}

	proposed := &models.ProposedAction{
		Intent:  intent,
		ActorID: actorID,
		RawText: text,
	}

	prompt := buildExtractorPrompt(snapshot, actorID, text, intent)

	switch intent {
	case models.IntentGiveItem, models.IntentTakeItem:
		var payload transferPayload
		if err := s.LLMService.CreateStructuredCompletion(ctx, "extractor", "param_extraction_"+string(intent), prompt, extractorSystemPrompt, &payload); err != nil {
			return nil, err
		}
		itemID, ok := resolveItemID(snapshot, payload.ItemID)
		if !ok {
			return nil, apperrors.NewExtractionError(fmt.Sprintf("无法解析物品引用: %q", payload.ItemID), nil)
		}
		targetID, ok := resolveCharacterID(snapshot, payload.TargetID, actorID)
		if !ok {
			return nil, apperrors.NewExtractionError(fmt.Sprintf("无法解析目标角色: %q", payload.TargetID), nil)
		}
		if intent == models.IntentGiveItem {
			proposed.Give = &models.GiveItemParams{ItemID: itemID, TargetID: targetID}
		} else {
			proposed.Take = &models.TakeItemParams{ItemID: itemID, TargetID: targetID}
		}

	case models.IntentProposeTrade, models.IntentCounterOffer:
		var payload tradePayload
		if err := s.LLMService.CreateStructuredCompletion(ctx, "extractor", "param_extraction_"+string(intent), prompt, extractorSystemPrompt, &payload); err != nil {
			return nil, err
		}
		targetID, ok := resolveCharacterID(snapshot, payload.TargetID, actorID)
		if !ok {
			return nil, apperrors.NewExtractionError(fmt.Sprintf("无法解析目标角色: %q", payload.TargetID), nil)
		}
		offer, err := resolveItemList(snapshot, payload.OfferItems)
		if err != nil {
			return nil, err
		}
		request, err := resolveItemList(snapshot, payload.RequestItems)
		if err != nil {
			return nil, err
		}
		// 单边报价至少要有一侧条款，否则不是可执行的交易
		if len(offer) == 0 && len(request) == 0 {
			return nil, apperrors.NewExtractionError("交易条款两侧均为空", nil)
		}
		proposed.Trade = &models.TradeParams{
			OfferItems:   offer,
			RequestItems: request,
			TargetID:     targetID,
		}
	}

	return proposed, nil
}

// buildExtractorPrompt 组装提取提示词：意图确定后只需场景状态和话语本身
func buildExtractorPrompt(snapshot models.StateSnapshot, actorID, text string, intent models.Intent) string {
	var sb strings.Builder

	sb.WriteString("Scene state:\n")
	sb.WriteString(formatSnapshot(snapshot))

	actorName := actorID
	if c, ok := snapshot.Character(actorID); ok {
		actorName = c.Name
	}
	sb.WriteString(fmt.Sprintf("\nThe utterance below was spoken by %s (id: %s) and classified as %s.\n", actorName, actorID, intent))
	sb.WriteString("Utterance:\n")
	sb.WriteString(text)
	sb.WriteString("\n\n")

	switch intent {
	case models.IntentGiveItem:
		sb.WriteString(`Extract which item the speaker gives away and to whom.
Output schema: {"item_id": "...", "target_id": "..."}`)
	case models.IntentTakeItem:
		sb.WriteString(`Extract which item the speaker asks for and from whom.
Output schema: {"item_id": "...", "target_id": "..."}`)
	case models.IntentProposeTrade:
		sb.WriteString(`Extract the proposed exchange from the speaker's point of view:
offer_items are item ids the speaker gives, request_items are item ids the speaker wants, target_id is the other party.
Output schema: {"offer_items": ["..."], "request_items": ["..."], "target_id": "..."}`)
	case models.IntentCounterOffer:
		sb.WriteString(`The speaker is countering the open offer directed at them. Extract the NEW terms from the speaker's point of view:
offer_items are item ids the speaker gives, request_items are item ids the speaker wants, target_id is the other party.
Output schema: {"offer_items": ["..."], "request_items": ["..."], "target_id": "..."}`)
	}

	return sb.String()
}

// resolveItemID 把模型输出的物品引用落到快照中的已知物品ID
// 先按ID精确匹配，再按名称不区分大小写匹配
func resolveItemID(snapshot models.StateSnapshot, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	for _, c := range snapshot.Characters {
		for _, item := range c.Items {
			if item.ID == ref {
				return item.ID, true
			}
		}
	}
	lower := strings.ToLower(ref)
	for _, c := range snapshot.Characters {
		for _, item := range c.Items {
			if strings.ToLower(item.Name) == lower {
				return item.ID, true
			}
		}
	}
	return "", false
}

// resolveItemList 逐个解析物品引用，任何一个落空都算提取失败
func resolveItemList(snapshot models.StateSnapshot, refs []string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		id, ok := resolveItemID(snapshot, ref)
		if !ok {
			return nil, apperrors.NewExtractionError(fmt.Sprintf("无法解析物品引用: %q", ref), nil)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// resolveCharacterID 把角色引用落到快照中的已知角色ID，行动方自身不是合法目标
func resolveCharacterID(snapshot models.StateSnapshot, ref, actorID string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == actorID {
		return "", false
	}
	for _, c := range snapshot.Characters {
		if c.ID == ref {
			return c.ID, true
		}
	}
	lower := strings.ToLower(ref)
	for _, c := range snapshot.Characters {
		if strings.ToLower(c.Name) == lower {
			return c.ID, true
		}
	}
	return "", false
}
