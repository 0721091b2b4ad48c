// internal/services/command_parser.go
package services

import (
	"fmt"
	"strings"

	apperrors "github.com/AshgroveGames/ParleyCore/internal/errors"
	"github.com/AshgroveGames/ParleyCore/internal/models"
)

// CommandParser 处理以 / 开头的显式命令
// 命令是确定性的快捷通道，完全绕过分类器和提取器，不消耗任何网关调用
type CommandParser struct{}

// NewCommandParser 创建命令解析器
func NewCommandParser() *CommandParser {
	return &CommandParser{}
}

// IsCommand 判断输入是否是显式命令
func (p *CommandParser) IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// Parse 把命令文本解析为动作提案
// 语法错误或引用落空返回校验错误，错误消息直接展示给玩家
func (p *CommandParser) Parse(snapshot models.StateSnapshot, actorID, text string) (*models.ProposedAction, error) {
	trimmed := strings.TrimSpace(text)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return nil, apperrors.NewValidationError("empty command", nil)
	}

	command := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))

	proposed := &models.ProposedAction{ActorID: actorID, RawText: text}

	switch command {
	case "/say":
		if rest == "" {
			return nil, apperrors.NewValidationError("usage: /say <text>", nil)
		}
		proposed.Intent = models.IntentDialogue
		proposed.RawText = rest
		return proposed, nil

	case "/give":
		// /give <物品> to <角色>
		itemRef, targetRef, ok := splitOnKeyword(rest, " to ")
		if !ok {
			return nil, apperrors.NewValidationError("usage: /give <item> to <character>", nil)
		}
		itemID, ok := resolveItemID(snapshot, itemRef)
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("no such item: %s", itemRef), nil)
		}
		targetID, ok := resolveCharacterID(snapshot, targetRef, actorID)
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("no such character: %s", targetRef), nil)
		}
		proposed.Intent = models.IntentGiveItem
		proposed.Give = &models.GiveItemParams{ItemID: itemID, TargetID: targetID}
		return proposed, nil

	case "/request":
		// /request <物品> from <角色>
		itemRef, targetRef, ok := splitOnKeyword(rest, " from ")
		if !ok {
			return nil, apperrors.NewValidationError("usage: /request <item> from <character>", nil)
		}
		itemID, ok := resolveItemID(snapshot, itemRef)
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("no such item: %s", itemRef), nil)
		}
		targetID, ok := resolveCharacterID(snapshot, targetRef, actorID)
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("no such character: %s", targetRef), nil)
		}
		proposed.Intent = models.IntentTakeItem
		proposed.Take = &models.TakeItemParams{ItemID: itemID, TargetID: targetID}
		return proposed, nil

	case "/trade", "/counter":
		// /trade <物品,...> for <物品,...> with <角色>
		terms, targetRef, ok := splitOnKeyword(rest, " with ")
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("usage: %s <items> for <items> with <character>", command), nil)
		}
		offerPart, requestPart, ok := splitOnKeyword(terms, " for ")
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("usage: %s <items> for <items> with <character>", command), nil)
		}
		offer, err := resolveCommandItems(snapshot, offerPart)
		if err != nil {
			return nil, err
		}
		request, err := resolveCommandItems(snapshot, requestPart)
		if err != nil {
			return nil, err
		}
		if len(offer) == 0 && len(request) == 0 {
			return nil, apperrors.NewValidationError("both sides of the trade are empty", nil)
		}
		targetID, ok := resolveCharacterID(snapshot, targetRef, actorID)
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("no such character: %s", targetRef), nil)
		}
		proposed.Intent = models.IntentProposeTrade
		if command == "/counter" {
			proposed.Intent = models.IntentCounterOffer
		}
		proposed.Trade = &models.TradeParams{
			OfferItems:   offer,
			RequestItems: request,
			TargetID:     targetID,
		}
		return proposed, nil

	case "/accept":
		proposed.Intent = models.IntentAcceptOffer
		return proposed, nil

	case "/decline":
		proposed.Intent = models.IntentDeclineOffer
		return proposed, nil

	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown command: %s", command), nil)
	}
}

// splitOnKeyword 按关键字把命令剩余部分切成两段，大小写不敏感
func splitOnKeyword(s, keyword string) (before, after string, ok bool) {
	idx := strings.Index(strings.ToLower(s), keyword)
	if idx < 0 {
		return "", "", false
	}
	before = strings.TrimSpace(s[:idx])
	after = strings.TrimSpace(s[idx+len(keyword):])
	if before == "" || after == "" {
		return "", "", false
	}
	return before, after, true
}

// resolveCommandItems 解析逗号分隔的物品清单；"nothing" 表示空清单
func resolveCommandItems(snapshot models.StateSnapshot, part string) ([]string, error) {
	part = strings.TrimSpace(part)
	if part == "" || strings.EqualFold(part, "nothing") {
		return nil, nil
	}
	var ids []string
	for _, ref := range strings.Split(part, ",") {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		id, ok := resolveItemID(snapshot, ref)
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("no such item: %s", ref), nil)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
