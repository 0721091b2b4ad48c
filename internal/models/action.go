// internal/models/action.go
package models

// Intent 自然语言话语被分类出的意图类别
type Intent string

const (
	IntentDialogue     Intent = "dialogue"
	IntentGiveItem     Intent = "give_item"
	IntentTakeItem     Intent = "take_item"
	IntentProposeTrade Intent = "propose_trade"
	IntentAcceptOffer  Intent = "accept_offer"
	IntentDeclineOffer Intent = "decline_offer"
	IntentCounterOffer Intent = "counter_offer"
	IntentUnknown      Intent = "unknown"
)

// AllIntents 分类器允许输出的固定意图集合
var AllIntents = []Intent{
	IntentDialogue,
	IntentGiveItem,
	IntentTakeItem,
	IntentProposeTrade,
	IntentAcceptOffer,
	IntentDeclineOffer,
	IntentCounterOffer,
	IntentUnknown,
}

// Valid 检查意图是否属于固定集合
func (i Intent) Valid() bool {
	for _, intent := range AllIntents {
		if i == intent {
			return true
		}
	}
	return false
}

// NeedsExtraction 该意图是否携带需要第二次提取调用的参数
// dialogue/unknown 直接短路；accept/decline 只作用于当前报价，不带参数
func (i Intent) NeedsExtraction() bool {
	switch i {
	case IntentGiveItem, IntentTakeItem, IntentProposeTrade, IntentCounterOffer:
		return true
	default:
		return false
	}
}

// Classification 分类器的输出：固定集合中的意图加置信度
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// GiveItemParams give_item 的参数：把 ItemID 交给 TargetID
type GiveItemParams struct {
	ItemID   string `json:"item_id"`
	TargetID string `json:"target_id"`
}

// TakeItemParams take_item 的参数：向 TargetID 索要 ItemID
type TakeItemParams struct {
	ItemID   string `json:"item_id"`
	TargetID string `json:"target_id"`
}

// TradeParams propose_trade 与 counter_offer 共用的交易条款
type TradeParams struct {
	OfferItems   []string `json:"offer_items"`   // 行动方交出的物品ID
	RequestItems []string `json:"request_items"` // 行动方索取的物品ID
	TargetID     string   `json:"target_id"`
}

// ProposedAction 提取阶段产出、尚未经过状态校验的动作
// 每个意图对应一个参数变体，未用到的变体保持 nil
type ProposedAction struct {
	Intent  Intent          `json:"intent"`
	ActorID string          `json:"actor_id"`
	RawText string          `json:"raw_text"`
	Give    *GiveItemParams `json:"give,omitempty"`
	Take    *TakeItemParams `json:"take,omitempty"`
	Trade   *TradeParams    `json:"trade,omitempty"`
}

// Action 经过校验、可以安全应用到游戏状态的动作
// DowngradedFrom 非空时表示原意图未通过前置条件检查，
// 动作已降级为 dialogue，RawText 原样保留为对话内容
type Action struct {
	Intent          Intent          `json:"intent"`
	ActorID         string          `json:"actor_id"`
	RawText         string          `json:"raw_text"`
	Give            *GiveItemParams `json:"give,omitempty"`
	Take            *TakeItemParams `json:"take,omitempty"`
	Trade           *TradeParams    `json:"trade,omitempty"`
	OfferID         string          `json:"offer_id,omitempty"` // accept/decline/counter 作用的报价
	DowngradedFrom  Intent          `json:"downgraded_from,omitempty"`
	DowngradeReason string          `json:"downgrade_reason,omitempty"`
}

// IsDowngrade 该动作是否由失败的前置条件降级而来
func (a *Action) IsDowngrade() bool {
	return a.DowngradedFrom != ""
}
