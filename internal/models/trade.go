// internal/models/trade.go
package models

import "time"

// TradeStatus 交易报价的生命周期状态
type TradeStatus string

const (
	TradeStatusOpen      TradeStatus = "open"
	TradeStatusAccepted  TradeStatus = "accepted"
	TradeStatusDeclined  TradeStatus = "declined"
	TradeStatusCountered TradeStatus = "countered"
	TradeStatusExpired   TradeStatus = "expired"
)

// TradeOffer 一对角色之间的短暂交易报价
// 由 propose_trade 创建；accept_offer/decline_offer 使其进入终态，
// counter_offer 会用新报价替换它。同一有序角色对最多只有一个未决报价，
// 同一提议方的新报价会隐式让旧报价过期
type TradeOffer struct {
	ID             string      `json:"id"`
	ProposerID     string      `json:"proposer_id"`
	TargetID       string      `json:"target_id"`
	OfferedItems   []string    `json:"offered_items"`   // 提议方交出的物品ID
	RequestedItems []string    `json:"requested_items"` // 提议方索取的物品ID
	Status         TradeStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
}

// IsOpen 报价是否仍然未决
func (o *TradeOffer) IsOpen() bool {
	return o != nil && o.Status == TradeStatusOpen
}
