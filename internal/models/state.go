// internal/models/state.go
package models

import (
	"fmt"
	"time"
)

// GameState 一次剧本运行期间的可变世界模型
// 运行期间只有当前回合这一个写者，所有组件通过引用共享它
type GameState struct {
	Scenario   *Scenario             `json:"scenario"`
	Characters map[string]*Character `json:"characters"`
	Locations  map[string]*Location  `json:"locations"`
	Items      map[string]Item       `json:"items"` // 物品定义表
	Offers     []*TradeOffer         `json:"offers"`
	History    *InteractionHistory   `json:"-"`
	TurnCount  int                   `json:"turn_count"`
}

// NewGameState 构建初始游戏状态
func NewGameState(scenario *Scenario) *GameState {
	return &GameState{
		Scenario:   scenario,
		Characters: make(map[string]*Character),
		Locations:  make(map[string]*Location),
		Items:      make(map[string]Item),
		History:    NewInteractionHistory(),
	}
}

// Character 按ID查找角色
func (s *GameState) Character(id string) (*Character, bool) {
	c, ok := s.Characters[id]
	return c, ok
}

// Player 返回玩家角色
func (s *GameState) Player() *Character {
	for _, c := range s.Characters {
		if c.IsPlayer {
			return c
		}
	}
	return nil
}

// OpenOfferFor 返回指向 targetID 的未决报价，没有则返回 nil
func (s *GameState) OpenOfferFor(targetID string) *TradeOffer {
	for _, offer := range s.Offers {
		if offer.IsOpen() && offer.TargetID == targetID {
			return offer
		}
	}
	return nil
}

// OpenOfferBetween 返回 proposerID 向 targetID 提出的未决报价
func (s *GameState) OpenOfferBetween(proposerID, targetID string) *TradeOffer {
	for _, offer := range s.Offers {
		if offer.IsOpen() && offer.ProposerID == proposerID && offer.TargetID == targetID {
			return offer
		}
	}
	return nil
}

// OpenTradeOffer 创建新报价并登记
// 同一有序角色对已有未决报价时，旧报价被隐式置为过期
func (s *GameState) OpenTradeOffer(id, proposerID, targetID string, offered, requested []string) *TradeOffer {
	if prior := s.OpenOfferBetween(proposerID, targetID); prior != nil {
		prior.Status = TradeStatusExpired
	}
	offer := &TradeOffer{
		ID:             id,
		ProposerID:     proposerID,
		TargetID:       targetID,
		OfferedItems:   offered,
		RequestedItems: requested,
		Status:         TradeStatusOpen,
		CreatedAt:      time.Now(),
	}
	s.Offers = append(s.Offers, offer)
	return offer
}

// OfferByID 按ID查找报价
func (s *GameState) OfferByID(id string) *TradeOffer {
	for _, offer := range s.Offers {
		if offer.ID == id {
			return offer
		}
	}
	return nil
}

// TransferItem 在两个角色之间转移恰好一件物品
// 物品总量守恒：移除失败时不做任何变更
func (s *GameState) TransferItem(fromID, toID, itemID string) error {
	from, ok := s.Characters[fromID]
	if !ok {
		return fmt.Errorf("角色不存在: %s", fromID)
	}
	to, ok := s.Characters[toID]
	if !ok {
		return fmt.Errorf("角色不存在: %s", toID)
	}
	item, removed := from.RemoveItem(itemID)
	if !removed {
		return fmt.Errorf("%s 未持有物品 %s", from.Name, itemID)
	}
	to.AddItem(item)
	return nil
}

// CharacterSnapshot 单个角色的只读切片
type CharacterSnapshot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Items       []Item `json:"items"`
	Disposition int    `json:"disposition"`
	IsPlayer    bool   `json:"is_player"`
}

// StateSnapshot 每回合生成一次、贯穿分类与提取管线的不可变状态切片
// 避免分类器、提取器各自读取过程中状态漂移
type StateSnapshot struct {
	Characters   []CharacterSnapshot `json:"characters"`
	OpenOffers   []TradeOffer        `json:"open_offers"`
	LocationName string              `json:"location_name"`
}

// Snapshot 生成当前状态的不可变切片
func (s *GameState) Snapshot() StateSnapshot {
	snap := StateSnapshot{}
	if loc, ok := s.Locations[s.Scenario.LocationID]; ok {
		snap.LocationName = loc.Name
	}
	for _, id := range append([]string{s.Scenario.PlayerID}, s.Scenario.CharacterIDs...) {
		c, ok := s.Characters[id]
		if !ok {
			continue
		}
		items := make([]Item, len(c.Items))
		copy(items, c.Items)
		snap.Characters = append(snap.Characters, CharacterSnapshot{
			ID:          c.ID,
			Name:        c.Name,
			Items:       items,
			Disposition: c.Disposition,
			IsPlayer:    c.IsPlayer,
		})
	}
	for _, offer := range s.Offers {
		if offer.IsOpen() {
			snap.OpenOffers = append(snap.OpenOffers, *offer)
		}
	}
	return snap
}

// CharacterSnapshot 按ID查找切片中的角色
func (s StateSnapshot) Character(id string) (CharacterSnapshot, bool) {
	for _, c := range s.Characters {
		if c.ID == id {
			return c, true
		}
	}
	return CharacterSnapshot{}, false
}
