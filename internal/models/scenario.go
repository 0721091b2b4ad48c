// internal/models/scenario.go
package models

// VictoryConditionType 胜利条件谓词类型
type VictoryConditionType string

const (
	// VictoryCharacterHasItem 指定角色持有指定物品
	VictoryCharacterHasItem VictoryConditionType = "character_has_item"
	// VictoryDispositionAtLeast 指定角色好感度达到阈值
	VictoryDispositionAtLeast VictoryConditionType = "disposition_at_least"
)

// VictoryCondition 剧本声明的单个胜利条件谓词
type VictoryCondition struct {
	ID          string               `json:"id"`
	Type        VictoryConditionType `json:"type"`
	CharacterID string               `json:"character_id"`
	ItemID      string               `json:"item_id,omitempty"`
	Threshold   int                  `json:"threshold,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Scenario 加载后静态不变的剧本定义
// 剧本本身不持有任何运行时可变状态，可变状态都在 GameState 里
type Scenario struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Description       string             `json:"description"`
	LocationID        string             `json:"location_id"`
	PlayerID          string             `json:"player_id"`
	CharacterIDs      []string           `json:"character_ids"` // 参与的NPC
	ItemIDs           []string           `json:"item_ids,omitempty"`
	VictoryConditions []VictoryCondition `json:"victory_conditions"`
}

// VictoryResult 胜利评估结果
// 按声明顺序评估，第一个满足的条件胜出；Narrative 纯属装饰，
// 生成失败不会阻塞胜利上报
type VictoryResult struct {
	Achieved    bool   `json:"achieved"`
	ConditionID string `json:"condition_id,omitempty"`
	Narrative   string `json:"narrative,omitempty"`
}
