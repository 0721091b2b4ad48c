// internal/models/event.go
package models

// DisplayEventType 回合输出事件类型
type DisplayEventType string

const (
	EventNarration    DisplayEventType = "narration"     // 旁白（开场、结语）
	EventDialogue     DisplayEventType = "dialogue"      // 角色对白
	EventActionResult DisplayEventType = "action_result" // 状态变更结果
	EventVictory      DisplayEventType = "victory"       // 胜利达成
)

// DisplayEvent 回合解析过程中产生的一条展示事件
// 呈现格式化是外部协作者的职责，核心只负责有序输出
type DisplayEvent struct {
	Type      DisplayEventType `json:"type"`
	SpeakerID string           `json:"speaker_id,omitempty"`
	Speaker   string           `json:"speaker,omitempty"`
	Text      string           `json:"text"`
	Action    *Action          `json:"action,omitempty"`
}

// TurnResult 一次玩家回合完整解析后的结果
type TurnResult struct {
	Events  []DisplayEvent `json:"events"`
	Victory *VictoryResult `json:"victory,omitempty"`
}
