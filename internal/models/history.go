// internal/models/history.go
package models

import "time"

// InteractionEntry 交互历史中的一条回合记录，追加后不再修改
type InteractionEntry struct {
	SequenceNo int       `json:"sequence_no"`
	SpeakerID  string    `json:"speaker_id"`
	Text       string    `json:"text"`
	Action     *Action   `json:"action,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// InteractionHistory 按剧本运行维护的只追加对话与动作日志
// 序号顺序 == 时间顺序 == 动作被应用的顺序
type InteractionHistory struct {
	entries []InteractionEntry
}

// NewInteractionHistory 创建空的交互历史
func NewInteractionHistory() *InteractionHistory {
	return &InteractionHistory{}
}

// Append 追加一条记录并返回其序号
func (h *InteractionHistory) Append(speakerID, text string, action *Action) int {
	seq := len(h.entries)
	h.entries = append(h.entries, InteractionEntry{
		SequenceNo: seq,
		SpeakerID:  speakerID,
		Text:       text,
		Action:     action,
		Timestamp:  time.Now(),
	})
	return seq
}

// Len 记录总数
func (h *InteractionHistory) Len() int {
	return len(h.entries)
}

// Window 返回最近 n 条记录的副本，用于提示词构建
func (h *InteractionHistory) Window(n int) []InteractionEntry {
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	window := make([]InteractionEntry, n)
	copy(window, h.entries[len(h.entries)-n:])
	return window
}

// Entries 返回全部记录的副本
func (h *InteractionHistory) Entries() []InteractionEntry {
	return h.Window(0)
}
