// internal/trace/trace.go
package trace

import "time"

// Event 一次模型网关调用的遥测事件
// 纯观测用途，任何组件不得依据它做控制流决策
type Event struct {
	Component  string    `json:"component"`
	Purpose    string    `json:"purpose"`
	ModelID    string    `json:"model_id"`
	SequenceNo int64     `json:"sequence_no"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sink 遥测事件接收器
// Record 不返回错误：接收器内部失败只能记日志，不能影响调用方
type Sink interface {
	Record(event Event)
	Close() error
}

// NopSink 丢弃所有事件的空接收器
type NopSink struct{}

func (NopSink) Record(Event) {}

func (NopSink) Close() error { return nil }
