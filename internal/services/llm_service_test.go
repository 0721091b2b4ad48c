// internal/services/llm_service_test.go
package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	apperrors "github.com/AshgroveGames/ParleyCore/internal/errors"
	"github.com/AshgroveGames/ParleyCore/internal/trace"
)

// TestCleanJSONString 模型输出清洗：围栏、前后缀噪声、零宽字符
func TestCleanJSONString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "纯净JSON原样保留",
			input: `{"intent": "dialogue"}`,
			want:  `{"intent": "dialogue"}`,
		},
		{
			name:  "markdown围栏",
			input: "```json\n{\"intent\": \"dialogue\"}\n```",
			want:  `{"intent": "dialogue"}`,
		},
		{
			name:  "前置说明文字",
			input: `Here is the classification: {"intent": "give_item"}`,
			want:  `{"intent": "give_item"}`,
		},
		{
			name:  "尾注被截断",
			input: `{"intent": "dialogue"} I hope that helps!`,
			want:  `{"intent": "dialogue"}`,
		},
		{
			name:  "字符串值里的大括号不干扰配平",
			input: `{"reasoning": "uses { and } freely"} trailing`,
			want:  `{"reasoning": "uses { and } freely"}`,
		},
		{
			name:  "数组顶层",
			input: "some preamble [1, 2, 3] postscript",
			want:  "[1, 2, 3]",
		},
		{
			name:  "零宽字符被剔除",
			input: "\u200b{\"ok\":\u200ctrue}\u200d",
			want:  `{"ok":true}`,
		},
		{
			name:  "BOM被剔除",
			input: "\ufeff{\"ok\":true}",
			want:  `{"ok":true}`,
		},
		{
			name:  "完全不是JSON原样返回",
			input: "I cannot answer that.",
			want:  "I cannot answer that.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanJSONString(tt.input); got != tt.want {
				t.Errorf("cleanJSONString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestStructuredCompletionErrorTaxonomy 传输失败是网关错误，解析失败是提取错误
func TestStructuredCompletionErrorTaxonomy(t *testing.T) {
	setupTestEnv(t)

	t.Run("传输失败", func(t *testing.T) {
		provider := &scriptedProvider{replies: []scriptedReply{
			{err: errors.New("connection reset")},
		}}
		svc := newTestLLMService(provider)

		var out map[string]interface{}
		err := svc.CreateStructuredCompletion(context.Background(), "test", "taxonomy", "prompt", "system", &out)
		if !apperrors.IsGatewayError(err) {
			t.Errorf("传输失败应为网关错误: %v", err)
		}
	})

	t.Run("输出无法解析", func(t *testing.T) {
		provider := &scriptedProvider{replies: []scriptedReply{
			{text: "that depends on what you mean"},
		}}
		svc := newTestLLMService(provider)

		var out map[string]interface{}
		err := svc.CreateStructuredCompletion(context.Background(), "test", "taxonomy", "prompt", "system", &out)
		if !apperrors.IsExtractionError(err) {
			t.Errorf("解析失败应为提取错误: %v", err)
		}
	})

	t.Run("网关未就绪", func(t *testing.T) {
		svc := NewEmptyLLMService()

		var out map[string]interface{}
		err := svc.CreateStructuredCompletion(context.Background(), "test", "taxonomy", "prompt", "system", &out)
		if !apperrors.IsGatewayError(err) {
			t.Errorf("未就绪的网关应报网关错误: %v", err)
		}
	})
}

// TestCompletionCache 相同请求命中缓存，不重复调用提供商
func TestCompletionCache(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: "The wind holds steady."},
	}}
	svc := newTestLLMService(provider)

	first, err := svc.CreateTextCompletion(context.Background(), "test", "cache", "prompt", "system")
	if err != nil {
		t.Fatalf("首次调用失败: %v", err)
	}
	second, err := svc.CreateTextCompletion(context.Background(), "test", "cache", "prompt", "system")
	if err != nil {
		t.Fatalf("二次调用失败: %v", err)
	}

	if first != second {
		t.Errorf("缓存结果应一致: %q vs %q", first, second)
	}
	if provider.callCount() != 1 {
		t.Errorf("第二次应命中缓存，提供商调用次数 %d", provider.callCount())
	}
}

// captureSink 收集遥测事件的测试接收器
type captureSink struct {
	mu     sync.Mutex
	events []trace.Event
}

func (c *captureSink) Record(e trace.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) Close() error { return nil }

// TestTraceRecording 每次网关调用记录一条遥测事件，序号单调递增
func TestTraceRecording(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: "First."},
		{text: "Second."},
	}}
	svc := newTestLLMService(provider)
	sink := &captureSink{}
	svc.SetTraceSink(sink)

	if _, err := svc.CreateTextCompletion(context.Background(), "character", "npc_dialogue", "p1", "s"); err != nil {
		t.Fatalf("调用失败: %v", err)
	}
	if _, err := svc.CreateTextCompletion(context.Background(), "game_master", "victory_epilogue", "p2", "s"); err != nil {
		t.Fatalf("调用失败: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 2 {
		t.Fatalf("应记录2条遥测事件，实际 %d", len(sink.events))
	}
	if sink.events[0].Component != "character" || sink.events[1].Component != "game_master" {
		t.Errorf("组件标注错误: %+v", sink.events)
	}
	if sink.events[1].SequenceNo <= sink.events[0].SequenceNo {
		t.Errorf("遥测序号应单调递增: %d, %d", sink.events[0].SequenceNo, sink.events[1].SequenceNo)
	}
}

// TestResolveModel 模型解析顺序：请求值 > 配置默认 > 提供商默认
func TestResolveModel(t *testing.T) {
	svc := createBaseLLMService()
	svc.providerName = "openrouter"

	if got := svc.resolveModel("explicit-model"); got != "explicit-model" {
		t.Errorf("请求指定的模型优先: %q", got)
	}
	if got := svc.resolveModel(""); got != providerDefaultModels["openrouter"] {
		t.Errorf("无配置时落到提供商默认: %q", got)
	}

	svc.activeDefaultModel = "configured-model"
	if got := svc.resolveModel(""); got != "configured-model" {
		t.Errorf("配置默认优先于提供商默认: %q", got)
	}
}
