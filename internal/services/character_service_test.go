// internal/services/character_service_test.go
package services

import (
	"context"
	"strings"
	"testing"

	"github.com/AshgroveGames/ParleyCore/internal/models"
)

// TestGenerateDialoguePersona 人设提示词携带性格、目标、好感度和持有物
func TestGenerateDialoguePersona(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: "State your business, courier."},
	}}
	characters := NewCharacterService(newTestLLMService(provider))
	state := buildMarketState()

	playerAction := &models.Action{
		Intent:  models.IntentDialogue,
		ActorID: "player",
		RawText: "Morning, Brinn.",
	}
	dialogue, err := characters.GenerateDialogue(context.Background(), state, "brinn", playerAction)
	if err != nil {
		t.Fatalf("对白生成失败: %v", err)
	}
	if dialogue != "State your business, courier." {
		t.Errorf("对白应透传模型输出，实际 %q", dialogue)
	}

	if provider.callCount() != 1 {
		t.Fatalf("应恰好调用一次网关，实际 %d", provider.callCount())
	}
	system := provider.requests[0].SystemPrompt
	for _, fragment := range []string{"Brinn", "Blunt, fair", "Close one good trade", "-10", "storm-glass"} {
		if !strings.Contains(system, fragment) {
			t.Errorf("人设提示词应包含 %q", fragment)
		}
	}
	if !strings.Contains(provider.requests[0].Prompt, "Morning, Brinn.") {
		t.Error("对话提示词应包含玩家的最新发言")
	}
}

// TestGenerateDialogueAppliedActionNote 已生效的交易动作在提示词里标注
func TestGenerateDialogueAppliedActionNote(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: "A gift? Suspicious. But accepted."},
	}}
	characters := NewCharacterService(newTestLLMService(provider))
	state := buildMarketState()

	playerAction := &models.Action{
		Intent:  models.IntentGiveItem,
		ActorID: "player",
		RawText: "Take the flask, no strings.",
		Give:    &models.GiveItemParams{ItemID: "silver_flask", TargetID: "brinn"},
	}
	if _, err := characters.GenerateDialogue(context.Background(), state, "brinn", playerAction); err != nil {
		t.Fatalf("对白生成失败: %v", err)
	}

	prompt := provider.requests[0].Prompt
	if !strings.Contains(prompt, "give_item") {
		t.Errorf("提示词应标注已生效的动作类型: %q", prompt)
	}
}

// TestGenerateDialogueDowngradeHidden 降级原因不泄露给角色
func TestGenerateDialogueDowngradeHidden(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: "You are not making sense."},
	}}
	characters := NewCharacterService(newTestLLMService(provider))
	state := buildMarketState()

	playerAction := &models.Action{
		Intent:          models.IntentDialogue,
		ActorID:         "player",
		RawText:         "Give me the glass I already own!",
		DowngradedFrom:  models.IntentTakeItem,
		DowngradeReason: "Brinn does not hold that item",
	}
	if _, err := characters.GenerateDialogue(context.Background(), state, "brinn", playerAction); err != nil {
		t.Fatalf("对白生成失败: %v", err)
	}

	prompt := provider.requests[0].Prompt
	if strings.Contains(prompt, "does not hold") {
		t.Error("降级原因不应出现在角色提示词里")
	}
	if !strings.Contains(prompt, "Give me the glass I already own!") {
		t.Error("原话语应原样呈现给角色")
	}
}

// TestSanitizeDialogue 清理引号与名字前缀
func TestSanitizeDialogue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"引号剥除", `"No deal."`, "No deal."},
		{"中文弯引号", "“No deal.”", "No deal."},
		{"名字前缀", "Brinn: No deal.", "No deal."},
		{"干净文本不动", "No deal.", "No deal."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeDialogue(tt.input, "Brinn"); got != tt.want {
				t.Errorf("sanitizeDialogue(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestDispositionTable 好感度规则表的确定性取值
func TestDispositionTable(t *testing.T) {
	tests := []struct {
		event DispositionEvent
		want  int
	}{
		{DispositionTradeAccepted, 10},
		{DispositionGiftReceived, 8},
		{DispositionTradeDeclined, -6},
		{DispositionOfferDeclined, -4},
		{DispositionRequestDenied, -2},
	}
	for _, tt := range tests {
		if got := DispositionDelta(tt.event); got != tt.want {
			t.Errorf("DispositionDelta(%s) = %d, want %d", tt.event, got, tt.want)
		}
	}
}
