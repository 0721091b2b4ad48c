// internal/services/npc_parser_service_test.go
package services

import (
	"context"
	"testing"

	apperrors "github.com/AshgroveGames/ParleyCore/internal/errors"
	"github.com/AshgroveGames/ParleyCore/internal/models"
)

// TestParseActionsMultiple 单次对白可携带多个动作，顺序保持出现顺序
func TestParseActionsMultiple(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: `{"actions": [
			{"intent": "give_item", "item_id": "storm_glass", "target_id": "player"},
			{"intent": "take_item", "item_id": "silver_flask", "target_id": "player"}
		]}`},
	}}
	parser := NewNPCParserService(newTestLLMService(provider))
	state := buildMarketState()

	actions, err := parser.ParseActions(context.Background(), state.Snapshot(), "brinn",
		"Take the glass, but I want that flask of yours.")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	if len(actions) != 2 {
		t.Fatalf("应解析出2个动作，实际 %d", len(actions))
	}
	if actions[0].Intent != models.IntentGiveItem || actions[1].Intent != models.IntentTakeItem {
		t.Errorf("动作顺序应与对白一致: %s, %s", actions[0].Intent, actions[1].Intent)
	}
	if actions[0].ActorID != "brinn" {
		t.Errorf("动作行动方应为NPC自身，实际 %s", actions[0].ActorID)
	}
}

// TestParseActionsEmpty 只说话不行动的回应产出空列表
func TestParseActionsEmpty(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: `{"actions": []}`},
	}}
	parser := NewNPCParserService(newTestLLMService(provider))
	state := buildMarketState()

	actions, err := parser.ParseActions(context.Background(), state.Snapshot(), "brinn", "We shall see.")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("无动作回应应产出空列表，实际 %d", len(actions))
	}
}

// TestParseActionsContradiction 同一回应既接受又拒绝视为提取失败
func TestParseActionsContradiction(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: `{"actions": [
			{"intent": "accept_offer"},
			{"intent": "decline_offer"}
		]}`},
	}}
	parser := NewNPCParserService(newTestLLMService(provider))
	state := buildMarketState()

	_, err := parser.ParseActions(context.Background(), state.Snapshot(), "brinn", "Yes. No. Maybe.")
	if err == nil {
		t.Fatal("矛盾表态应报提取失败")
	}
	if !apperrors.IsExtractionError(err) {
		t.Errorf("错误类型应为提取失败: %v", err)
	}
}

// TestParseActionsUnresolvedReference 引用落空视为提取失败，动作整体丢弃
func TestParseActionsUnresolvedReference(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: `{"actions": [{"intent": "give_item", "item_id": "golden_crown", "target_id": "player"}]}`},
	}}
	parser := NewNPCParserService(newTestLLMService(provider))
	state := buildMarketState()

	_, err := parser.ParseActions(context.Background(), state.Snapshot(), "brinn", "Here, a crown for you.")
	if err == nil {
		t.Fatal("落空的物品引用应报提取失败")
	}
	if !apperrors.IsExtractionError(err) {
		t.Errorf("错误类型应为提取失败: %v", err)
	}
}

// TestParseActionsSkipsChatterIntents dialogue与unknown条目直接跳过
func TestParseActionsSkipsChatterIntents(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: `{"actions": [
			{"intent": "dialogue"},
			{"intent": "unknown"},
			{"intent": "accept_offer"}
		]}`},
	}}
	parser := NewNPCParserService(newTestLLMService(provider))
	state := buildMarketState()

	actions, err := parser.ParseActions(context.Background(), state.Snapshot(), "brinn", "Fine. Deal.")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(actions) != 1 || actions[0].Intent != models.IntentAcceptOffer {
		t.Errorf("应只剩accept_offer一个动作，实际 %+v", actions)
	}
}
