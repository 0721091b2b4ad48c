// internal/services/game_service_test.go
package services

import (
	"context"
	"strings"
	"testing"

	"github.com/AshgroveGames/ParleyCore/internal/models"
)

func lastEvent(t *testing.T, result *models.TurnResult) models.DisplayEvent {
	t.Helper()
	if len(result.Events) == 0 {
		t.Fatal("回合没有产生任何事件")
	}
	return result.Events[len(result.Events)-1]
}

// TestProcessTurnGiveTriggersCounterGiftAndVictory 完整回合：
// 玩家赠出密码本 → 档案员回赠钥匙 → 持有钥匙的胜利条件达成
// NPC回应中越权的accept_offer（没有未决报价）被静默丢弃
func TestProcessTurnGiveTriggersCounterGiftAndVictory(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: `{"intent": "give_item", "confidence": 0.92, "reasoning": "commits to handing the cypher over"}`},
		{text: `{"item_id": "translation_cypher", "target_id": "archivist"}`},
		{text: "At last. Take the key, traveler. The chamber is yours to read."},
		{text: `{"actions": [
			{"intent": "accept_offer"},
			{"intent": "give_item", "item_id": "echo_chamber_key", "target_id": "player"}
		]}`},
		{text: "You pressed the cypher into Maren's hands and the key was yours."},
	}}
	game := newTestGameService(newTestLLMService(provider))
	state := buildChamberState()

	result, err := game.ProcessTurn(context.Background(), state, "Here, take the cypher. It is yours.")
	if err != nil {
		t.Fatalf("回合失败: %v", err)
	}

	if !state.Characters["archivist"].HasItem("translation_cypher") {
		t.Error("密码本应已转移给档案员")
	}
	if !state.Characters["player"].HasItem("echo_chamber_key") {
		t.Error("钥匙应已转移给玩家")
	}
	// 收到赠予的NPC好感度+8；NPC自己的赠予指向玩家，不再变化
	if got := state.Characters["archivist"].Disposition; got != 8 {
		t.Errorf("档案员好感度应为8，实际 %d", got)
	}

	if result.Victory == nil {
		t.Fatal("钥匙到手应判胜")
	}
	if result.Victory.ConditionID != "vc_obtain_key" {
		t.Errorf("胜出条件应为vc_obtain_key，实际 %s", result.Victory.ConditionID)
	}
	if last := lastEvent(t, result); last.Type != models.EventVictory {
		t.Errorf("最后一条事件应是胜利，实际 %s", last.Type)
	}
	if state.TurnCount != 1 {
		t.Errorf("应消耗一个回合，实际 %d", state.TurnCount)
	}
}

// TestProcessTurnCommandBypassesClassifier 显式命令不经过分类与提取
func TestProcessTurnCommandBypassesClassifier(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: "A proper flask. Did not expect that from you."},
		{text: `{"actions": []}`},
	}}
	game := newTestGameService(newTestLLMService(provider))
	state := buildMarketState()

	result, err := game.ProcessTurn(context.Background(), state, "/give silver_flask to brinn")
	if err != nil {
		t.Fatalf("回合失败: %v", err)
	}

	// 对白生成和NPC动作解析各一次，分类器和提取器零调用
	if provider.callCount() != 2 {
		t.Errorf("命令路径应只调用2次网关，实际 %d", provider.callCount())
	}
	if !state.Characters["brinn"].HasItem("silver_flask") {
		t.Error("flask应已转移")
	}
	if got := state.Characters["brinn"].Disposition; got != -2 {
		t.Errorf("收到赠予后好感度应为-2，实际 %d", got)
	}
	if result.Victory != nil {
		t.Errorf("不应判胜: %+v", result.Victory)
	}
}

// TestProcessTurnCommandSyntaxError 命令语法错误不消耗回合、不调用网关
func TestProcessTurnCommandSyntaxError(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{}
	game := newTestGameService(newTestLLMService(provider))
	state := buildMarketState()

	result, err := game.ProcessTurn(context.Background(), state, "/frobnicate the stall")
	if err != nil {
		t.Fatalf("语法错误应回显而不是报错: %v", err)
	}

	if state.TurnCount != 0 {
		t.Errorf("语法错误不应消耗回合，实际 %d", state.TurnCount)
	}
	if provider.callCount() != 0 {
		t.Errorf("语法错误不应触发网关调用，实际 %d", provider.callCount())
	}
	if len(result.Events) != 1 || !strings.Contains(result.Events[0].Text, "unknown command") {
		t.Errorf("应回显命令错误: %+v", result.Events)
	}
}

// TestProcessTurnExtractionFailureDowngrades 提取失败降级为对话，回合继续
func TestProcessTurnExtractionFailureDowngrades(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: `{"intent": "give_item", "confidence": 0.9, "reasoning": "gives something away"}`},
		{text: "this is not json at all"},
		{text: "You talk in riddles, courier."},
		{text: `{"actions": []}`},
	}}
	game := newTestGameService(newTestLLMService(provider))
	state := buildMarketState()

	result, err := game.ProcessTurn(context.Background(), state, "Take... the thing. You know the one.")
	if err != nil {
		t.Fatalf("回合失败: %v", err)
	}

	var sawDowngradeNote bool
	for _, event := range result.Events {
		if event.Type == models.EventNarration && strings.Contains(event.Text, "Nothing comes of it") {
			sawDowngradeNote = true
		}
	}
	if !sawDowngradeNote {
		t.Error("降级应产生解释性旁白")
	}
	if !state.Characters["player"].HasItem("silver_flask") {
		t.Error("降级回合不应转移任何物品")
	}
	if got := state.Characters["brinn"].Disposition; got != -10 {
		t.Errorf("降级回合不应改变好感度，实际 %d", got)
	}
	if state.TurnCount != 1 {
		t.Errorf("降级仍然消耗回合，实际 %d", state.TurnCount)
	}
}

// TestProcessTurnIgnoredRequestLowersDisposition 索取被无视算作拒绝，好感度-2
func TestProcessTurnIgnoredRequestLowersDisposition(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: `{"intent": "take_item", "confidence": 0.88, "reasoning": "asks for the glass outright"}`},
		{text: `{"item_id": "storm_glass", "target_id": "brinn"}`},
		{text: "Hah. No."},
		{text: `{"actions": []}`},
	}}
	game := newTestGameService(newTestLLMService(provider))
	state := buildMarketState()

	_, err := game.ProcessTurn(context.Background(), state, "Hand over the storm-glass.")
	if err != nil {
		t.Fatalf("回合失败: %v", err)
	}

	if !state.Characters["brinn"].HasItem("storm_glass") {
		t.Error("索取本身不转移物品")
	}
	if got := state.Characters["brinn"].Disposition; got != -12 {
		t.Errorf("被无视的索取应使好感度降到-12，实际 %d", got)
	}
}

// TestProcessTurnTradeAcceptedByNPC 交易全流程：挂出报价 → NPC接受 → 双向转移
func TestProcessTurnTradeAcceptedByNPC(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: "A flask for the glass? Done. You drive an honest bargain."},
		{text: `{"actions": [{"intent": "accept_offer"}]}`},
	}}
	game := newTestGameService(newTestLLMService(provider))
	state := buildMarketState()

	result, err := game.ProcessTurn(context.Background(), state, "/trade silver_flask for storm_glass with brinn")
	if err != nil {
		t.Fatalf("回合失败: %v", err)
	}

	if !state.Characters["brinn"].HasItem("silver_flask") {
		t.Error("flask应已易手给Brinn")
	}
	if !state.Characters["player"].HasItem("storm_glass") {
		t.Error("storm_glass应已易手给玩家")
	}
	if got := state.Characters["brinn"].Disposition; got != 0 {
		t.Errorf("成交后好感度应为0，实际 %d", got)
	}
	if len(state.Offers) != 1 || state.Offers[0].Status != models.TradeStatusAccepted {
		t.Errorf("报价应进入accepted终态: %+v", state.Offers)
	}

	var sawSettlement bool
	for _, event := range result.Events {
		if strings.Contains(event.Text, "The trade is struck") {
			sawSettlement = true
		}
	}
	if !sawSettlement {
		t.Error("成交应产生结算事件")
	}
}

// TestProcessTurnNPCContradictionDropsActions 矛盾表态只丢动作，对白保留
func TestProcessTurnNPCContradictionDropsActions(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: "Hmm. Yes. Although... no."},
		{text: `{"actions": [{"intent": "accept_offer"}, {"intent": "decline_offer"}]}`},
	}}
	game := newTestGameService(newTestLLMService(provider))
	state := buildMarketState()

	result, err := game.ProcessTurn(context.Background(), state, "/trade silver_flask for storm_glass with brinn")
	if err != nil {
		t.Fatalf("回合失败: %v", err)
	}

	// 报价保持未决，物品未转移
	if state.OpenOfferFor("brinn") == nil {
		t.Error("动作被丢弃后报价应保持未决")
	}
	if !state.Characters["player"].HasItem("silver_flask") {
		t.Error("物品不应转移")
	}

	var sawDialogue bool
	for _, event := range result.Events {
		if event.Type == models.EventDialogue && event.SpeakerID == "brinn" {
			sawDialogue = true
		}
	}
	if !sawDialogue {
		t.Error("对白应照常展示")
	}
}

// TestProcessTurnEmptyInput 空输入什么都不发生
func TestProcessTurnEmptyInput(t *testing.T) {
	setupTestEnv(t)
	provider := &scriptedProvider{}
	game := newTestGameService(newTestLLMService(provider))
	state := buildMarketState()

	result, err := game.ProcessTurn(context.Background(), state, "   ")
	if err != nil {
		t.Fatalf("空输入不应报错: %v", err)
	}
	if len(result.Events) != 0 || state.TurnCount != 0 || provider.callCount() != 0 {
		t.Errorf("空输入不应产生任何效果: events=%d turns=%d calls=%d",
			len(result.Events), state.TurnCount, provider.callCount())
	}
}

// TestProcessTurnVictorySkipsNPCResponse 玩家动作直接判胜时不再生成NPC回应
func TestProcessTurnVictorySkipsNPCResponse(t *testing.T) {
	setupTestEnv(t)
	state := buildMarketState()
	state.Scenario.VictoryConditions = []models.VictoryCondition{{
		ID:          "vc_deliver",
		Type:        models.VictoryCharacterHasItem,
		CharacterID: "brinn",
		ItemID:      "sealed_letters",
		Description: "The letters reached Brinn.",
	}}
	// 脚本只够胜利叙事一次调用，NPC回应若被触发会多消耗脚本
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: "The letters changed hands and the market noise swallowed the moment."},
	}}
	game := newTestGameService(newTestLLMService(provider))

	result, err := game.ProcessTurn(context.Background(), state, "/give sealed_letters to brinn")
	if err != nil {
		t.Fatalf("回合失败: %v", err)
	}

	if result.Victory == nil || result.Victory.ConditionID != "vc_deliver" {
		t.Fatalf("应判胜: %+v", result.Victory)
	}
	if provider.callCount() != 1 {
		t.Errorf("判胜后不应再生成NPC回应，网关调用 %d 次", provider.callCount())
	}
	for _, event := range result.Events {
		if event.Type == models.EventDialogue && event.SpeakerID == "brinn" {
			t.Error("判胜后不应有NPC对白")
		}
	}
}
