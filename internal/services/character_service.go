// internal/services/character_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/AshgroveGames/ParleyCore/internal/config"
	"github.com/AshgroveGames/ParleyCore/internal/models"
)

// CharacterService 负责NPC的角色扮演回应
// 人设、好感度、物品栏和未决报价都进提示词，模型只产出对白文本
// 对白可能附带的动作由 NPCParserService 在下一阶段解析
type CharacterService struct {
	LLMService *LLMService
}

// NewCharacterService 创建角色服务
func NewCharacterService(llmService *LLMService) *CharacterService {
	return &CharacterService{LLMService: llmService}
}

// DispositionEvent 触发好感度变化的事件类别
type DispositionEvent string

const (
	DispositionTradeAccepted DispositionEvent = "trade_accepted" // 与该NPC的交易成交
	DispositionGiftReceived  DispositionEvent = "gift_received"  // NPC收到无偿赠予
	DispositionTradeDeclined DispositionEvent = "trade_declined" // NPC的报价被拒
	DispositionOfferDeclined DispositionEvent = "offer_declined" // NPC拒绝了对方报价
	DispositionRequestDenied DispositionEvent = "request_denied" // NPC的索取被无视
)

// dispositionTable 好感度规则表，确定性且有界
var dispositionTable = map[DispositionEvent]int{
	DispositionTradeAccepted: 10,
	DispositionGiftReceived:  8,
	DispositionTradeDeclined: -6,
	DispositionOfferDeclined: -4,
	DispositionRequestDenied: -2,
}

// DispositionDelta 查询事件对应的好感度变化量
func DispositionDelta(event DispositionEvent) int {
	return dispositionTable[event]
}

// GenerateDialogue 生成NPC对玩家最新发言的对白回应
func (s *CharacterService) GenerateDialogue(ctx context.Context, state *models.GameState, npcID string, playerAction *models.Action) (string, error) {
	npc, ok := state.Character(npcID)
	if !ok {
		return "", fmt.Errorf("角色不存在: %s", npcID)
	}

	window := config.DefaultHistoryWindow
	if cfg := config.GetCurrentConfig(); cfg != nil && cfg.HistoryWindow > 0 {
		window = cfg.HistoryWindow
	}

	systemPrompt := buildPersonaPrompt(state, npc)
	prompt := buildDialoguePrompt(state, npc, playerAction, state.History.Window(window))

	text, err := s.LLMService.CreateTextCompletion(ctx, "character", "npc_dialogue", prompt, systemPrompt)
	if err != nil {
		return "", err
	}
	return sanitizeDialogue(text, npc.Name), nil
}

// buildPersonaPrompt 人设提示词：角色是谁、想要什么、对玩家观感如何
func buildPersonaPrompt(state *models.GameState, npc *models.Character) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("You are %s, a character in a live interactive scene. Stay in character at all times.\n\n", npc.Name))
	sb.WriteString(fmt.Sprintf("Personality: %s\n", npc.Personality))
	if npc.Goal != "" {
		sb.WriteString(fmt.Sprintf("Your private goal: %s\n", npc.Goal))
	}

	sb.WriteString(fmt.Sprintf("Your disposition toward the player is %d on a scale from %d (hostile) to %d (devoted). Let it color your tone and willingness to deal.\n",
		npc.Disposition, models.DispositionMin, models.DispositionMax))

	if len(npc.Items) > 0 {
		sb.WriteString(fmt.Sprintf("You carry: %s.\n", strings.Join(npc.ItemNames(), ", ")))
	} else {
		sb.WriteString("You carry nothing.\n")
	}

	sb.WriteString(`
Guidelines:
- Reply with spoken dialogue only, a few sentences at most. No stage directions, no quotation marks, no name prefix.
- You may hand over items, ask for items, propose or answer trades when it fits your goal and disposition, but only with items actually held.
- Never invent items or characters that are not in the scene.`)

	return sb.String()
}

// buildDialoguePrompt 对话提示词：场景状态 + 历史窗口 + 玩家刚才做了什么
func buildDialoguePrompt(state *models.GameState, npc *models.Character, playerAction *models.Action, history []models.InteractionEntry) string {
	snapshot := state.Snapshot()
	var sb strings.Builder

	sb.WriteString("Scene state:\n")
	sb.WriteString(formatSnapshot(snapshot))

	if len(history) > 0 {
		sb.WriteString("\nConversation so far (oldest first):\n")
		sb.WriteString(formatHistory(snapshot, history))
	}

	player := state.Player()
	playerName := "The player"
	if player != nil {
		playerName = player.Name
	}

	sb.WriteString("\n")
	switch {
	case playerAction == nil:
		sb.WriteString(fmt.Sprintf("%s is waiting for you to speak.\n", playerName))
	case playerAction.IsDowngrade():
		// 被降级的动作对NPC呈现为原话语，降级原因不泄露给角色
		sb.WriteString(fmt.Sprintf("%s just said: %s\n", playerName, playerAction.RawText))
	case playerAction.Intent == models.IntentDialogue:
		sb.WriteString(fmt.Sprintf("%s just said: %s\n", playerName, playerAction.RawText))
	default:
		sb.WriteString(fmt.Sprintf("%s just said: %s\n", playerName, playerAction.RawText))
		sb.WriteString(fmt.Sprintf("(This was carried out as a %s action; the scene state above already reflects it.)\n", playerAction.Intent))
	}

	sb.WriteString(fmt.Sprintf("\nRespond as %s.", npc.Name))
	return sb.String()
}

// sanitizeDialogue 清理模型输出里常见的引号和名字前缀
func sanitizeDialogue(text, npcName string) string {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "\"“”")
	prefix := npcName + ":"
	if strings.HasPrefix(text, prefix) {
		text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
	}
	return text
}
