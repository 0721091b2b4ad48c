// internal/services/classifier_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/AshgroveGames/ParleyCore/internal/config"
	apperrors "github.com/AshgroveGames/ParleyCore/internal/errors"
	"github.com/AshgroveGames/ParleyCore/internal/models"
	"github.com/AshgroveGames/ParleyCore/internal/utils"
)

// ClassifierService 玩家话语解析的第一阶段：只判断意图类别，不提取参数
// 网关失败或模型输出越界一律收敛为 unknown，分类器对调用方永不报错
type ClassifierService struct {
	LLMService *LLMService
}

// NewClassifierService 创建意图分类器
func NewClassifierService(llmService *LLMService) *ClassifierService {
	return &ClassifierService{LLMService: llmService}
}

// classificationPayload 模型返回的分类结果
type classificationPayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

const classifierSystemPrompt = `You are an intent classifier for a narrative trading game.
Classify the player's utterance into exactly one intent from this fixed set:

- dialogue: plain speech, questions, smalltalk, persuasion without a concrete transaction
- give_item: the player hands one of their own items to a character, expecting nothing in return
- take_item: the player asks a character to hand over one specific item, offering nothing in return
- propose_trade: the player proposes an exchange: items they give for items they want
- accept_offer: the player agrees to the currently open trade offer directed at them
- decline_offer: the player rejects the currently open trade offer directed at them
- counter_offer: the player responds to the open offer directed at them with different terms
- unknown: none of the above fits, or the utterance is unintelligible

Rules:
- accept_offer, decline_offer and counter_offer only make sense while an open offer targets the player. Without one, prefer dialogue or unknown.
- Mentioning an item in conversation is not a transaction. Classify as a transaction only when the utterance commits to one.
- confidence is your calibrated probability in [0,1] that the chosen intent is correct.`

// Classify 对玩家话语做意图分类
// 返回的 Classification 永远合法：意图在固定集合内，置信度已过阈值检查
func (s *ClassifierService) Classify(ctx context.Context, snapshot models.StateSnapshot, playerText string, history []models.InteractionEntry) models.Classification {
	prompt := buildClassifierPrompt(snapshot, playerText, history)

	var payload classificationPayload
	err := s.LLMService.CreateStructuredCompletion(ctx, "classifier", "intent_classification", prompt, classifierSystemPrompt, &payload)
	if err != nil {
		// 网关或解析失败不能让整回合失败，收敛为 unknown
		utils.GetLogger().Warn("意图分类失败，按 unknown 处理", map[string]interface{}{
			"error": err.Error(),
		})
		return models.Classification{
			Intent:     models.IntentUnknown,
			Confidence: 0,
			Reasoning:  classifyFailureReason(err),
		}
	}

	intent := models.Intent(strings.TrimSpace(strings.ToLower(payload.Intent)))
	if !intent.Valid() {
		utils.GetLogger().Warn("分类器输出了集合外的意图", map[string]interface{}{
			"intent": payload.Intent,
		})
		return models.Classification{
			Intent:     models.IntentUnknown,
			Confidence: 0,
			Reasoning:  fmt.Sprintf("classifier produced an unrecognized intent %q", payload.Intent),
		}
	}

	threshold := config.DefaultConfidenceThreshold
	if cfg := config.GetCurrentConfig(); cfg != nil && cfg.IntentConfidenceThreshold > 0 {
		threshold = cfg.IntentConfidenceThreshold
	}
	if payload.Confidence < threshold && intent != models.IntentUnknown {
		return models.Classification{
			Intent:     models.IntentUnknown,
			Confidence: payload.Confidence,
			Reasoning:  fmt.Sprintf("confidence %.2f below threshold %.2f for %s", payload.Confidence, threshold, intent),
		}
	}

	return models.Classification{
		Intent:     intent,
		Confidence: payload.Confidence,
		Reasoning:  payload.Reasoning,
	}
}

func classifyFailureReason(err error) string {
	if apperrors.IsGatewayError(err) {
		return "model gateway unavailable"
	}
	return "classification output unusable"
}

// buildClassifierPrompt 组装分类提示词：状态摘要 + 历史窗口 + 当前话语
func buildClassifierPrompt(snapshot models.StateSnapshot, playerText string, history []models.InteractionEntry) string {
	var sb strings.Builder

	sb.WriteString("Current scene state:\n")
	sb.WriteString(formatSnapshot(snapshot))

	if len(history) > 0 {
		sb.WriteString("\nRecent interaction history (oldest first):\n")
		sb.WriteString(formatHistory(snapshot, history))
	}

	sb.WriteString("\nPlayer utterance:\n")
	sb.WriteString(playerText)
	sb.WriteString("\n\nOutput schema: {\"intent\": \"...\", \"confidence\": 0.0, \"reasoning\": \"...\"}")

	return sb.String()
}

// formatSnapshot 把状态切片渲染为提示词里的场景摘要
func formatSnapshot(snapshot models.StateSnapshot) string {
	var sb strings.Builder

	if snapshot.LocationName != "" {
		sb.WriteString(fmt.Sprintf("Location: %s\n", snapshot.LocationName))
	}
	for _, c := range snapshot.Characters {
		role := "NPC"
		if c.IsPlayer {
			role = "player"
		}
		items := "nothing"
		if len(c.Items) > 0 {
			names := make([]string, len(c.Items))
			for i, item := range c.Items {
				names[i] = fmt.Sprintf("%s (id: %s)", item.Name, item.ID)
			}
			items = strings.Join(names, ", ")
		}
		if c.IsPlayer {
			sb.WriteString(fmt.Sprintf("- %s (id: %s, %s) carries: %s\n", c.Name, c.ID, role, items))
		} else {
			sb.WriteString(fmt.Sprintf("- %s (id: %s, %s, disposition toward player: %d) carries: %s\n",
				c.Name, c.ID, role, c.Disposition, items))
		}
	}

	if len(snapshot.OpenOffers) == 0 {
		sb.WriteString("Open trade offers: none\n")
	} else {
		sb.WriteString("Open trade offers:\n")
		for _, offer := range snapshot.OpenOffers {
			sb.WriteString(fmt.Sprintf("- offer %s: %s gives [%s] to %s in exchange for [%s]\n",
				offer.ID, offer.ProposerID,
				strings.Join(offer.OfferedItems, ", "),
				offer.TargetID,
				strings.Join(offer.RequestedItems, ", ")))
		}
	}

	return sb.String()
}

// formatHistory 渲染历史窗口，动作条目带上意图标注
func formatHistory(snapshot models.StateSnapshot, history []models.InteractionEntry) string {
	var sb strings.Builder
	for _, entry := range history {
		name := entry.SpeakerID
		if c, ok := snapshot.Character(entry.SpeakerID); ok {
			name = c.Name
		}
		line := fmt.Sprintf("%s: %s", name, entry.Text)
		if entry.Action != nil && entry.Action.Intent != models.IntentDialogue {
			line += fmt.Sprintf(" [%s]", entry.Action.Intent)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
