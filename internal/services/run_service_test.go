// internal/services/run_service_test.go
package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/AshgroveGames/ParleyCore/internal/errors"
	"github.com/AshgroveGames/ParleyCore/internal/storage"
)

// newTestRunService 用磁盘内容包和脚本化网关组装运行管理器
func newTestRunService(t *testing.T, provider *scriptedProvider) *RunService {
	t.Helper()
	setupTestEnv(t)

	base := t.TempDir()
	files := map[string]string{
		"scenarios/market.json": `{
			"name": "Salt Market",
			"location_id": "market",
			"player_id": "courier",
			"character_ids": ["brinn"],
			"victory_conditions": [
				{"id": "vc_deliver", "type": "character_has_item", "character_id": "brinn", "item_id": "sealed_letters",
				 "description": "The letters reached Brinn."}
			]
		}`,
		"locations/market.json":    `{"name": "Salt Market", "description": "Stalls in the wind."}`,
		"characters/courier.json":  `{"name": "Courier", "items": [{"id": "sealed_letters", "name": "sealed letters"}]}`,
		"characters/brinn.json":    `{"name": "Brinn", "disposition": -10, "items": [{"id": "storm_glass", "name": "storm-glass"}]}`,
		"items/sealed_letters.json": `{"name": "sealed letters"}`,
		"items/storm_glass.json":    `{"name": "storm-glass"}`,
	}
	for rel, content := range files {
		path := filepath.Join(base, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("创建目录失败: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("写入内容文件失败: %v", err)
		}
	}

	store, err := storage.NewContentStore(base)
	if err != nil {
		t.Fatalf("创建内容存储失败: %v", err)
	}

	llmService := newTestLLMService(provider)
	rs := NewRunService(store, newTestGameService(llmService), NewGameMasterServiceWithLLM(llmService))
	t.Cleanup(rs.Shutdown)
	return rs
}

// TestCreateRunAndIntro 创建运行返回开场旁白，运行可查找
func TestCreateRunAndIntro(t *testing.T) {
	rs := newTestRunService(t, &scriptedProvider{})

	run, intro, err := rs.CreateRun("market")
	if err != nil {
		t.Fatalf("创建运行失败: %v", err)
	}

	if run.ID == "" {
		t.Error("运行应分配ID")
	}
	for _, fragment := range []string{"Salt Market", "Brinn", "sealed letters"} {
		if !strings.Contains(intro, fragment) {
			t.Errorf("开场旁白应包含 %q", fragment)
		}
	}

	if _, err := rs.GetRun(run.ID); err != nil {
		t.Errorf("刚创建的运行应可查找: %v", err)
	}
	if _, err := rs.GetRun("no-such-run"); !apperrors.IsNotFoundError(err) {
		t.Errorf("未知运行应报not_found: %v", err)
	}
}

// TestCreateRunUnknownScenario 剧本不存在时创建失败
func TestCreateRunUnknownScenario(t *testing.T) {
	rs := newTestRunService(t, &scriptedProvider{})

	_, _, err := rs.CreateRun("no-such-scenario")
	if err == nil {
		t.Fatal("未知剧本应报错")
	}
	if !apperrors.IsContentError(err) {
		t.Errorf("错误类型应为内容错误: %v", err)
	}
}

// TestSubmitInputVictoryEndsRun 胜利达成后运行进入终态，后续输入被拒绝
func TestSubmitInputVictoryEndsRun(t *testing.T) {
	// 命令直达胜利，脚本只需胜利叙事一次调用
	rs := newTestRunService(t, &scriptedProvider{replies: []scriptedReply{
		{text: "The letters changed hands and the market noise swallowed the moment."},
	}})

	run, _, err := rs.CreateRun("market")
	if err != nil {
		t.Fatalf("创建运行失败: %v", err)
	}

	result, err := rs.SubmitInput(context.Background(), run.ID, "/give sealed_letters to brinn")
	if err != nil {
		t.Fatalf("回合失败: %v", err)
	}
	if result.Victory == nil {
		t.Fatal("送信应直接判胜")
	}
	if !run.Ended || run.EndReason != "victory" {
		t.Errorf("胜利后运行应进入终态: ended=%v reason=%q", run.Ended, run.EndReason)
	}

	_, err = rs.SubmitInput(context.Background(), run.ID, "/say anyone there?")
	if !apperrors.IsValidationError(err) {
		t.Errorf("已结束的运行应拒绝输入: %v", err)
	}
}

// TestEndRunEpilogue 主动退出返回结语并锁定运行
func TestEndRunEpilogue(t *testing.T) {
	rs := newTestRunService(t, &scriptedProvider{})

	run, _, err := rs.CreateRun("market")
	if err != nil {
		t.Fatalf("创建运行失败: %v", err)
	}

	epilogue, err := rs.EndRun(run.ID)
	if err != nil {
		t.Fatalf("结束运行失败: %v", err)
	}
	if !strings.Contains(epilogue, "0 turns") {
		t.Errorf("结语应提及回合数: %q", epilogue)
	}
	if !run.Ended || run.EndReason != "quit" {
		t.Errorf("退出后运行应进入终态: ended=%v reason=%q", run.Ended, run.EndReason)
	}
}

// TestRemoveRunAndList 移除后不再出现在列表中
func TestRemoveRunAndList(t *testing.T) {
	rs := newTestRunService(t, &scriptedProvider{})

	run, _, err := rs.CreateRun("market")
	if err != nil {
		t.Fatalf("创建运行失败: %v", err)
	}
	if got := rs.ListRuns(); len(got) != 1 {
		t.Fatalf("应有1个活跃运行，实际 %v", got)
	}

	rs.RemoveRun(run.ID)
	if got := rs.ListRuns(); len(got) != 0 {
		t.Errorf("移除后列表应为空，实际 %v", got)
	}
}

// TestCleanupStaleRuns 超过TTL无活动的运行被清理
func TestCleanupStaleRuns(t *testing.T) {
	rs := newTestRunService(t, &scriptedProvider{})

	run, _, err := rs.CreateRun("market")
	if err != nil {
		t.Fatalf("创建运行失败: %v", err)
	}

	run.LastActive = time.Now().Add(-3 * time.Hour)
	rs.cleanupStaleRuns()

	if _, err := rs.GetRun(run.ID); !apperrors.IsNotFoundError(err) {
		t.Errorf("过期运行应被清理: %v", err)
	}
}
