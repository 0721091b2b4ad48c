// internal/storage/content_store_test.go
package storage

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/AshgroveGames/ParleyCore/internal/errors"
)

// writeContentFixtures 在临时目录里铺一套最小可用的内容包
func writeContentFixtures(t *testing.T, files map[string]string) string {
	t.Helper()
	base := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(base, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("创建目录失败: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("写入内容文件失败: %v", err)
		}
	}
	return base
}

func minimalContentPack() map[string]string {
	return map[string]string{
		"scenarios/harbor.json": `{
			"name": "The Harbor",
			"location_id": "dock",
			"player_id": "courier",
			"character_ids": ["brinn"],
			"victory_conditions": [
				{"id": "vc_glass", "type": "character_has_item", "character_id": "courier", "item_id": "storm_glass"}
			]
		}`,
		"locations/dock.json": `{"name": "Dock", "description": "Wet planks, cold wind."}`,
		"characters/courier.json": `{
			"name": "Courier",
			"items": [{"id": "silver_flask"}]
		}`,
		"characters/brinn.json": `{
			"name": "Brinn",
			"disposition": -10,
			"items": [{"id": "storm_glass", "name": "storm-glass"}]
		}`,
		"items/silver_flask.json": `{"name": "silver flask", "description": "Dented but honest."}`,
		"items/storm_glass.json":  `{"name": "storm-glass"}`,
	}
}

// TestBuildGameState 完整加载：角色、地点、物品展开与玩家标记
func TestBuildGameState(t *testing.T) {
	base := writeContentFixtures(t, minimalContentPack())
	store, err := NewContentStore(base)
	if err != nil {
		t.Fatalf("创建内容存储失败: %v", err)
	}

	state, err := store.BuildGameState("harbor")
	if err != nil {
		t.Fatalf("构建游戏状态失败: %v", err)
	}

	player := state.Player()
	if player == nil || player.ID != "courier" {
		t.Fatalf("player_id指定的角色应被标记为玩家: %+v", player)
	}

	// 物品栏里只写了ID的物品应展开为完整记录
	flask, ok := player.FindItem("silver_flask")
	if !ok {
		t.Fatal("玩家应持有silver_flask")
	}
	if flask.Name != "silver flask" {
		t.Errorf("物品引用应展开出名称，实际 %q", flask.Name)
	}

	if _, ok := state.Characters["brinn"]; !ok {
		t.Error("NPC应已加载")
	}
	if _, ok := state.Locations["dock"]; !ok {
		t.Error("地点应已加载")
	}
	if _, ok := state.Items["storm_glass"]; !ok {
		t.Error("物品定义表应包含NPC持有的物品")
	}
	if state.Scenario.ID != "harbor" {
		t.Errorf("剧本ID应从文件名回填，实际 %q", state.Scenario.ID)
	}
}

// TestBuildGameStateMissingCharacter 引用的角色缺失是内容完整性错误
func TestBuildGameStateMissingCharacter(t *testing.T) {
	pack := minimalContentPack()
	delete(pack, "characters/brinn.json")
	base := writeContentFixtures(t, pack)
	store, err := NewContentStore(base)
	if err != nil {
		t.Fatalf("创建内容存储失败: %v", err)
	}

	_, err = store.BuildGameState("harbor")
	if err == nil {
		t.Fatal("缺失的角色引用应报错")
	}
	if !apperrors.IsContentError(err) {
		t.Errorf("错误类型应为内容错误: %v", err)
	}
}

// TestBuildGameStateVictoryReferenceCheck 胜利条件引用未加载实体时报内容错误
func TestBuildGameStateVictoryReferenceCheck(t *testing.T) {
	pack := minimalContentPack()
	pack["scenarios/harbor.json"] = `{
		"name": "The Harbor",
		"location_id": "dock",
		"player_id": "courier",
		"character_ids": ["brinn"],
		"victory_conditions": [
			{"id": "vc_ghost", "type": "character_has_item", "character_id": "ghost", "item_id": "storm_glass"}
		]
	}`
	base := writeContentFixtures(t, pack)
	store, err := NewContentStore(base)
	if err != nil {
		t.Fatalf("创建内容存储失败: %v", err)
	}

	_, err = store.BuildGameState("harbor")
	if err == nil {
		t.Fatal("胜利条件引用落空应报错")
	}
	if !apperrors.IsContentError(err) {
		t.Errorf("错误类型应为内容错误: %v", err)
	}
}

// TestLoadScenarioMalformedJSON 畸形JSON是内容错误
func TestLoadScenarioMalformedJSON(t *testing.T) {
	base := writeContentFixtures(t, map[string]string{
		"scenarios/broken.json": `{"name": "Broken", `,
	})
	store, err := NewContentStore(base)
	if err != nil {
		t.Fatalf("创建内容存储失败: %v", err)
	}

	_, err = store.LoadScenario("broken")
	if err == nil {
		t.Fatal("畸形JSON应报错")
	}
	if !apperrors.IsContentError(err) {
		t.Errorf("错误类型应为内容错误: %v", err)
	}
}

// TestListScenarios 只列出.json文件并剥掉扩展名
func TestListScenarios(t *testing.T) {
	base := writeContentFixtures(t, map[string]string{
		"scenarios/harbor.json": `{}`,
		"scenarios/market.json": `{}`,
		"scenarios/notes.txt":   `ignore me`,
	})
	store, err := NewContentStore(base)
	if err != nil {
		t.Fatalf("创建内容存储失败: %v", err)
	}

	ids, err := store.ListScenarios()
	if err != nil {
		t.Fatalf("列举剧本失败: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("应列出2个剧本，实际 %v", ids)
	}
	for _, id := range ids {
		if id != "harbor" && id != "market" {
			t.Errorf("意外的剧本ID: %s", id)
		}
	}
}

// TestNewContentStoreMissingDir 数据目录不存在直接失败
func TestNewContentStoreMissingDir(t *testing.T) {
	_, err := NewContentStore(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("不存在的目录应报错")
	}
	if !apperrors.IsContentError(err) {
		t.Errorf("错误类型应为内容错误: %v", err)
	}
}
