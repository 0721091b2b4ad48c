// internal/storage/content_store.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/AshgroveGames/ParleyCore/internal/errors"
	"github.com/AshgroveGames/ParleyCore/internal/models"
)

// ContentStore 从数据目录加载不可变的内容记录
// 目录布局: <base>/scenarios/<id>.json, <base>/characters/<id>.json,
// <base>/items/<id>.json, <base>/locations/<id>.json
// 加载时做引用完整性校验；核心在动作校验器处还会再校验一次
type ContentStore struct {
	BaseDir string

	cache      map[string][]byte
	cacheMutex sync.RWMutex
}

// NewContentStore 创建内容存储
func NewContentStore(baseDir string) (*ContentStore, error) {
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		return nil, apperrors.NewContentError(fmt.Sprintf("内容目录不存在: %s", baseDir), err)
	}
	return &ContentStore{
		BaseDir: baseDir,
		cache:   make(map[string][]byte),
	}, nil
}

// loadJSON 读取并解析单个内容文件，带简单读缓存
func (cs *ContentStore) loadJSON(kind, id string, v interface{}) error {
	path := filepath.Join(cs.BaseDir, kind, id+".json")

	cs.cacheMutex.RLock()
	data, ok := cs.cache[path]
	cs.cacheMutex.RUnlock()

	if !ok {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return apperrors.NewContentError(fmt.Sprintf("内容记录不存在: %s/%s", kind, id), err)
			}
			return apperrors.NewContentError(fmt.Sprintf("读取内容文件失败: %s/%s", kind, id), err)
		}
		cs.cacheMutex.Lock()
		cs.cache[path] = data
		cs.cacheMutex.Unlock()
	}

	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.NewContentError(fmt.Sprintf("解析内容文件失败: %s/%s", kind, id), err)
	}
	return nil
}

// LoadScenario 加载剧本定义
func (cs *ContentStore) LoadScenario(id string) (*models.Scenario, error) {
	var scenario models.Scenario
	if err := cs.loadJSON("scenarios", id, &scenario); err != nil {
		return nil, err
	}
	if scenario.ID == "" {
		scenario.ID = id
	}
	return &scenario, nil
}

// LoadCharacter 加载角色定义
func (cs *ContentStore) LoadCharacter(id string) (*models.Character, error) {
	var character models.Character
	if err := cs.loadJSON("characters", id, &character); err != nil {
		return nil, err
	}
	if character.ID == "" {
		character.ID = id
	}
	return &character, nil
}

// LoadItem 加载物品定义
func (cs *ContentStore) LoadItem(id string) (models.Item, error) {
	var item models.Item
	if err := cs.loadJSON("items", id, &item); err != nil {
		return models.Item{}, err
	}
	if item.ID == "" {
		item.ID = id
	}
	return item, nil
}

// LoadLocation 加载地点定义
func (cs *ContentStore) LoadLocation(id string) (*models.Location, error) {
	var location models.Location
	if err := cs.loadJSON("locations", id, &location); err != nil {
		return nil, err
	}
	if location.ID == "" {
		location.ID = id
	}
	return &location, nil
}

// ListScenarios 列出所有可用剧本ID
func (cs *ContentStore) ListScenarios() ([]string, error) {
	dir := filepath.Join(cs.BaseDir, "scenarios")
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取剧本目录失败: %w", err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		if filepath.Ext(file.Name()) != ".json" {
			continue
		}
		ids = append(ids, file.Name()[:len(file.Name())-len(".json")])
	}
	return ids, nil
}

// BuildGameState 加载剧本及其全部关联实体，构建初始游戏状态
// 任何引用的实体缺失都是内容完整性错误，对该次运行是致命的
func (cs *ContentStore) BuildGameState(scenarioID string) (*models.GameState, error) {
	scenario, err := cs.LoadScenario(scenarioID)
	if err != nil {
		return nil, err
	}

	state := models.NewGameState(scenario)

	location, err := cs.LoadLocation(scenario.LocationID)
	if err != nil {
		return nil, err
	}
	state.Locations[location.ID] = location

	for _, id := range append([]string{scenario.PlayerID}, scenario.CharacterIDs...) {
		character, err := cs.LoadCharacter(id)
		if err != nil {
			return nil, err
		}
		if id == scenario.PlayerID {
			character.IsPlayer = true
		}
		// 角色物品栏引用的物品按需展开为完整记录
		for i, item := range character.Items {
			if item.Name == "" {
				full, err := cs.LoadItem(item.ID)
				if err != nil {
					return nil, err
				}
				character.Items[i] = full
			}
			state.Items[character.Items[i].ID] = character.Items[i]
		}
		state.Characters[id] = character
	}

	// 剧本显式声明的物品也进定义表
	for _, itemID := range scenario.ItemIDs {
		if _, ok := state.Items[itemID]; ok {
			continue
		}
		item, err := cs.LoadItem(itemID)
		if err != nil {
			return nil, err
		}
		state.Items[item.ID] = item
	}

	// 胜利条件引用校验
	for _, vc := range scenario.VictoryConditions {
		if _, ok := state.Characters[vc.CharacterID]; !ok {
			return nil, apperrors.NewContentError(
				fmt.Sprintf("胜利条件 %s 引用了未加载的角色: %s", vc.ID, vc.CharacterID), nil)
		}
		if vc.Type == models.VictoryCharacterHasItem {
			if _, ok := state.Items[vc.ItemID]; !ok {
				return nil, apperrors.NewContentError(
					fmt.Sprintf("胜利条件 %s 引用了未加载的物品: %s", vc.ID, vc.ItemID), nil)
			}
		}
	}

	return state, nil
}
