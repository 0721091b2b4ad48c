// internal/models/character.go
package models

// 好感度的取值边界
const (
	DispositionMin = -100
	DispositionMax = 100
)

// Character 表示剧本中的一个角色
// 玩家是 IsPlayer 为 true 的特化：没有AI生成的对白，其"对白"就是原始输入文本
type Character struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Personality string `json:"personality,omitempty"`
	Goal        string `json:"goal,omitempty"`
	Disposition int    `json:"disposition"`
	Items       []Item `json:"items"`
	LocationID  string `json:"location_id,omitempty"`
	IsPlayer    bool   `json:"is_player,omitempty"`
}

// HasItem 检查角色是否持有指定物品
func (c *Character) HasItem(itemID string) bool {
	return c.ItemCount(itemID) > 0
}

// ItemCount 返回角色持有指定物品的数量（物品栏是多重集）
func (c *Character) ItemCount(itemID string) int {
	count := 0
	for _, item := range c.Items {
		if item.ID == itemID {
			count++
		}
	}
	return count
}

// FindItem 按ID查找角色持有的物品
func (c *Character) FindItem(itemID string) (Item, bool) {
	for _, item := range c.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return Item{}, false
}

// AddItem 向物品栏添加一件物品
func (c *Character) AddItem(item Item) {
	c.Items = append(c.Items, item)
}

// RemoveItem 从物品栏移除恰好一件指定物品
// 返回被移除的物品；角色未持有时返回 false 且物品栏不变
func (c *Character) RemoveItem(itemID string) (Item, bool) {
	for i, item := range c.Items {
		if item.ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return item, true
		}
	}
	return Item{}, false
}

// AdjustDisposition 按增量调整好感度并截断到边界内
func (c *Character) AdjustDisposition(delta int) {
	c.Disposition += delta
	if c.Disposition > DispositionMax {
		c.Disposition = DispositionMax
	}
	if c.Disposition < DispositionMin {
		c.Disposition = DispositionMin
	}
}

// ItemNames 返回物品栏中所有物品的名称，用于提示词上下文
func (c *Character) ItemNames() []string {
	names := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		names = append(names, item.Name)
	}
	return names
}
