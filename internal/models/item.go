// internal/models/item.go
package models

// Item 物品是不可变的值记录
// 所有权只通过角色物品栏追踪，物品本身不持有反向引用
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
