// internal/models/location.go
package models

// Location 场景中的一个地点
type Location struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
