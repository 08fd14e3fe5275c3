// Package tasks 定义了投递到 Kafka 的任务结构。
package tasks

// CatalogIngestTask 表示一个菜品向量化入索引的任务。
// Reindex 为 true 时即使索引里已有该菜品也重新生成向量。
type CatalogIngestTask struct {
	FoodID  string `json:"food_id"`
	Reindex bool   `json:"reindex"`
}
