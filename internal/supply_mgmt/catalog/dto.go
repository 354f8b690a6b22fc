package catalog

import "time"

// 物品マスタ登録リクエスト
type CreateItemRequest struct {
	Name     string `json:"name" binding:"required"`
	Unit     string `json:"unit" binding:"required"`
	Category string `json:"category"`
	Stock    int    `json:"stock"`
	Location string `json:"location"`
}

// 物品マスタ更新リクエスト（指定フィールドのみ更新）
type UpdateItemRequest struct {
	Name       *string `json:"name,omitempty"`
	Unit       *string `json:"unit,omitempty"`
	Category   *string `json:"category,omitempty"`
	Stock      *int    `json:"stock,omitempty"`
	Location   *string `json:"location,omitempty"`
	IsDisabled *bool   `json:"is_disabled,omitempty"`
}

// 物品マスタレスポンス
type ItemResponse struct {
	ItemNumber string    `json:"item_id"`
	Name       string    `json:"name"`
	Unit       string    `json:"unit"`
	Category   string    `json:"category"`
	Stock      int       `json:"stock"`
	Location   string    `json:"location"`
	IsDisabled bool      `json:"is_disabled"`
	CreatedAt  time.Time `json:"created_at"`
}

// 一覧検索条件
type ItemSearchQuery struct {
	Name     *string
	Category *string
	All      bool // 無効化済みも含める
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
