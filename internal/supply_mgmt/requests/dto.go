package requests

import "time"

// 申請登録リクエスト（提出時にヘッダと明細を同時に作る）
type CreateRequestRequest struct {
	GroupNumber string              `json:"group_id" binding:"required"`
	RequesterID string              `json:"requester_id" binding:"required"`
	Note        *string             `json:"note,omitempty"`
	Items       []CreateRequestItem `json:"items" binding:"required,dive"`
}

type CreateRequestItem struct {
	ItemNumber string `json:"item_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required"`
}

// 申請更新リクエスト（状態遷移・備考・明細の配付数量）
// state / note / items のいずれも無い場合は 400
type UpdateRequestRequest struct {
	State       *string      `json:"state,omitempty"`
	Note        *string      `json:"note,omitempty"`
	ActingUser  *string      `json:"acting_user,omitempty"`
	DeliveredBy *string      `json:"delivered_by,omitempty"`
	ReceivedBy  *string      `json:"received_by,omitempty"`
	Items       []LineUpdate `json:"items,omitempty"`
}

type LineUpdate struct {
	ItemNumber        string  `json:"item_id" binding:"required"`
	QuantityDelivered *int    `json:"quantity_delivered,omitempty"`
	DeliveredBy       *string `json:"delivered_by,omitempty"`
	ReceivedBy        *string `json:"received_by,omitempty"`
	// "2006-01-02" 形式の文字列を想定（省略時は数量変更があった時だけ現在時刻）
	DeliveryDate *string `json:"delivery_date,omitempty"`
}

// 申請ヘッダレスポンス
type RequestResponse struct {
	RequestNumber string     `json:"request_number"`
	GroupNumber   string     `json:"group_id"`
	RequesterID   string     `json:"requester_id"`
	State         string     `json:"state"`
	Note          *string    `json:"note,omitempty"`
	ApprovedBy    *string    `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	DeliveredBy   *string    `json:"delivered_by,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// 明細レスポンス
type RequestLineResponse struct {
	ItemNumber        string     `json:"item_id"`
	QuantityRequested int        `json:"quantity_requested"`
	QuantityDelivered int        `json:"quantity_delivered"`
	Outstanding       int        `json:"outstanding"`
	DeliveredBy       *string    `json:"delivered_by,omitempty"`
	ReceivedBy        *string    `json:"received_by,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
}

// 申請＋明細のセット（作成・更新・単一取得の共通レスポンス）
type RequestDetailResponse struct {
	OK      bool                  `json:"ok"`
	Request RequestResponse       `json:"request"`
	Items   []RequestLineResponse `json:"items"`
}

type ListRequestsResult struct {
	Items      []RequestResponse `json:"items"`
	Total      int64             `json:"total"`
	NextOffset int               `json:"next_offset"`
}
