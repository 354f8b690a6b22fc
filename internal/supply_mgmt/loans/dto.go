package loans

import "time"

// 貸出発行リクエスト。
// item_id と quantity を両方指定すると単品モード、両方省略すると一括モード
type IssueLoanRequest struct {
	RequestNumber string  `json:"request_id" binding:"required"`
	IssuedBy      string  `json:"issued_by" binding:"required"`
	ReceivedBy    *string `json:"received_by,omitempty"`
	// "2006-01-02" 形式の文字列を想定（返却期限）
	DueOn      *string `json:"due_on,omitempty"`
	ItemNumber *string `json:"item_id,omitempty"`
	Quantity   *int    `json:"quantity,omitempty"`
}

// 返却登録リクエスト
type ReturnLoanRequest struct {
	ProcessedBy *string `json:"processed_by,omitempty"`
}

// 貸出レスポンス
type LoanResponse struct {
	LoanNumber    string     `json:"loan_number"`
	LoanULID      string     `json:"loan_ulid"`
	RequestNumber string     `json:"request_id"`
	ItemNumber    string     `json:"item_id"`
	Quantity      int        `json:"quantity"`
	IssuedBy      string     `json:"issued_by"`
	ReceivedBy    string     `json:"received_by"`
	IssuedOn      time.Time  `json:"issued_on"`
	DueOn         *time.Time `json:"due_on,omitempty"`
	ReturnedOn    *time.Time `json:"returned_on,omitempty"`
	Returned      bool       `json:"returned"`
}

// 発行結果。単品モードは loan、一括モードは loans + count を返す
type IssueLoanResponse struct {
	OK    bool           `json:"ok"`
	Loan  *LoanResponse  `json:"loan,omitempty"`
	Loans []LoanResponse `json:"loans,omitempty"`
	Count *int           `json:"count,omitempty"`
}

type ListLoansResult struct {
	Items      []LoanResponse `json:"items"`
	Total      int64          `json:"total"`
	NextOffset int            `json:"next_offset"`
}
