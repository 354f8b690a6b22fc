package loans

import (
	"database/sql"
	"time"
)

// Loan は supply_loans テーブルの1行を表す。
// 作成後は返却関連フィールド以外は不変。返却フィールドは返却時に一度だけ設定される
type Loan struct {
	LoanNumber    string
	LoanULID      string
	RequestNumber string
	ItemNumber    string
	Quantity      int
	IssuedBy      string
	ReceivedBy    string
	IssuedOn      time.Time
	DueOn         sql.NullTime
	ReturnedOn    sql.NullTime
	Returned      bool
}

// 貸出一覧取得用の検索条件
type LoanFilter struct {
	RequestNumber *string
	ItemNumber    *string
	ReceivedBy    *string
	Returned      *bool
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
