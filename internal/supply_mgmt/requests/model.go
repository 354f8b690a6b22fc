package requests

import (
	"database/sql"
	"strings"
	"time"
)

// State は申請のライフサイクル状態（閉じた列挙。自由文字列での比較はしない）
type State string

const (
	StatePending   State = "PENDING"
	StateApproved  State = "APPROVED"
	StateRejected  State = "REJECTED"
	StatePrepared  State = "PREPARED"
	StateDelivered State = "DELIVERED"
	StateClosed    State = "CLOSED"
)

// ParseState は境界での正規化（大文字小文字・前後空白を許容）
func ParseState(s string) (State, bool) {
	switch st := State(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatePending, StateApproved, StateRejected, StatePrepared, StateDelivered, StateClosed:
		return st, true
	default:
		return "", false
	}
}

// 遷移表。PENDING→DELIVERED は承認込み配付（approve-on-delivery）の短絡経路
var transitions = map[State][]State{
	StatePending:   {StateApproved, StateRejected, StateDelivered},
	StateApproved:  {StateRejected, StatePrepared, StateDelivered},
	StatePrepared:  {StateDelivered, StateClosed},
	StateDelivered: {StateClosed},
	StateRejected:  {},
	StateClosed:    {},
}

func (s State) CanTransitionTo(to State) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

func (s State) IsTerminal() bool { return len(transitions[s]) == 0 }

// Request は supply_requests テーブルの1行を表す。
// 承認者/承認日時、配付者/配付日時は必ずペアで設定される
type Request struct {
	RequestNumber string
	GroupNumber   string
	RequesterID   string
	State         State
	Note          sql.NullString
	ApprovedBy    sql.NullString
	ApprovedAt    sql.NullTime
	DeliveredBy   sql.NullString
	DeliveredAt   sql.NullTime
	CreatedAt     time.Time
}

// RequestLine は request_items テーブルの1行（申請×物品）。
// 不変条件: 0 <= QuantityDelivered <= QuantityRequested
type RequestLine struct {
	RequestNumber     string
	ItemNumber        string
	QuantityRequested int
	QuantityDelivered int
	DeliveredBy       sql.NullString
	ReceivedBy        sql.NullString
	DeliveredAt       sql.NullTime
}

// Outstanding は未配付数量（requested - delivered）
func (l RequestLine) Outstanding() int {
	return l.QuantityRequested - l.QuantityDelivered
}

// 一覧取得用の検索条件
type Filter struct {
	GroupNumber *string
	RequesterID *string
	State       *State
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
