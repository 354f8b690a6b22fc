package requests

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ===== インターフェース群 =====

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// RequestStore は申請データへのアクセス境界。
// 書き込みを伴う操作は必ず InTx の1単位で行う（途中状態を外に見せない）
type RequestStore interface {
	InTx(ctx context.Context, fn func(tx RequestTx) error) error
	GetRequest(ctx context.Context, number string) (*Request, error)
	ListRequests(ctx context.Context, f Filter, p Page) ([]Request, int64, error)
	ListLines(ctx context.Context, number string) ([]RequestLine, error)
}

// RequestTx は1トランザクション内での読み書き。
// ForUpdate 系は行ロックを取り、同一申請への並行操作を直列化する
type RequestTx interface {
	NextRequestNumber(ctx context.Context) (string, error)
	InsertRequest(ctx context.Context, r *Request) error
	InsertLine(ctx context.Context, l *RequestLine) error
	GetRequestForUpdate(ctx context.Context, number string) (*Request, error)
	ListLinesForUpdate(ctx context.Context, number string) ([]RequestLine, error)
	UpdateHeader(ctx context.Context, r *Request) error
	UpdateLineDelivery(ctx context.Context, l *RequestLine) error
}

// ===== Service本体 =====

type Service struct {
	store RequestStore
	clock Clock
}

func NewService(db *sql.DB) *Service {
	return &Service{store: NewStore(db), clock: realClock{}}
}

// 申請登録（ヘッダ＋明細を同一Txで作成。初期状態は PENDING）
func (s *Service) CreateRequest(ctx context.Context, in CreateRequestRequest) (*RequestDetailResponse, error) {
	if strings.TrimSpace(in.GroupNumber) == "" {
		return nil, ErrInvalid("group_id is required")
	}
	if strings.TrimSpace(in.RequesterID) == "" {
		return nil, ErrInvalid("requester_id is required")
	}
	if len(in.Items) == 0 {
		return nil, ErrInvalid("at least one item is required")
	}
	seen := map[string]bool{}
	for _, it := range in.Items {
		if strings.TrimSpace(it.ItemNumber) == "" {
			return nil, ErrInvalid("item_id is required")
		}
		if it.Quantity <= 0 {
			return nil, ErrInvalid(fmt.Sprintf("quantity for item %s must be > 0", it.ItemNumber))
		}
		if seen[it.ItemNumber] {
			return nil, ErrInvalid(fmt.Sprintf("item %s is listed twice", it.ItemNumber))
		}
		seen[it.ItemNumber] = true
	}

	now := s.clock.Now()
	var (
		header Request
		lines  []RequestLine
	)
	err := s.store.InTx(ctx, func(tx RequestTx) error {
		number, err := tx.NextRequestNumber(ctx)
		if err != nil {
			return err
		}
		header = Request{
			RequestNumber: number,
			GroupNumber:   in.GroupNumber,
			RequesterID:   in.RequesterID,
			State:         StatePending,
			Note:          toNullString(in.Note),
			CreatedAt:     now,
		}
		if err := tx.InsertRequest(ctx, &header); err != nil {
			return err
		}
		for _, it := range in.Items {
			l := RequestLine{
				RequestNumber:     number,
				ItemNumber:        it.ItemNumber,
				QuantityRequested: it.Quantity,
			}
			if err := tx.InsertLine(ctx, &l); err != nil {
				return err
			}
			lines = append(lines, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buildDetailResponse(&header, lines), nil
}

// 申請更新（状態遷移・備考・明細配付数量）。ヘッダと明細の更新は同一Txで確定する。
//
// 状態遷移規則:
//   - APPROVED / REJECTED への遷移は acting_user 必須
//   - DELIVERED への遷移は配付者（delivered_by か acting_user）必須。
//     未承認のまま配付する場合は承認情報を同時に埋める（承認込み配付）
//   - 全明細が全量配付になったら、呼び出し側の指定によらず DELIVERED に確定する
func (s *Service) UpdateRequest(ctx context.Context, requestNumber string, in UpdateRequestRequest) (*RequestDetailResponse, error) {
	if strings.TrimSpace(requestNumber) == "" {
		return nil, ErrInvalid("request_number is required")
	}
	if in.State == nil && in.Note == nil && len(in.Items) == 0 {
		return nil, ErrInvalid("no changes")
	}

	var target *State
	if in.State != nil {
		st, ok := ParseState(*in.State)
		if !ok {
			return nil, ErrInvalid(fmt.Sprintf("unknown state %q", *in.State))
		}
		target = &st
	}

	var (
		header *Request
		lines  []RequestLine
	)
	err := s.store.InTx(ctx, func(tx RequestTx) error {
		req, err := tx.GetRequestForUpdate(ctx, requestNumber)
		if err != nil {
			return err
		}
		now := s.clock.Now()

		if target != nil && *target != req.State {
			if !req.State.CanTransitionTo(*target) {
				return ErrInvalidState(fmt.Sprintf("transition %s -> %s is not allowed", req.State, *target))
			}
			switch *target {
			case StateApproved:
				if strPtrEmpty(in.ActingUser) {
					return ErrInvalid("acting_user is required to approve")
				}
				req.ApprovedBy = sql.NullString{String: *in.ActingUser, Valid: true}
				req.ApprovedAt = sql.NullTime{Time: now, Valid: true}
			case StateRejected:
				if strPtrEmpty(in.ActingUser) {
					return ErrInvalid("acting_user is required to reject")
				}
			case StateDelivered:
				deliverer := coalesce(in.DeliveredBy, in.ActingUser)
				if deliverer == "" {
					return ErrInvalid("delivered_by or acting_user is required to deliver")
				}
				if !req.ApprovedBy.Valid {
					// 承認込み配付: 承認情報をここで埋める
					approver := coalesce(in.ActingUser, &deliverer)
					req.ApprovedBy = sql.NullString{String: approver, Valid: true}
					req.ApprovedAt = sql.NullTime{Time: now, Valid: true}
				}
				req.DeliveredBy = sql.NullString{String: deliverer, Valid: true}
				req.DeliveredAt = sql.NullTime{Time: now, Valid: true}
			}
			req.State = *target
		}

		if in.Note != nil {
			req.Note = toNullString(in.Note)
		}

		lines, err = tx.ListLinesForUpdate(ctx, requestNumber)
		if err != nil {
			return err
		}

		if len(in.Items) > 0 {
			byItem := map[string]*RequestLine{}
			for i := range lines {
				byItem[lines[i].ItemNumber] = &lines[i]
			}
			for _, u := range in.Items {
				line, ok := byItem[u.ItemNumber]
				if !ok {
					return ErrNotFound(fmt.Sprintf("item %s not found in request %s", u.ItemNumber, requestNumber))
				}
				changed := false
				if u.QuantityDelivered != nil {
					qd := *u.QuantityDelivered
					if qd < 0 || qd > line.QuantityRequested {
						return ErrInvalid(fmt.Sprintf("quantity_delivered %d for item %s out of range (requested=%d)",
							qd, u.ItemNumber, line.QuantityRequested))
					}
					changed = qd != line.QuantityDelivered
					line.QuantityDelivered = qd
				}
				if by := coalesce(u.DeliveredBy, in.DeliveredBy); by != "" {
					line.DeliveredBy = sql.NullString{String: by, Valid: true}
				}
				if by := coalesce(u.ReceivedBy, in.ReceivedBy); by != "" {
					line.ReceivedBy = sql.NullString{String: by, Valid: true}
				}
				if u.DeliveryDate != nil {
					t, err := time.Parse("2006-01-02", *u.DeliveryDate)
					if err != nil {
						return ErrInvalid("invalid delivery_date format, expected YYYY-MM-DD")
					}
					line.DeliveredAt = sql.NullTime{Time: t, Valid: true}
				} else if changed {
					line.DeliveredAt = sql.NullTime{Time: now, Valid: true}
				}
				if err := tx.UpdateLineDelivery(ctx, line); err != nil {
					return err
				}
			}

			// 全量配付なら呼び出し側の指定に関わらず DELIVERED に確定
			if allDelivered(lines) && req.State != StateDelivered && !req.State.IsTerminal() {
				if deliverer := coalesce(in.DeliveredBy, in.ActingUser); deliverer != "" {
					req.State = StateDelivered
					req.DeliveredBy = sql.NullString{String: deliverer, Valid: true}
					req.DeliveredAt = sql.NullTime{Time: now, Valid: true}
					if !req.ApprovedBy.Valid {
						req.ApprovedBy = sql.NullString{String: deliverer, Valid: true}
						req.ApprovedAt = sql.NullTime{Time: now, Valid: true}
					}
				}
			}
		}

		if err := tx.UpdateHeader(ctx, req); err != nil {
			return err
		}
		header = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buildDetailResponse(header, lines), nil
}

// 申請単一取得（ヘッダ＋明細）
func (s *Service) GetRequest(ctx context.Context, requestNumber string) (*RequestDetailResponse, error) {
	req, err := s.store.GetRequest(ctx, requestNumber)
	if err != nil {
		return nil, err
	}
	lines, err := s.store.ListLines(ctx, requestNumber)
	if err != nil {
		return nil, err
	}
	return buildDetailResponse(req, lines), nil
}

// 申請一覧
func (s *Service) ListRequests(ctx context.Context, f Filter, p Page) (*ListRequestsResult, error) {
	items, total, err := s.store.ListRequests(ctx, f, p)
	if err != nil {
		return nil, err
	}
	res := make([]RequestResponse, 0, len(items))
	for i := range items {
		res = append(res, buildRequestResponse(&items[i]))
	}
	next := p.Offset + p.Limit
	if next >= int(total) {
		next = 0
	} // 0=終端
	return &ListRequestsResult{Items: res, Total: total, NextOffset: next}, nil
}

// ===== ヘルパー =====

func allDelivered(lines []RequestLine) bool {
	if len(lines) == 0 {
		return false
	}
	for _, l := range lines {
		if l.QuantityDelivered != l.QuantityRequested {
			return false
		}
	}
	return true
}

func buildRequestResponse(r *Request) RequestResponse {
	return RequestResponse{
		RequestNumber: r.RequestNumber,
		GroupNumber:   r.GroupNumber,
		RequesterID:   r.RequesterID,
		State:         string(r.State),
		Note:          nullToPtr(r.Note),
		ApprovedBy:    nullToPtr(r.ApprovedBy),
		ApprovedAt:    nullTimeToPtr(r.ApprovedAt),
		DeliveredBy:   nullToPtr(r.DeliveredBy),
		DeliveredAt:   nullTimeToPtr(r.DeliveredAt),
		CreatedAt:     r.CreatedAt,
	}
}

func buildLineResponse(l RequestLine) RequestLineResponse {
	return RequestLineResponse{
		ItemNumber:        l.ItemNumber,
		QuantityRequested: l.QuantityRequested,
		QuantityDelivered: l.QuantityDelivered,
		Outstanding:       l.Outstanding(),
		DeliveredBy:       nullToPtr(l.DeliveredBy),
		ReceivedBy:        nullToPtr(l.ReceivedBy),
		DeliveredAt:       nullTimeToPtr(l.DeliveredAt),
	}
}

func buildDetailResponse(r *Request, lines []RequestLine) *RequestDetailResponse {
	items := make([]RequestLineResponse, 0, len(lines))
	for _, l := range lines {
		items = append(items, buildLineResponse(l))
	}
	return &RequestDetailResponse{OK: true, Request: buildRequestResponse(r), Items: items}
}

func toNullString(s *string) (ns sql.NullString) {
	if s != nil && strings.TrimSpace(*s) != "" {
		ns.Valid, ns.String = true, *s
	}
	return
}

func nullToPtr(ns sql.NullString) *string {
	if ns.Valid {
		v := ns.String
		return &v
	}
	return nil
}

func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		v := nt.Time
		return &v
	}
	return nil
}

func strPtrEmpty(s *string) bool { return s == nil || strings.TrimSpace(*s) == "" }

func coalesce(vals ...*string) string {
	for _, v := range vals {
		if v != nil && strings.TrimSpace(*v) != "" {
			return *v
		}
	}
	return ""
}
