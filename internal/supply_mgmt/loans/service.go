package loans

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"CLIMS-backend/internal/supply_mgmt/requests"
)

// ===== インターフェース群 =====

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// LoanStore は貸出台帳へのアクセス境界。
// 発行・返却は必ず InTx の1単位で行う（発行チェックと台帳更新を原子化する）
type LoanStore interface {
	InTx(ctx context.Context, fn func(tx LoanTx) error) error
	GetLoan(ctx context.Context, key string) (*Loan, error)
	ListLoans(ctx context.Context, f LoanFilter, p Page) ([]Loan, int64, error)
	ListAllForExport(ctx context.Context) ([]Loan, error)
}

// LoanTx は1トランザクション内での読み書き。
// 申請ヘッダ・明細の行ロックで、同一申請への並行発行を直列化する
type LoanTx interface {
	GetRequestForUpdate(ctx context.Context, number string) (*requests.Request, error)
	ListLinesForUpdate(ctx context.Context, number string) ([]requests.RequestLine, error)
	UpdateLineDelivery(ctx context.Context, l *requests.RequestLine) error
	ForceDelivered(ctx context.Context, number, deliveredBy string, at time.Time) error
	NextLoanNumber(ctx context.Context) (string, error)
	InsertLoan(ctx context.Context, l *Loan) error
	GetLoanForUpdate(ctx context.Context, loanNumber string) (*Loan, error)
	MarkReturned(ctx context.Context, loanNumber string, at time.Time) error
}

// ===== Service本体 =====

type Service struct {
	store LoanStore
	clock Clock
	id    IDGen
}

func NewService(db *sql.DB) *Service {
	return &Service{store: NewStore(db), clock: realClock{}, id: ulidGen{}}
}

// 貸出発行。
// 単品モード: 指定物品の未配付数量の範囲で1件発行し、明細の配付数量を加算する。
// 一括モード: 未配付数量が残る全明細について全量を発行する。
// どちらのモードでも、全明細が全量配付になった時点で申請を DELIVERED に確定する。
// 検証・発行・台帳更新・状態確定は同一Txで行い、失敗時は全て巻き戻す。
func (s *Service) IssueLoan(ctx context.Context, in IssueLoanRequest) (*IssueLoanResponse, error) {
	if strings.TrimSpace(in.RequestNumber) == "" {
		return nil, ErrInvalid("request_id is required")
	}
	if strings.TrimSpace(in.IssuedBy) == "" {
		return nil, ErrInvalid("issued_by is required")
	}
	single := in.ItemNumber != nil || in.Quantity != nil
	if single && (in.ItemNumber == nil || in.Quantity == nil) {
		return nil, ErrInvalid("item_id and quantity must be supplied together")
	}

	var dueOn sql.NullTime
	if in.DueOn != nil && *in.DueOn != "" {
		t, err := time.Parse("2006-01-02", *in.DueOn)
		if err != nil {
			return nil, ErrInvalid("invalid due_on format, expected YYYY-MM-DD")
		}
		dueOn = sql.NullTime{Time: t, Valid: true}
	}

	var created []Loan
	err := s.store.InTx(ctx, func(tx LoanTx) error {
		req, err := tx.GetRequestForUpdate(ctx, in.RequestNumber)
		if err != nil {
			return err
		}
		if req.State != requests.StateApproved {
			return ErrInvalidState(fmt.Sprintf("request %s is not approved (state=%s)", req.RequestNumber, req.State))
		}
		receiver := req.RequesterID
		if in.ReceivedBy != nil && strings.TrimSpace(*in.ReceivedBy) != "" {
			receiver = *in.ReceivedBy
		}
		now := s.clock.Now()

		lines, err := tx.ListLinesForUpdate(ctx, in.RequestNumber)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrInvalid(fmt.Sprintf("request %s has no items", in.RequestNumber))
		}

		issue := func(line *requests.RequestLine, qty int) error {
			number, err := tx.NextLoanNumber(ctx)
			if err != nil {
				return err
			}
			loan := Loan{
				LoanNumber:    number,
				LoanULID:      s.id.NewULID(now),
				RequestNumber: req.RequestNumber,
				ItemNumber:    line.ItemNumber,
				Quantity:      qty,
				IssuedBy:      in.IssuedBy,
				ReceivedBy:    receiver,
				IssuedOn:      now,
				DueOn:         dueOn,
			}
			if err := tx.InsertLoan(ctx, &loan); err != nil {
				return err
			}
			line.QuantityDelivered += qty
			line.DeliveredBy = sql.NullString{String: in.IssuedBy, Valid: true}
			line.ReceivedBy = sql.NullString{String: receiver, Valid: true}
			line.DeliveredAt = sql.NullTime{Time: now, Valid: true}
			if err := tx.UpdateLineDelivery(ctx, line); err != nil {
				return err
			}
			created = append(created, loan)
			return nil
		}

		if single {
			qty := *in.Quantity
			if qty <= 0 {
				return ErrInvalid("quantity must be > 0")
			}
			var line *requests.RequestLine
			for i := range lines {
				if lines[i].ItemNumber == *in.ItemNumber {
					line = &lines[i]
					break
				}
			}
			if line == nil {
				return ErrInvalid(fmt.Sprintf("item %s is not on request %s", *in.ItemNumber, in.RequestNumber))
			}
			if out := line.Outstanding(); qty > out {
				return ErrInvalid(fmt.Sprintf("quantity %d exceeds outstanding for item %s (requested=%d, delivered=%d, outstanding=%d)",
					qty, line.ItemNumber, line.QuantityRequested, line.QuantityDelivered, out))
			}
			if err := issue(line, qty); err != nil {
				return err
			}
		} else {
			for i := range lines {
				out := lines[i].Outstanding()
				if out == 0 {
					continue // 配付済み明細はスキップ
				}
				if err := issue(&lines[i], out); err != nil {
					return err
				}
			}
			if len(created) == 0 {
				return ErrInvalid(fmt.Sprintf("request %s has no outstanding items", in.RequestNumber))
			}
		}

		// 全量配付なら申請を DELIVERED に確定（呼び出し側の状態指定より優先）
		done := true
		for _, l := range lines {
			if l.QuantityDelivered != l.QuantityRequested {
				done = false
				break
			}
		}
		if done {
			if err := tx.ForceDelivered(ctx, req.RequestNumber, in.IssuedBy, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if single {
		resp := buildLoanResponse(&created[0])
		return &IssueLoanResponse{OK: true, Loan: &resp}, nil
	}
	items := make([]LoanResponse, 0, len(created))
	for i := range created {
		items = append(items, buildLoanResponse(&created[i]))
	}
	count := len(items)
	return &IssueLoanResponse{OK: true, Loans: items, Count: &count}, nil
}

// 返却登録。返却関連フィールドは一度だけ設定できる
func (s *Service) ReturnLoan(ctx context.Context, loanNumber string, _ ReturnLoanRequest) (*LoanResponse, error) {
	if strings.TrimSpace(loanNumber) == "" {
		return nil, ErrInvalid("loan_number is required")
	}
	var returned *Loan
	err := s.store.InTx(ctx, func(tx LoanTx) error {
		loan, err := tx.GetLoanForUpdate(ctx, loanNumber)
		if err != nil {
			return err
		}
		if loan.Returned {
			return ErrInvalidState(fmt.Sprintf("loan %s is already returned", loan.LoanNumber))
		}
		now := s.clock.Now()
		if err := tx.MarkReturned(ctx, loan.LoanNumber, now); err != nil {
			return err
		}
		loan.Returned = true
		loan.ReturnedOn = sql.NullTime{Time: now, Valid: true}
		returned = loan
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp := buildLoanResponse(returned)
	return &resp, nil
}

// 貸出単一取得（番号 or ULID）
func (s *Service) GetLoan(ctx context.Context, key string) (*LoanResponse, error) {
	if key == "" {
		return nil, ErrInvalid("loan_number or ulid is required")
	}
	loan, err := s.store.GetLoan(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := buildLoanResponse(loan)
	return &resp, nil
}

// 貸出一覧
func (s *Service) ListLoans(ctx context.Context, f LoanFilter, p Page) (*ListLoansResult, error) {
	items, total, err := s.store.ListLoans(ctx, f, p)
	if err != nil {
		return nil, err
	}
	res := make([]LoanResponse, 0, len(items))
	for i := range items {
		res = append(res, buildLoanResponse(&items[i]))
	}
	next := p.Offset + p.Limit
	if next >= int(total) {
		next = 0
	} // 0=終端
	return &ListLoansResult{Items: res, Total: total, NextOffset: next}, nil
}

// 台帳CSV出力（Excel向けに cp932 で書き出す）
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	loans, err := s.store.ListAllForExport(ctx)
	if err != nil {
		return err
	}

	enc := japanese.ShiftJIS.NewEncoder()
	cw := csv.NewWriter(transform.NewWriter(w, enc))

	header := []string{"貸出番号", "申請番号", "物品番号", "数量", "発行者", "受領者", "発行日", "返却期限", "返却日", "返却済"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range loans {
		l := &loans[i]
		rec := []string{
			l.LoanNumber,
			l.RequestNumber,
			l.ItemNumber,
			strconv.Itoa(l.Quantity),
			l.IssuedBy,
			l.ReceivedBy,
			l.IssuedOn.Format("2006-01-02"),
			formatNullDate(l.DueOn),
			formatNullDate(l.ReturnedOn),
			strconv.FormatBool(l.Returned),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ===== ヘルパー =====

func buildLoanResponse(l *Loan) LoanResponse {
	resp := LoanResponse{
		LoanNumber:    l.LoanNumber,
		LoanULID:      l.LoanULID,
		RequestNumber: l.RequestNumber,
		ItemNumber:    l.ItemNumber,
		Quantity:      l.Quantity,
		IssuedBy:      l.IssuedBy,
		ReceivedBy:    l.ReceivedBy,
		IssuedOn:      l.IssuedOn,
		Returned:      l.Returned,
	}
	if l.DueOn.Valid {
		v := l.DueOn.Time
		resp.DueOn = &v
	}
	if l.ReturnedOn.Valid {
		v := l.ReturnedOn.Time
		resp.ReturnedOn = &v
	}
	return resp
}

func formatNullDate(nt sql.NullTime) string {
	if !nt.Valid {
		return ""
	}
	return nt.Time.Format("2006-01-02")
}
