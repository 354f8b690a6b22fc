package loans

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"CLIMS-backend/internal/supply_mgmt/requests"
)

// ===== テスト用インメモリ実装 =====

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

type fakeIDGen struct{ n int }

func (g *fakeIDGen) NewULID(time.Time) string {
	g.n++
	return fmt.Sprintf("01TESTULID%016d", g.n)
}

var testNow = time.Date(2026, 4, 10, 14, 0, 0, 0, time.UTC)

type memStore struct {
	reqs    map[string]requests.Request
	lines   map[string][]requests.RequestLine
	loans   map[string]Loan
	order   []string
	loanSeq int
}

func newMemStore() *memStore {
	return &memStore{
		reqs:  map[string]requests.Request{},
		lines: map[string][]requests.RequestLine{},
		loans: map[string]Loan{},
	}
}

func (m *memStore) snapshot() memStore {
	s := memStore{
		reqs:    map[string]requests.Request{},
		lines:   map[string][]requests.RequestLine{},
		loans:   map[string]Loan{},
		order:   append([]string(nil), m.order...),
		loanSeq: m.loanSeq,
	}
	for k, v := range m.reqs {
		s.reqs[k] = v
	}
	for k, v := range m.lines {
		s.lines[k] = append([]requests.RequestLine(nil), v...)
	}
	for k, v := range m.loans {
		s.loans[k] = v
	}
	return s
}

// 失敗時は全変更を巻き戻す（本物のTxと同じ見え方にする）
func (m *memStore) InTx(_ context.Context, fn func(tx LoanTx) error) error {
	snap := m.snapshot()
	if err := fn(&memTx{s: m}); err != nil {
		*m = snap
		return err
	}
	return nil
}

func (m *memStore) GetLoan(_ context.Context, key string) (*Loan, error) {
	for _, l := range m.loans {
		if l.LoanNumber == key || l.LoanULID == key {
			v := l
			return &v, nil
		}
	}
	return nil, ErrNotFound("loan not found")
}

func (m *memStore) ListLoans(_ context.Context, f LoanFilter, p Page) ([]Loan, int64, error) {
	var out []Loan
	for _, num := range m.order {
		out = append(out, m.loans[num])
	}
	return out, int64(len(out)), nil
}

func (m *memStore) ListAllForExport(_ context.Context) ([]Loan, error) {
	var out []Loan
	for _, num := range m.order {
		out = append(out, m.loans[num])
	}
	return out, nil
}

type memTx struct{ s *memStore }

func (t *memTx) GetRequestForUpdate(_ context.Context, number string) (*requests.Request, error) {
	r, ok := t.s.reqs[number]
	if !ok {
		return nil, ErrNotFound("request not found")
	}
	return &r, nil
}

func (t *memTx) ListLinesForUpdate(_ context.Context, number string) ([]requests.RequestLine, error) {
	return append([]requests.RequestLine(nil), t.s.lines[number]...), nil
}

func (t *memTx) UpdateLineDelivery(_ context.Context, l *requests.RequestLine) error {
	ls := t.s.lines[l.RequestNumber]
	for i := range ls {
		if ls[i].ItemNumber == l.ItemNumber {
			ls[i] = *l
			return nil
		}
	}
	return ErrNotFound("line not found")
}

func (t *memTx) ForceDelivered(_ context.Context, number, deliveredBy string, at time.Time) error {
	r, ok := t.s.reqs[number]
	if !ok {
		return ErrNotFound("request not found")
	}
	r.State = requests.StateDelivered
	r.DeliveredBy.Valid, r.DeliveredBy.String = true, deliveredBy
	r.DeliveredAt.Valid, r.DeliveredAt.Time = true, at
	t.s.reqs[number] = r
	return nil
}

func (t *memTx) NextLoanNumber(_ context.Context) (string, error) {
	t.s.loanSeq++
	return fmt.Sprintf("LP%05d", t.s.loanSeq), nil
}

func (t *memTx) InsertLoan(_ context.Context, l *Loan) error {
	t.s.loans[l.LoanNumber] = *l
	t.s.order = append(t.s.order, l.LoanNumber)
	return nil
}

func (t *memTx) GetLoanForUpdate(_ context.Context, loanNumber string) (*Loan, error) {
	l, ok := t.s.loans[loanNumber]
	if !ok {
		return nil, ErrNotFound("loan not found")
	}
	return &l, nil
}

func (t *memTx) MarkReturned(_ context.Context, loanNumber string, at time.Time) error {
	l, ok := t.s.loans[loanNumber]
	if !ok {
		return ErrNotFound("loan not found")
	}
	if l.Returned {
		return ErrInvalidState("already returned")
	}
	l.Returned = true
	l.ReturnedOn.Valid, l.ReturnedOn.Time = true, at
	t.s.loans[loanNumber] = l
	return nil
}

func newTestService(store *memStore) *Service {
	return &Service{store: store, clock: fakeClock{t: testNow}, id: &fakeIDGen{}}
}

func strp(s string) *string { return &s }
func intp(n int) *int       { return &n }

func seedApprovedRequest(store *memStore, number string, lines ...requests.RequestLine) {
	store.reqs[number] = requests.Request{
		RequestNumber: number,
		GroupNumber:   "G001",
		RequesterID:   "s2400123",
		State:         requests.StateApproved,
		CreatedAt:     testNow,
	}
	for i := range lines {
		lines[i].RequestNumber = number
	}
	store.lines[number] = lines
}

func apiCode(t *testing.T, err error) Code {
	t.Helper()
	var api *APIError
	if !errors.As(err, &api) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	return api.Code
}

// ===== IssueLoan =====

func TestIssueLoanSingle(t *testing.T) {
	store := newMemStore()
	seedApprovedRequest(store, "LR0001",
		requests.RequestLine{ItemNumber: "I001", QuantityRequested: 10},
		requests.RequestLine{ItemNumber: "I002", QuantityRequested: 5},
	)
	svc := newTestService(store)

	res, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		RequestNumber: "LR0001",
		IssuedBy:      "staff01",
		ItemNumber:    strp("I001"),
		Quantity:      intp(4),
	})
	if err != nil {
		t.Fatalf("IssueLoan: %v", err)
	}
	if res.Loan == nil {
		t.Fatal("single mode should return loan")
	}
	if res.Loan.LoanNumber != "LP00001" {
		t.Errorf("loan_number = %s, want LP00001", res.Loan.LoanNumber)
	}
	if res.Loan.Quantity != 4 {
		t.Errorf("quantity = %d, want 4", res.Loan.Quantity)
	}
	// 受領者は未指定なら申請者
	if res.Loan.ReceivedBy != "s2400123" {
		t.Errorf("received_by = %s, want s2400123", res.Loan.ReceivedBy)
	}
	if got := store.lines["LR0001"][0].QuantityDelivered; got != 4 {
		t.Errorf("line delivered = %d, want 4", got)
	}
	// 部分配付なので状態はそのまま
	if got := store.reqs["LR0001"].State; got != requests.StateApproved {
		t.Errorf("state = %s, want APPROVED", got)
	}
}

func TestIssueLoanSingleExhaustsAndForcesDelivered(t *testing.T) {
	store := newMemStore()
	seedApprovedRequest(store, "LR0001",
		requests.RequestLine{ItemNumber: "I001", QuantityRequested: 10, QuantityDelivered: 6},
	)
	svc := newTestService(store)

	_, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		RequestNumber: "LR0001",
		IssuedBy:      "staff01",
		ItemNumber:    strp("I001"),
		Quantity:      intp(4),
	})
	if err != nil {
		t.Fatalf("IssueLoan: %v", err)
	}
	req := store.reqs["LR0001"]
	if req.State != requests.StateDelivered {
		t.Errorf("state = %s, want DELIVERED", req.State)
	}
	if !req.DeliveredBy.Valid || req.DeliveredBy.String != "staff01" {
		t.Errorf("delivered_by = %v, want staff01", req.DeliveredBy)
	}
}

func TestIssueLoanExceedsOutstanding(t *testing.T) {
	store := newMemStore()
	seedApprovedRequest(store, "LR0001",
		requests.RequestLine{ItemNumber: "I001", QuantityRequested: 10, QuantityDelivered: 3},
	)
	svc := newTestService(store)

	_, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		RequestNumber: "LR0001",
		IssuedBy:      "staff01",
		ItemNumber:    strp("I001"),
		Quantity:      intp(8),
	})
	if code := apiCode(t, err); code != CodeInvalidArgument {
		t.Errorf("code = %s, want INVALID_ARGUMENT", code)
	}
	if !strings.Contains(err.Error(), "outstanding") {
		t.Errorf("error should cite outstanding: %v", err)
	}
	if len(store.loans) != 0 {
		t.Errorf("loans = %d, want 0", len(store.loans))
	}
	if got := store.lines["LR0001"][0].QuantityDelivered; got != 3 {
		t.Errorf("line delivered = %d, want 3 (unchanged)", got)
	}
}

func TestIssueLoanNotApproved(t *testing.T) {
	store := newMemStore()
	seedApprovedRequest(store, "LR0001", requests.RequestLine{ItemNumber: "I001", QuantityRequested: 1})
	r := store.reqs["LR0001"]
	r.State = requests.StatePending
	store.reqs["LR0001"] = r
	svc := newTestService(store)

	_, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		RequestNumber: "LR0001",
		IssuedBy:      "staff01",
	})
	if code := apiCode(t, err); code != CodeInvalidState {
		t.Errorf("code = %s, want INVALID_STATE", code)
	}
	if len(store.loans) != 0 {
		t.Errorf("loans = %d, want 0", len(store.loans))
	}
}

func TestIssueLoanItemAndQuantityMustPair(t *testing.T) {
	svc := newTestService(newMemStore())
	_, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		RequestNumber: "LR0001",
		IssuedBy:      "staff01",
		ItemNumber:    strp("I001"),
	})
	if code := apiCode(t, err); code != CodeInvalidArgument {
		t.Errorf("code = %s, want INVALID_ARGUMENT", code)
	}
}

func TestIssueLoanBulk(t *testing.T) {
	store := newMemStore()
	seedApprovedRequest(store, "LR0002",
		requests.RequestLine{ItemNumber: "I001", QuantityRequested: 10, QuantityDelivered: 10}, // 配付済み
		requests.RequestLine{ItemNumber: "I002", QuantityRequested: 5, QuantityDelivered: 2},
		requests.RequestLine{ItemNumber: "I003", QuantityRequested: 3},
	)
	svc := newTestService(store)

	res, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		RequestNumber: "LR0002",
		IssuedBy:      "staff01",
		ReceivedBy:    strp("s2400456"),
		DueOn:         strp("2026-04-24"),
	})
	if err != nil {
		t.Fatalf("IssueLoan: %v", err)
	}
	// 配付済み明細はスキップして2件発行
	if res.Count == nil || *res.Count != 2 {
		t.Fatalf("count = %v, want 2", res.Count)
	}
	if res.Loans[0].Quantity != 3 || res.Loans[1].Quantity != 3 {
		t.Errorf("quantities = %d, %d, want 3, 3", res.Loans[0].Quantity, res.Loans[1].Quantity)
	}
	for _, l := range res.Loans {
		if l.ReceivedBy != "s2400456" {
			t.Errorf("received_by = %s, want s2400456", l.ReceivedBy)
		}
		if l.DueOn == nil || l.DueOn.Format("2006-01-02") != "2026-04-24" {
			t.Errorf("due_on = %v, want 2026-04-24", l.DueOn)
		}
	}
	// 全量配付になったので DELIVERED に確定
	if got := store.reqs["LR0002"].State; got != requests.StateDelivered {
		t.Errorf("state = %s, want DELIVERED", got)
	}
}

func TestIssueLoanBulkNothingOutstanding(t *testing.T) {
	store := newMemStore()
	seedApprovedRequest(store, "LR0003",
		requests.RequestLine{ItemNumber: "I001", QuantityRequested: 2, QuantityDelivered: 2},
	)
	svc := newTestService(store)

	_, err := svc.IssueLoan(context.Background(), IssueLoanRequest{
		RequestNumber: "LR0003",
		IssuedBy:      "staff01",
	})
	if code := apiCode(t, err); code != CodeInvalidArgument {
		t.Errorf("code = %s, want INVALID_ARGUMENT", code)
	}
}

// ===== ReturnLoan =====

func TestReturnLoanOnce(t *testing.T) {
	store := newMemStore()
	store.loans["LP00001"] = Loan{LoanNumber: "LP00001", RequestNumber: "LR0001", ItemNumber: "I001", Quantity: 1, IssuedBy: "staff01", ReceivedBy: "s2400123", IssuedOn: testNow}
	store.order = append(store.order, "LP00001")
	svc := newTestService(store)

	res, err := svc.ReturnLoan(context.Background(), "LP00001", ReturnLoanRequest{})
	if err != nil {
		t.Fatalf("ReturnLoan: %v", err)
	}
	if !res.Returned || res.ReturnedOn == nil {
		t.Errorf("returned = %v / %v, want true with timestamp", res.Returned, res.ReturnedOn)
	}

	// 2回目は 409
	_, err = svc.ReturnLoan(context.Background(), "LP00001", ReturnLoanRequest{})
	if code := apiCode(t, err); code != CodeInvalidState {
		t.Errorf("code = %s, want INVALID_STATE", code)
	}
}

func TestReturnLoanNotFound(t *testing.T) {
	svc := newTestService(newMemStore())
	_, err := svc.ReturnLoan(context.Background(), "LP99999", ReturnLoanRequest{})
	if code := apiCode(t, err); code != CodeNotFound {
		t.Errorf("code = %s, want NOT_FOUND", code)
	}
}

// ===== ExportCSV =====

func TestExportCSVShiftJIS(t *testing.T) {
	store := newMemStore()
	store.loans["LP00001"] = Loan{LoanNumber: "LP00001", RequestNumber: "LR0001", ItemNumber: "I001", Quantity: 3, IssuedBy: "staff01", ReceivedBy: "s2400123", IssuedOn: testNow}
	store.order = append(store.order, "LP00001")
	svc := newTestService(store)

	var buf bytes.Buffer
	if err := svc.ExportCSV(context.Background(), &buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	// cp932 で出ているのでデコードして確認
	decoded, err := io.ReadAll(transform.NewReader(&buf, japanese.ShiftJIS.NewDecoder()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	text := string(decoded)
	if !strings.Contains(text, "貸出番号") {
		t.Error("header row missing 貸出番号")
	}
	if !strings.Contains(text, "LP00001") {
		t.Error("data row missing LP00001")
	}
	if got := strings.Count(strings.TrimRight(text, "\n"), "\n") + 1; got != 2 {
		t.Errorf("rows = %d, want 2", got)
	}
}
