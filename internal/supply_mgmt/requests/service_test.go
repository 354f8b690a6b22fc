package requests

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// ===== テスト用インメモリ実装 =====

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type memStore struct {
	seq      int
	requests map[string]Request
	lines    map[string][]RequestLine
}

func newMemStore() *memStore {
	return &memStore{
		requests: map[string]Request{},
		lines:    map[string][]RequestLine{},
	}
}

func (m *memStore) snapshot() memStore {
	s := memStore{seq: m.seq, requests: map[string]Request{}, lines: map[string][]RequestLine{}}
	for k, v := range m.requests {
		s.requests[k] = v
	}
	for k, v := range m.lines {
		s.lines[k] = append([]RequestLine(nil), v...)
	}
	return s
}

// 失敗時は全変更を巻き戻す（本物のTxと同じ見え方にする）
func (m *memStore) InTx(_ context.Context, fn func(tx RequestTx) error) error {
	snap := m.snapshot()
	if err := fn(&memTx{s: m}); err != nil {
		*m = snap
		return err
	}
	return nil
}

func (m *memStore) GetRequest(_ context.Context, number string) (*Request, error) {
	r, ok := m.requests[number]
	if !ok {
		return nil, ErrNotFound("request not found")
	}
	return &r, nil
}

func (m *memStore) ListRequests(_ context.Context, f Filter, p Page) ([]Request, int64, error) {
	var out []Request
	for _, r := range m.requests {
		if f.State != nil && r.State != *f.State {
			continue
		}
		out = append(out, r)
	}
	return out, int64(len(out)), nil
}

func (m *memStore) ListLines(_ context.Context, number string) ([]RequestLine, error) {
	return append([]RequestLine(nil), m.lines[number]...), nil
}

type memTx struct{ s *memStore }

func (t *memTx) NextRequestNumber(_ context.Context) (string, error) {
	t.s.seq++
	return fmt.Sprintf("LR%04d", t.s.seq), nil
}

func (t *memTx) InsertRequest(_ context.Context, r *Request) error {
	t.s.requests[r.RequestNumber] = *r
	return nil
}

func (t *memTx) InsertLine(_ context.Context, l *RequestLine) error {
	t.s.lines[l.RequestNumber] = append(t.s.lines[l.RequestNumber], *l)
	return nil
}

func (t *memTx) GetRequestForUpdate(_ context.Context, number string) (*Request, error) {
	r, ok := t.s.requests[number]
	if !ok {
		return nil, ErrNotFound("request not found")
	}
	return &r, nil
}

func (t *memTx) ListLinesForUpdate(_ context.Context, number string) ([]RequestLine, error) {
	return append([]RequestLine(nil), t.s.lines[number]...), nil
}

func (t *memTx) UpdateHeader(_ context.Context, r *Request) error {
	t.s.requests[r.RequestNumber] = *r
	return nil
}

func (t *memTx) UpdateLineDelivery(_ context.Context, l *RequestLine) error {
	ls := t.s.lines[l.RequestNumber]
	for i := range ls {
		if ls[i].ItemNumber == l.ItemNumber {
			ls[i] = *l
			return nil
		}
	}
	return ErrNotFound("line not found")
}

func newTestService(store *memStore) *Service {
	return &Service{store: store, clock: fakeClock{t: testNow}}
}

func strp(s string) *string { return &s }
func intp(n int) *int       { return &n }

func seedRequest(store *memStore, state State, lines ...RequestLine) string {
	store.seq++
	number := fmt.Sprintf("LR%04d", store.seq)
	store.requests[number] = Request{
		RequestNumber: number,
		GroupNumber:   "G001",
		RequesterID:   "s2400123",
		State:         state,
		CreatedAt:     testNow,
	}
	for i := range lines {
		lines[i].RequestNumber = number
	}
	store.lines[number] = lines
	return number
}

func apiCode(t *testing.T, err error) Code {
	t.Helper()
	var api *APIError
	if !errors.As(err, &api) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	return api.Code
}

// ===== CreateRequest =====

func TestCreateRequest(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	res, err := svc.CreateRequest(context.Background(), CreateRequestRequest{
		GroupNumber: "G001",
		RequesterID: "s2400123",
		Note:        strp("実験3用"),
		Items: []CreateRequestItem{
			{ItemNumber: "I001", Quantity: 10},
			{ItemNumber: "I002", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if res.Request.RequestNumber != "LR0001" {
		t.Errorf("request_number = %s, want LR0001", res.Request.RequestNumber)
	}
	if res.Request.State != string(StatePending) {
		t.Errorf("state = %s, want PENDING", res.Request.State)
	}
	if len(res.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(res.Items))
	}
	if res.Items[0].Outstanding != 10 {
		t.Errorf("outstanding = %d, want 10", res.Items[0].Outstanding)
	}
	if len(store.lines["LR0001"]) != 2 {
		t.Errorf("stored lines = %d, want 2", len(store.lines["LR0001"]))
	}
}

func TestCreateRequestValidation(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateRequestRequest
	}{
		{"no group", CreateRequestRequest{RequesterID: "u", Items: []CreateRequestItem{{ItemNumber: "I001", Quantity: 1}}}},
		{"no requester", CreateRequestRequest{GroupNumber: "G001", Items: []CreateRequestItem{{ItemNumber: "I001", Quantity: 1}}}},
		{"no items", CreateRequestRequest{GroupNumber: "G001", RequesterID: "u"}},
		{"zero quantity", CreateRequestRequest{GroupNumber: "G001", RequesterID: "u", Items: []CreateRequestItem{{ItemNumber: "I001", Quantity: 0}}}},
		{"duplicate item", CreateRequestRequest{GroupNumber: "G001", RequesterID: "u", Items: []CreateRequestItem{
			{ItemNumber: "I001", Quantity: 1}, {ItemNumber: "I001", Quantity: 2},
		}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := svc.CreateRequest(ctx, c.in)
			if code := apiCode(t, err); code != CodeInvalidArgument {
				t.Errorf("code = %s, want INVALID_ARGUMENT", code)
			}
		})
	}
}

// ===== UpdateRequest =====

func TestUpdateRequestNoChanges(t *testing.T) {
	store := newMemStore()
	number := seedRequest(store, StatePending, RequestLine{ItemNumber: "I001", QuantityRequested: 5})
	svc := newTestService(store)

	_, err := svc.UpdateRequest(context.Background(), number, UpdateRequestRequest{})
	if code := apiCode(t, err); code != CodeInvalidArgument {
		t.Errorf("code = %s, want INVALID_ARGUMENT", code)
	}
}

func TestUpdateRequestUnknownState(t *testing.T) {
	store := newMemStore()
	number := seedRequest(store, StatePending)
	svc := newTestService(store)

	_, err := svc.UpdateRequest(context.Background(), number, UpdateRequestRequest{State: strp("SHIPPED")})
	if code := apiCode(t, err); code != CodeInvalidArgument {
		t.Errorf("code = %s, want INVALID_ARGUMENT", code)
	}
}

func TestUpdateRequestNotFound(t *testing.T) {
	svc := newTestService(newMemStore())
	_, err := svc.UpdateRequest(context.Background(), "LR9999", UpdateRequestRequest{State: strp("APPROVED"), ActingUser: strp("staff01")})
	if code := apiCode(t, err); code != CodeNotFound {
		t.Errorf("code = %s, want NOT_FOUND", code)
	}
}

func TestApproveRequiresActingUser(t *testing.T) {
	store := newMemStore()
	number := seedRequest(store, StatePending)
	svc := newTestService(store)

	_, err := svc.UpdateRequest(context.Background(), number, UpdateRequestRequest{State: strp("APPROVED")})
	if code := apiCode(t, err); code != CodeInvalidArgument {
		t.Errorf("code = %s, want INVALID_ARGUMENT", code)
	}
	if got := store.requests[number].State; got != StatePending {
		t.Errorf("state = %s, want PENDING (rollback)", got)
	}
}

func TestRejectRequiresActingUser(t *testing.T) {
	store := newMemStore()
	number := seedRequest(store, StatePending)
	svc := newTestService(store)

	_, err := svc.UpdateRequest(context.Background(), number, UpdateRequestRequest{State: strp("REJECTED")})
	if code := apiCode(t, err); code != CodeInvalidArgument {
		t.Errorf("code = %s, want INVALID_ARGUMENT", code)
	}
	if got := store.requests[number].State; got != StatePending {
		t.Errorf("state = %s, want PENDING (rollback)", got)
	}
}

func TestDeliverRequiresDeliverer(t *testing.T) {
	store := newMemStore()
	number := seedRequest(store, StateApproved,
		RequestLine{ItemNumber: "I001", QuantityRequested: 1},
	)
	svc := newTestService(store)

	// delivered_by も acting_user も無しでは配付できない
	_, err := svc.UpdateRequest(context.Background(), number, UpdateRequestRequest{State: strp("DELIVERED")})
	if code := apiCode(t, err); code != CodeInvalidArgument {
		t.Errorf("code = %s, want INVALID_ARGUMENT", code)
	}
	if got := store.requests[number].State; got != StateApproved {
		t.Errorf("state = %s, want APPROVED (rollback)", got)
	}
}

func TestApproveSetsApproverPair(t *testing.T) {
	store := newMemStore()
	number := seedRequest(store, StatePending)
	svc := newTestService(store)

	res, err := svc.UpdateRequest(context.Background(), number, UpdateRequestRequest{
		State: strp("approved"), ActingUser: strp("staff01"),
	})
	if err != nil {
		t.Fatalf("UpdateRequest: %v", err)
	}
	if res.Request.State != string(StateApproved) {
		t.Errorf("state = %s, want APPROVED", res.Request.State)
	}
	if res.Request.ApprovedBy == nil || *res.Request.ApprovedBy != "staff01" {
		t.Errorf("approved_by = %v, want staff01", res.Request.ApprovedBy)
	}
	if res.Request.ApprovedAt == nil || !res.Request.ApprovedAt.Equal(testNow) {
		t.Errorf("approved_at = %v, want %v", res.Request.ApprovedAt, testNow)
	}
}

func TestDisallowedTransition(t *testing.T) {
	store := newMemStore()
	number := seedRequest(store, StateRejected)
	svc := newTestService(store)

	_, err := svc.UpdateRequest(context.Background(), number, UpdateRequestRequest{
		State: strp("APPROVED"), ActingUser: strp("staff01"),
	})
	if code := apiCode(t, err); code != CodeInvalidState {
		t.Errorf("code = %s, want INVALID_STATE", code)
	}
}

func TestLineUpdateUnknownItemAbortsTx(t *testing.T) {
	store := newMemStore()
	number := seedRequest(store, StateApproved,
		RequestLine{ItemNumber: "I001", QuantityRequested: 10},
	)
	svc := newTestService(store)

	_, err := svc.UpdateRequest(context.Background(), number, UpdateRequestRequest{
		Note: strp("部分配付"),
		Items: []LineUpdate{
			{ItemNumber: "I001", QuantityDelivered: intp(3), DeliveredBy: strp("staff01")},
			{ItemNumber: "I999", QuantityDelivered: intp(1)},
		},
	})
	if code := apiCode(t, err); code != CodeNotFound {
		t.Errorf("code = %s, want NOT_FOUND", code)
	}
	// 1行目の更新も巻き戻っていること
	if got := store.lines[number][0].QuantityDelivered; got != 0 {
		t.Errorf("quantity_delivered = %d, want 0 (rollback)", got)
	}
	if store.requests[number].Note.Valid {
		t.Error("note should be rolled back")
	}
}

func TestLineUpdateQuantityOutOfRange(t *testing.T) {
	store := newMemStore()
	number := seedRequest(store, StateApproved,
		RequestLine{ItemNumber: "I001", QuantityRequested: 10},
	)
	svc := newTestService(store)

	_, err := svc.UpdateRequest(context.Background(), number, UpdateRequestRequest{
		Items: []LineUpdate{{ItemNumber: "I001", QuantityDelivered: intp(11)}},
	})
	if code := apiCode(t, err); code != CodeInvalidArgument {
		t.Errorf("code = %s, want INVALID_ARGUMENT", code)
	}
}

func TestFullDeliveryForcesDelivered(t *testing.T) {
	store := newMemStore()
	number := seedRequest(store, StateApproved,
		RequestLine{ItemNumber: "I001", QuantityRequested: 10, QuantityDelivered: 4},
		RequestLine{ItemNumber: "I002", QuantityRequested: 2},
	)
	req := store.requests[number]
	req.ApprovedBy.Valid, req.ApprovedBy.String = true, "staff01"
	req.ApprovedAt.Valid, req.ApprovedAt.Time = true, testNow
	store.requests[number] = req
	svc := newTestService(store)

	res, err := svc.UpdateRequest(context.Background(), number, UpdateRequestRequest{
		DeliveredBy: strp("staff02"),
		Items: []LineUpdate{
			{ItemNumber: "I001", QuantityDelivered: intp(10)},
			{ItemNumber: "I002", QuantityDelivered: intp(2)},
		},
	})
	if err != nil {
		t.Fatalf("UpdateRequest: %v", err)
	}
	// 状態指定なしでも全量配付で DELIVERED に確定する
	if res.Request.State != string(StateDelivered) {
		t.Errorf("state = %s, want DELIVERED", res.Request.State)
	}
	if res.Request.DeliveredBy == nil || *res.Request.DeliveredBy != "staff02" {
		t.Errorf("delivered_by = %v, want staff02", res.Request.DeliveredBy)
	}
	for _, it := range res.Items {
		if it.Outstanding != 0 {
			t.Errorf("outstanding for %s = %d, want 0", it.ItemNumber, it.Outstanding)
		}
	}
}

func TestDeliverFromPendingBackfillsApproval(t *testing.T) {
	store := newMemStore()
	number := seedRequest(store, StatePending,
		RequestLine{ItemNumber: "I001", QuantityRequested: 1},
	)
	svc := newTestService(store)

	res, err := svc.UpdateRequest(context.Background(), number, UpdateRequestRequest{
		State:      strp("DELIVERED"),
		ActingUser: strp("staff01"),
	})
	if err != nil {
		t.Fatalf("UpdateRequest: %v", err)
	}
	if res.Request.State != string(StateDelivered) {
		t.Errorf("state = %s, want DELIVERED", res.Request.State)
	}
	// 承認込み配付: 承認者も同時に埋まる
	if res.Request.ApprovedBy == nil || *res.Request.ApprovedBy != "staff01" {
		t.Errorf("approved_by = %v, want staff01", res.Request.ApprovedBy)
	}
	if res.Request.DeliveredBy == nil || *res.Request.DeliveredBy != "staff01" {
		t.Errorf("delivered_by = %v, want staff01", res.Request.DeliveredBy)
	}
}

func TestNoteOnlyUpdate(t *testing.T) {
	store := newMemStore()
	number := seedRequest(store, StatePending)
	svc := newTestService(store)

	res, err := svc.UpdateRequest(context.Background(), number, UpdateRequestRequest{Note: strp("追記")})
	if err != nil {
		t.Fatalf("UpdateRequest: %v", err)
	}
	if res.Request.State != string(StatePending) {
		t.Errorf("state = %s, want PENDING", res.Request.State)
	}
	if res.Request.Note == nil || *res.Request.Note != "追記" {
		t.Errorf("note = %v, want 追記", res.Request.Note)
	}
}
