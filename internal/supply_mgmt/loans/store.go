package loans

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"CLIMS-backend/internal/platform/db"
	"CLIMS-backend/internal/platform/seqid"
	"CLIMS-backend/internal/supply_mgmt/requests"
)

type Store struct{ db *sql.DB }

func NewStore(d *sql.DB) *Store { return &Store{db: d} }

func (s *Store) InTx(ctx context.Context, fn func(tx LoanTx) error) error {
	return db.Write(ctx, s.db, func(ctx context.Context, q db.DBTX) error {
		return fn(&storeTx{q: q})
	})
}

const loanCols = `loan_number, loan_ulid, request_number, item_number, quantity,
	issued_by, received_by, issued_on, due_on, returned_on, returned`

func scanLoan(row *sql.Row) (*Loan, error) {
	var l Loan
	err := row.Scan(
		&l.LoanNumber, &l.LoanULID, &l.RequestNumber, &l.ItemNumber, &l.Quantity,
		&l.IssuedBy, &l.ReceivedBy, &l.IssuedOn, &l.DueOn, &l.ReturnedOn, &l.Returned,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound("loan not found")
		}
		return nil, err
	}
	return &l, nil
}

func (s *Store) GetLoan(ctx context.Context, key string) (*Loan, error) {
	const q = `SELECT ` + loanCols + ` FROM supply_loans WHERE loan_number = ? OR loan_ulid = ?`
	return scanLoan(s.db.QueryRowContext(ctx, q, key, key))
}

func (s *Store) ListLoans(ctx context.Context, f LoanFilter, p Page) ([]Loan, int64, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + loanCols + ` FROM supply_loans WHERE 1=1`)

	wheres := ""
	whereArgs := []any{}
	if f.RequestNumber != nil && *f.RequestNumber != "" {
		wheres += ` AND request_number = ?`
		whereArgs = append(whereArgs, *f.RequestNumber)
	}
	if f.ItemNumber != nil && *f.ItemNumber != "" {
		wheres += ` AND item_number = ?`
		whereArgs = append(whereArgs, *f.ItemNumber)
	}
	if f.ReceivedBy != nil && *f.ReceivedBy != "" {
		wheres += ` AND received_by = ?`
		whereArgs = append(whereArgs, *f.ReceivedBy)
	}
	if f.Returned != nil {
		wheres += ` AND returned = ?`
		whereArgs = append(whereArgs, *f.Returned)
	}
	sb.WriteString(wheres)

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	sb.WriteString(` ORDER BY issued_on ` + order + `, loan_number ` + order)
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args := append(append([]any{}, whereArgs...), p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		var l Loan
		if err := rows.Scan(
			&l.LoanNumber, &l.LoanULID, &l.RequestNumber, &l.ItemNumber, &l.Quantity,
			&l.IssuedBy, &l.ReceivedBy, &l.IssuedOn, &l.DueOn, &l.ReturnedOn, &l.Returned,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*) FROM supply_loans WHERE 1=1` + wheres
	if err := s.db.QueryRowContext(ctx, cq, whereArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) ListAllForExport(ctx context.Context) ([]Loan, error) {
	const q = `SELECT ` + loanCols + ` FROM supply_loans ORDER BY loan_number`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		var l Loan
		if err := rows.Scan(
			&l.LoanNumber, &l.LoanULID, &l.RequestNumber, &l.ItemNumber, &l.Quantity,
			&l.IssuedBy, &l.ReceivedBy, &l.IssuedOn, &l.DueOn, &l.ReturnedOn, &l.Returned,
		); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ===== Tx実装 =====

type storeTx struct{ q db.DBTX }

func (t *storeTx) GetRequestForUpdate(ctx context.Context, number string) (*requests.Request, error) {
	const q = `
	SELECT request_number, group_number, requester_id, state, note,
	       approved_by, approved_at, delivered_by, delivered_at, created_at
	FROM supply_requests WHERE request_number = ? FOR UPDATE`
	var r requests.Request
	err := t.q.QueryRowContext(ctx, q, number).Scan(
		&r.RequestNumber, &r.GroupNumber, &r.RequesterID, &r.State, &r.Note,
		&r.ApprovedBy, &r.ApprovedAt, &r.DeliveredBy, &r.DeliveredAt, &r.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound("request not found")
		}
		return nil, err
	}
	return &r, nil
}

func (t *storeTx) ListLinesForUpdate(ctx context.Context, number string) ([]requests.RequestLine, error) {
	const q = `
	SELECT request_number, item_number, quantity_requested, quantity_delivered,
	       delivered_by, received_by, delivered_at
	FROM request_items WHERE request_number = ? ORDER BY item_number FOR UPDATE`
	rows, err := t.q.QueryContext(ctx, q, number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []requests.RequestLine
	for rows.Next() {
		var l requests.RequestLine
		if err := rows.Scan(
			&l.RequestNumber, &l.ItemNumber, &l.QuantityRequested, &l.QuantityDelivered,
			&l.DeliveredBy, &l.ReceivedBy, &l.DeliveredAt,
		); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *storeTx) UpdateLineDelivery(ctx context.Context, l *requests.RequestLine) error {
	const q = `
	UPDATE request_items
	SET quantity_delivered = ?, delivered_by = ?, received_by = ?, delivered_at = ?
	WHERE request_number = ? AND item_number = ?`
	_, err := t.q.ExecContext(ctx, q,
		l.QuantityDelivered, nullStrOrNil(l.DeliveredBy), nullStrOrNil(l.ReceivedBy),
		nullTimeOrNil(l.DeliveredAt), l.RequestNumber, l.ItemNumber)
	return err
}

func (t *storeTx) ForceDelivered(ctx context.Context, number, deliveredBy string, at time.Time) error {
	const q = `
	UPDATE supply_requests
	SET state = ?, delivered_by = ?, delivered_at = ?
	WHERE request_number = ?`
	res, err := t.q.ExecContext(ctx, q, string(requests.StateDelivered), deliveredBy, at, number)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrInternal("failed to update supply_requests.state")
	}
	return nil
}

func (t *storeTx) NextLoanNumber(ctx context.Context) (string, error) {
	return seqid.Loan.Next(ctx, t.q)
}

func (t *storeTx) InsertLoan(ctx context.Context, l *Loan) error {
	const q = `
	INSERT INTO supply_loans
	(loan_number, loan_ulid, request_number, item_number, quantity,
	 issued_by, received_by, issued_on, due_on, returned)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`
	_, err := t.q.ExecContext(ctx, q,
		l.LoanNumber, l.LoanULID, l.RequestNumber, l.ItemNumber, l.Quantity,
		l.IssuedBy, l.ReceivedBy, l.IssuedOn, nullTimeOrNil(l.DueOn))
	return err
}

func (t *storeTx) GetLoanForUpdate(ctx context.Context, loanNumber string) (*Loan, error) {
	const q = `SELECT ` + loanCols + ` FROM supply_loans WHERE loan_number = ? FOR UPDATE`
	return scanLoan(t.q.QueryRowContext(ctx, q, loanNumber))
}

func (t *storeTx) MarkReturned(ctx context.Context, loanNumber string, at time.Time) error {
	const q = `UPDATE supply_loans SET returned = 1, returned_on = ? WHERE loan_number = ? AND returned = 0`
	res, err := t.q.ExecContext(ctx, q, at, loanNumber)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrInvalidState("loan is already returned")
	}
	return nil
}

func nullStrOrNil(ns sql.NullString) any {
	if ns.Valid {
		return ns.String
	}
	return nil
}

func nullTimeOrNil(nt sql.NullTime) any {
	if nt.Valid {
		return nt.Time
	}
	return nil
}
