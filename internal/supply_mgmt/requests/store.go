package requests

import (
	"context"
	"database/sql"
	"strings"

	"CLIMS-backend/internal/platform/db"
	"CLIMS-backend/internal/platform/seqid"
)

type Store struct{ db *sql.DB }

func NewStore(d *sql.DB) *Store { return &Store{db: d} }

func (s *Store) InTx(ctx context.Context, fn func(tx RequestTx) error) error {
	return db.Write(ctx, s.db, func(ctx context.Context, q db.DBTX) error {
		return fn(&storeTx{q: q})
	})
}

const requestCols = `request_number, group_number, requester_id, state, note,
	approved_by, approved_at, delivered_by, delivered_at, created_at`

const lineCols = `request_number, item_number, quantity_requested, quantity_delivered,
	delivered_by, received_by, delivered_at`

func scanRequest(row *sql.Row) (*Request, error) {
	var r Request
	err := row.Scan(
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

func (s *Store) GetRequest(ctx context.Context, number string) (*Request, error) {
	const q = `SELECT ` + requestCols + ` FROM supply_requests WHERE request_number = ?`
	return scanRequest(s.db.QueryRowContext(ctx, q, number))
}

func (s *Store) ListRequests(ctx context.Context, f Filter, p Page) ([]Request, int64, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + requestCols + ` FROM supply_requests WHERE 1=1`)

	args := []any{}
	wheres := ""
	whereArgs := []any{}
	if f.GroupNumber != nil && *f.GroupNumber != "" {
		wheres += ` AND group_number = ?`
		whereArgs = append(whereArgs, *f.GroupNumber)
	}
	if f.RequesterID != nil && *f.RequesterID != "" {
		wheres += ` AND requester_id = ?`
		whereArgs = append(whereArgs, *f.RequesterID)
	}
	if f.State != nil {
		wheres += ` AND state = ?`
		whereArgs = append(whereArgs, string(*f.State))
	}
	sb.WriteString(wheres)
	args = append(args, whereArgs...)

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	sb.WriteString(` ORDER BY created_at ` + order + `, request_number ` + order)
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		var r Request
		if err := rows.Scan(
			&r.RequestNumber, &r.GroupNumber, &r.RequesterID, &r.State, &r.Note,
			&r.ApprovedBy, &r.ApprovedAt, &r.DeliveredBy, &r.DeliveredAt, &r.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*) FROM supply_requests WHERE 1=1` + wheres
	if err := s.db.QueryRowContext(ctx, cq, whereArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) ListLines(ctx context.Context, number string) ([]RequestLine, error) {
	return queryLines(ctx, s.db, number, false)
}

// ===== Tx実装 =====

type storeTx struct{ q db.DBTX }

func (t *storeTx) NextRequestNumber(ctx context.Context) (string, error) {
	return seqid.Request.Next(ctx, t.q)
}

func (t *storeTx) InsertRequest(ctx context.Context, r *Request) error {
	const q = `
	INSERT INTO supply_requests
	(request_number, group_number, requester_id, state, note, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	_, err := t.q.ExecContext(ctx, q,
		r.RequestNumber, r.GroupNumber, r.RequesterID, string(r.State), nullStrOrNil(r.Note), r.CreatedAt)
	return err
}

func (t *storeTx) InsertLine(ctx context.Context, l *RequestLine) error {
	const q = `
	INSERT INTO request_items
	(request_number, item_number, quantity_requested, quantity_delivered)
	VALUES (?, ?, ?, 0)`
	_, err := t.q.ExecContext(ctx, q, l.RequestNumber, l.ItemNumber, l.QuantityRequested)
	return err
}

func (t *storeTx) GetRequestForUpdate(ctx context.Context, number string) (*Request, error) {
	const q = `SELECT ` + requestCols + ` FROM supply_requests WHERE request_number = ? FOR UPDATE`
	return scanRequest(t.q.QueryRowContext(ctx, q, number))
}

func (t *storeTx) ListLinesForUpdate(ctx context.Context, number string) ([]RequestLine, error) {
	return queryLines(ctx, t.q, number, true)
}

func (t *storeTx) UpdateHeader(ctx context.Context, r *Request) error {
	const q = `
	UPDATE supply_requests
	SET state = ?, note = ?, approved_by = ?, approved_at = ?, delivered_by = ?, delivered_at = ?
	WHERE request_number = ?`
	_, err := t.q.ExecContext(ctx, q,
		string(r.State), nullStrOrNil(r.Note),
		nullStrOrNil(r.ApprovedBy), nullTimeOrNil(r.ApprovedAt),
		nullStrOrNil(r.DeliveredBy), nullTimeOrNil(r.DeliveredAt),
		r.RequestNumber)
	return err
}

func (t *storeTx) UpdateLineDelivery(ctx context.Context, l *RequestLine) error {
	const q = `
	UPDATE request_items
	SET quantity_delivered = ?, delivered_by = ?, received_by = ?, delivered_at = ?
	WHERE request_number = ? AND item_number = ?`
	// 値が変わらない更新は RowsAffected=0 になるので件数チェックはしない
	_, err := t.q.ExecContext(ctx, q,
		l.QuantityDelivered, nullStrOrNil(l.DeliveredBy), nullStrOrNil(l.ReceivedBy),
		nullTimeOrNil(l.DeliveredAt), l.RequestNumber, l.ItemNumber)
	return err
}

// ===== 共通クエリ =====

func queryLines(ctx context.Context, q db.DBTX, number string, forUpdate bool) ([]RequestLine, error) {
	query := `SELECT ` + lineCols + ` FROM request_items WHERE request_number = ? ORDER BY item_number`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RequestLine
	for rows.Next() {
		var l RequestLine
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
