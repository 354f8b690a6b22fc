package practices

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CLIMS-backend/internal/platform/db"
)

type Store struct{ db db.DBTX }

func NewStore(d db.DBTX) *Store { return &Store{db: d} }

// ===== 実験種目 =====

func (s *Store) InsertPractice(ctx context.Context, in CreatePracticeRequest) (uint64, error) {
	const q = `INSERT INTO lab_practices (course_name, title) VALUES (?, ?)`
	res, err := s.db.ExecContext(ctx, q, in.CourseName, in.Title)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (s *Store) GetPractice(ctx context.Context, id uint64) (*PracticeResponse, error) {
	const q = `SELECT practice_id, course_name, title, is_disabled FROM lab_practices WHERE practice_id = ?`
	var p PracticeResponse
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&p.PracticeID, &p.CourseName, &p.Title, &p.IsDisabled); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPractices(ctx context.Context, includeDisabled bool) ([]PracticeResponse, error) {
	q := `SELECT practice_id, course_name, title, is_disabled FROM lab_practices`
	if !includeDisabled {
		q += ` WHERE is_disabled = 0`
	}
	q += ` ORDER BY practice_id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []PracticeResponse{}
	for rows.Next() {
		var p PracticeResponse
		if err := rows.Scan(&p.PracticeID, &p.CourseName, &p.Title, &p.IsDisabled); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (s *Store) UpdatePractice(ctx context.Context, id uint64, in UpdatePracticeRequest) (*PracticeResponse, error) {
	sets := []string{}
	args := []any{}
	if in.CourseName != nil {
		sets = append(sets, "course_name = ?")
		args = append(args, *in.CourseName)
	}
	if in.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *in.Title)
	}
	if in.IsDisabled != nil {
		sets = append(sets, "is_disabled = ?")
		args = append(args, *in.IsDisabled)
	}
	if len(sets) == 0 {
		return s.GetPractice(ctx, id)
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE lab_practices SET %s WHERE practice_id = ?`, strings.Join(sets, ", "))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, err
	}
	return s.GetPractice(ctx, id)
}

// ===== 実施記録 =====

// Upsert: group_number + held_on（UNIQUE）でINSERTまたはUPDATE。
// 返り値: 確定行（id含む）、created=true（新規）/false（更新）
func (s *Store) UpsertSession(ctx context.Context, groupNumber string, practiceID uint64, heldOn *time.Time, note *string) (SessionResponse, bool, error) {
	// INSERT ... ON DUPLICATE KEY UPDATE
	// - 新規: RowsAffected = 1
	// - 既存更新: RowsAffected = 2
	const q = `
	INSERT INTO practice_sessions (group_number, practice_id, held_on, recorded_at, note)
	VALUES (?, ?, COALESCE(?, UTC_DATE()), UTC_TIMESTAMP(), ?)
	ON DUPLICATE KEY UPDATE
	practice_id = VALUES(practice_id),
	recorded_at = VALUES(recorded_at),
	note        = VALUES(note)`

	on := any(nil)
	if heldOn != nil {
		on = heldOn.Format(DateLayout)
	}
	res, err := s.db.ExecContext(ctx, q, groupNumber, practiceID, on, noteOrNil(note))
	if err != nil {
		return SessionResponse{}, false, err
	}
	aff, _ := res.RowsAffected()
	created := (aff == 1)

	// 最終行を取得（UNIQUEキーで）
	row := s.db.QueryRowContext(ctx, `
	SELECT session_id, group_number, practice_id, DATE_FORMAT(held_on, '%Y-%m-%d') AS held_on, recorded_at, note
	FROM practice_sessions
	WHERE group_number = ?
	AND held_on = COALESCE(?, UTC_DATE())`,
		groupNumber, on,
	)
	var r SessionResponse
	if err := row.Scan(&r.SessionID, &r.GroupNumber, &r.PracticeID, &r.HeldOn, &r.RecordedAt, &r.Note); err != nil {
		if err == sql.ErrNoRows {
			return SessionResponse{}, created, ErrInternal("inserted but not found")
		}
		return SessionResponse{}, created, err
	}
	return r, created, nil
}

// List: 条件に応じて動的WHERE + ORDER + LIMIT/OFFSET
func (s *Store) ListSessions(ctx context.Context, q SessionListQuery) ([]SessionResponse, int64, error) {
	var (
		buf    bytes.Buffer
		args   []any
		wheres []string
	)

	buf.WriteString(`
	SELECT session_id, group_number, practice_id, DATE_FORMAT(held_on, '%Y-%m-%d') AS held_on, recorded_at, note
	FROM practice_sessions
	`)
	if q.GroupNumber != nil && *q.GroupNumber != "" {
		wheres = append(wheres, "group_number = ?")
		args = append(args, *q.GroupNumber)
	}
	if q.PracticeID != nil {
		wheres = append(wheres, "practice_id = ?")
		args = append(args, *q.PracticeID)
	}
	if q.From != nil && *q.From != "" {
		wheres = append(wheres, "held_on >= ?")
		args = append(args, *q.From)
	}
	if q.To != nil && *q.To != "" {
		wheres = append(wheres, "held_on <= ?")
		args = append(args, *q.To)
	}
	if len(wheres) > 0 {
		buf.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}

	buf.WriteString(" ORDER BY held_on DESC, session_id DESC")

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	buf.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	rows, err := s.db.QueryContext(ctx, buf.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []SessionResponse
	for rows.Next() {
		var r SessionResponse
		if err := rows.Scan(&r.SessionID, &r.GroupNumber, &r.PracticeID, &r.HeldOn, &r.RecordedAt, &r.Note); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// COUNT（ORDER BY より前までを再構築）
	var cntBuf bytes.Buffer
	cntBuf.WriteString("SELECT COUNT(*) FROM practice_sessions")
	if len(wheres) > 0 {
		cntBuf.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, cntBuf.String(), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ===== helpers =====

func noteOrNil(s *string) any {
	if s == nil {
		return nil
	}
	if *s == "" {
		return nil
	}
	return *s
}
