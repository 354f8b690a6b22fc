package groups

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"CLIMS-backend/internal/platform/db"
	"CLIMS-backend/internal/platform/seqid"
)

type Store struct{ db *sql.DB }

func NewStore(d *sql.DB) *Store { return &Store{db: d} }

// 採番とINSERTを同一Txで行う
func (s *Store) CreateGroupTx(ctx context.Context, in CreateGroupRequest) (*LabGroup, error) {
	var number string
	err := db.Write(ctx, s.db, func(ctx context.Context, q db.DBTX) error {
		n, err := seqid.Group.Next(ctx, q)
		if err != nil {
			return err
		}
		const ins = `
		INSERT INTO lab_groups (group_number, name, course_name, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)`
		if _, err := q.ExecContext(ctx, ins, n, in.Name, in.CourseName); err != nil {
			return err
		}
		number = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetGroup(ctx, number)
}

func (s *Store) GetGroup(ctx context.Context, number string) (*LabGroup, error) {
	const q = `
	SELECT group_number, name, course_name, is_disabled, created_at
	FROM lab_groups WHERE group_number = ?`
	var g LabGroup
	if err := s.db.QueryRowContext(ctx, q, number).Scan(
		&g.GroupNumber, &g.Name, &g.CourseName, &g.IsDisabled, &g.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) ListGroups(ctx context.Context, includeDisabled bool) ([]LabGroup, error) {
	q := `
	SELECT group_number, name, course_name, is_disabled, created_at
	FROM lab_groups`
	if !includeDisabled {
		q += ` WHERE is_disabled = 0`
	}
	q += ` ORDER BY group_number`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []LabGroup{}
	for rows.Next() {
		var g LabGroup
		if err := rows.Scan(&g.GroupNumber, &g.Name, &g.CourseName, &g.IsDisabled, &g.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

func (s *Store) UpdateGroup(ctx context.Context, number string, in UpdateGroupRequest) (*LabGroup, error) {
	sets := []string{}
	args := []any{}
	if in.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *in.Name)
	}
	if in.CourseName != nil {
		sets = append(sets, "course_name = ?")
		args = append(args, *in.CourseName)
	}
	if in.IsDisabled != nil {
		sets = append(sets, "is_disabled = ?")
		args = append(args, *in.IsDisabled)
	}
	if len(sets) == 0 {
		return s.GetGroup(ctx, number)
	}
	args = append(args, number)
	q := fmt.Sprintf(`UPDATE lab_groups SET %s WHERE group_number = ?`, strings.Join(sets, ", "))

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		if _, err := s.GetGroup(ctx, number); err != nil {
			return nil, err
		}
	}
	return s.GetGroup(ctx, number)
}

func (s *Store) AddDelegateTx(ctx context.Context, groupNumber string, in CreateDelegateRequest) (*Delegate, error) {
	var d Delegate
	err := db.Write(ctx, s.db, func(ctx context.Context, q db.DBTX) error {
		n, err := seqid.Delegate.Next(ctx, q)
		if err != nil {
			return err
		}
		const ins = `
		INSERT INTO group_delegates (delegate_number, group_number, student_number, full_name)
		VALUES (?, ?, ?, ?)`
		if _, err := q.ExecContext(ctx, ins, n, groupNumber, in.StudentNumber, in.FullName); err != nil {
			return err
		}
		d = Delegate{DelegateNumber: n, GroupNumber: groupNumber, StudentNumber: in.StudentNumber, FullName: in.FullName}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDelegates(ctx context.Context, groupNumber string) ([]Delegate, error) {
	const q = `
	SELECT delegate_number, group_number, student_number, full_name
	FROM group_delegates WHERE group_number = ? ORDER BY delegate_number`
	rows, err := s.db.QueryContext(ctx, q, groupNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []Delegate{}
	for rows.Next() {
		var d Delegate
		if err := rows.Scan(&d.DelegateNumber, &d.GroupNumber, &d.StudentNumber, &d.FullName); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

func (s *Store) RemoveDelegate(ctx context.Context, delegateNumber string) (int64, error) {
	const q = `DELETE FROM group_delegates WHERE delegate_number = ?`
	res, err := s.db.ExecContext(ctx, q, delegateNumber)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
