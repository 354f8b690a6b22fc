package catalog

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

const itemCols = `item_number, name, unit, category, stock, location, is_disabled, created_at`

// 採番とINSERTを同一Txで行う（item_number はスキャン採番のため）
func (s *Store) CreateItemTx(ctx context.Context, in CreateItemRequest) (*ItemResponse, error) {
	var number string
	err := db.Write(ctx, s.db, func(ctx context.Context, q db.DBTX) error {
		n, err := seqid.Item.Next(ctx, q)
		if err != nil {
			return err
		}
		const ins = `
		INSERT INTO supply_items (item_number, name, unit, category, stock, location, created_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`
		if _, err := q.ExecContext(ctx, ins, n, in.Name, in.Unit, in.Category, in.Stock, in.Location); err != nil {
			return err
		}
		number = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetByNumber(ctx, number)
}

func (s *Store) GetByNumber(ctx context.Context, number string) (*ItemResponse, error) {
	const q = `SELECT ` + itemCols + ` FROM supply_items WHERE item_number = ?`
	var r ItemResponse
	if err := s.db.QueryRowContext(ctx, q, number).Scan(
		&r.ItemNumber, &r.Name, &r.Unit, &r.Category, &r.Stock, &r.Location, &r.IsDisabled, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListItems(ctx context.Context, q ItemSearchQuery, p Page) ([]ItemResponse, int64, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + itemCols + ` FROM supply_items WHERE 1=1`)

	wheres := ""
	whereArgs := []any{}
	if q.Name != nil && *q.Name != "" {
		wheres += ` AND name LIKE ?`
		whereArgs = append(whereArgs, "%"+*q.Name+"%")
	}
	if q.Category != nil && *q.Category != "" {
		wheres += ` AND category = ?`
		whereArgs = append(whereArgs, *q.Category)
	}
	if !q.All {
		wheres += ` AND is_disabled = 0`
	}
	sb.WriteString(wheres)

	order := "ASC"
	if strings.ToLower(p.Order) == "desc" {
		order = "DESC"
	}
	sb.WriteString(` ORDER BY item_number ` + order)
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

	list := []ItemResponse{}
	for rows.Next() {
		var r ItemResponse
		if err := rows.Scan(
			&r.ItemNumber, &r.Name, &r.Unit, &r.Category, &r.Stock, &r.Location, &r.IsDisabled, &r.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*) FROM supply_items WHERE 1=1` + wheres
	if err := s.db.QueryRowContext(ctx, cq, whereArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *Store) UpdateByNumber(ctx context.Context, number string, in UpdateItemRequest) (*ItemResponse, error) {
	// 動的アップデート
	sets := []string{}
	args := []any{}
	if in.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *in.Name)
	}
	if in.Unit != nil {
		sets = append(sets, "unit = ?")
		args = append(args, *in.Unit)
	}
	if in.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *in.Category)
	}
	if in.Stock != nil {
		sets = append(sets, "stock = ?")
		args = append(args, *in.Stock)
	}
	if in.Location != nil {
		sets = append(sets, "location = ?")
		args = append(args, *in.Location)
	}
	if in.IsDisabled != nil {
		sets = append(sets, "is_disabled = ?")
		args = append(args, *in.IsDisabled)
	}
	if len(sets) == 0 {
		// 変更なしでも現行値を返す
		return s.GetByNumber(ctx, number)
	}
	args = append(args, number)
	q := fmt.Sprintf(`UPDATE supply_items SET %s WHERE item_number = ?`, strings.Join(sets, ", "))

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		// 値が同じだった場合も0になるが、存在確認を兼ねて取得し直す
		if _, err := s.GetByNumber(ctx, number); err != nil {
			return nil, err
		}
	}
	return s.GetByNumber(ctx, number)
}
