package seqid

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"CLIMS-backend/internal/platform/db"
)

// Category は連番識別子の採番区分（接頭辞＋固定桁数）
type Category struct {
	Prefix string
	Width  int
	Table  string
	Column string
}

// 採番区分の定義。桁数を変えると既存データと混在するので変更禁止
var (
	Request  = Category{Prefix: "LR", Width: 4, Table: "supply_requests", Column: "request_number"}
	Loan     = Category{Prefix: "LP", Width: 5, Table: "supply_loans", Column: "loan_number"}
	Group    = Category{Prefix: "G", Width: 3, Table: "lab_groups", Column: "group_number"}
	Delegate = Category{Prefix: "D", Width: 3, Table: "group_delegates", Column: "delegate_number"}
	Item     = Category{Prefix: "I", Width: 3, Table: "supply_items", Column: "item_number"}
)

// 接頭辞の後ろの最初の数字列を拾う（ゼロ埋め・桁ズレの旧データも許容）
var digitRun = regexp.MustCompile(`[0-9]+`)

// Suffix は識別子から数値サフィックスを取り出す。数字が無ければ ok=false
func Suffix(prefix, id string) (int, bool) {
	rest := strings.TrimPrefix(id, prefix)
	m := digitRun.FindString(rest)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// NextSuffix は既存識別子の最大サフィックス+1 を返す（既存なしは1）
func NextSuffix(prefix string, ids []string) int {
	max := 0
	for _, id := range ids {
		if n, ok := Suffix(prefix, id); ok && n > max {
			max = n
		}
	}
	return max + 1
}

// Format は採番区分の桁数でゼロ埋めした識別子を組み立てる
func (c Category) Format(n int) string {
	return fmt.Sprintf("%s%0*d", c.Prefix, c.Width, n)
}

// Next は次の識別子を採番する。
// 採番は「既存最大の走査→+1」なので、必ず呼び出し側のTx内で使うこと。
// FOR UPDATE で走査行をロックするため、同一区分の同時採番はTx境界で直列化される。
func (c Category) Next(ctx context.Context, q db.DBTX) (string, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s LIKE ? FOR UPDATE`, c.Column, c.Table, c.Column)
	rows, err := q.QueryContext(ctx, query, c.Prefix+"%")
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return c.Format(NextSuffix(c.Prefix, ids)), nil
}
