// Package exports dumps and reloads whole tables for spreadsheet tooling.
// Only the tables in Tables can be touched.
package exports

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"repairdesk/infrastructure/sqlite"
)

var (
	ErrTableNotAllowed = errors.New("table is not exportable")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrRowWidth        = errors.New("row width does not match columns")
)

// Tables lists the exportable tables.
var Tables = []string{"clients", "devices", "products", "spare_parts", "repairs", "users"}

// Table is a table snapshot: column names and rows in column order.
type Table struct {
	Columns []string
	Rows    [][]any
}

func allowed(table string) error {
	if !slices.Contains(Tables, table) {
		return fmt.Errorf("%w: %q", ErrTableNotAllowed, table)
	}
	return nil
}

// Dump returns every row of table ordered by id. Text comes back as string
// and timestamps are rendered with sqlite.TimeLayout.
func Dump(ctx context.Context, db *sqlite.DB, table string) (Table, error) {
	if err := allowed(table); err != nil {
		return Table{}, err
	}
	var out Table
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT * FROM ? ORDER BY rowid", bun.Ident(table))
		if err != nil {
			return err
		}
		defer rows.Close()

		out.Columns, err = rows.Columns()
		if err != nil {
			return err
		}
		out.Rows = make([][]any, 0)
		for rows.Next() {
			values := make([]any, len(out.Columns))
			ptrs := make([]any, len(values))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			for i, v := range values {
				values[i] = normalize(v)
			}
			out.Rows = append(out.Rows, values)
		}
		return rows.Err()
	})
	if err != nil {
		return Table{}, fmt.Errorf("dump %s: %w", table, err)
	}
	return out, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return sqlite.FormatTime(x)
	default:
		return v
	}
}

// Load replaces the contents of table with t in one transaction and returns
// the number of rows written. Empty strings are stored as NULL. Deleting the
// old rows cascades like any other delete, so loading clients also clears
// their devices and repairs.
func Load(ctx context.Context, db *sqlite.DB, table string, t Table) (int, error) {
	if err := allowed(table); err != nil {
		return 0, err
	}
	if len(t.Columns) == 0 {
		return 0, fmt.Errorf("%w: no columns", ErrUnknownColumn)
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return 0, fmt.Errorf("%w: row %d has %d values, want %d", ErrRowWidth, i+1, len(row), len(t.Columns))
		}
	}

	written := 0
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var known []string
		if err := tx.NewRaw("SELECT name FROM pragma_table_info(?)", table).Scan(ctx, &known); err != nil {
			return err
		}
		idents := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			if !slices.Contains(known, col) {
				return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, col)
			}
			idents[i] = `"` + col + `"`
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM ?", bun.Ident(table)); err != nil {
			return err
		}
		insert := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
			table, strings.Join(idents, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", "))
		for _, row := range t.Rows {
			args := make([]any, len(row))
			for i, v := range row {
				if s, ok := v.(string); ok && s == "" {
					v = nil
				}
				args[i] = v
			}
			if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", table, err)
	}
	return written, nil
}
