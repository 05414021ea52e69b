package database

import (
	"context"
	"fmt"

	"github.com/mpslytherin/accounts/internal/models"
)

const describeSchemaQuery = `
	SELECT table_name, column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = 'public' AND table_name <> 'goose_db_version'
	ORDER BY table_name, ordinal_position`

// DescribeSchema lists the public tables and their columns in ordinal order.
func (db *DB) DescribeSchema(ctx context.Context) ([]models.TableInfo, error) {
	rows, err := db.Pool.Query(ctx, describeSchemaQuery)
	if err != nil {
		return nil, fmt.Errorf("describe schema: %w", err)
	}
	defer rows.Close()

	tables := []models.TableInfo{}
	for rows.Next() {
		var table string
		var col models.ColumnInfo
		if err := rows.Scan(&table, &col.Name, &col.DataType); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}

		if n := len(tables); n == 0 || tables[n-1].Name != table {
			tables = append(tables, models.TableInfo{Name: table})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema rows: %w", err)
	}
	return tables, nil
}
