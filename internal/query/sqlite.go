package query

import (
	"database/sql"
	"fmt"
)

// SQLite wraps an open database handle as a guarded query runner.
func SQLite(db *sql.DB) Runner {
	return func(query string) ([]map[string]any, error) {
		if err := GuardSelect(query); err != nil {
			return nil, err
		}
		rows, err := db.Query(query)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("columns: %w", err)
		}

		var records []map[string]any
		for rows.Next() {
			if len(records) >= maxRows {
				break
			}
			values := make([]any, len(columns))
			scanTargets := make([]any, len(columns))
			for i := range values {
				scanTargets[i] = &values[i]
			}
			if err := rows.Scan(scanTargets...); err != nil {
				return nil, fmt.Errorf("scan: %w", err)
			}
			record := make(map[string]any, len(columns))
			for i, name := range columns {
				record[name] = normalize(values[i])
			}
			records = append(records, record)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return records, nil
	}
}

// normalize flattens driver-specific scan values into JSON-friendly scalars.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
