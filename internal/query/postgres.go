package query

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres connects a pool and wraps it as a guarded query runner.
func Postgres(ctx context.Context, dsn string) (Runner, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connect: %w", err)
	}
	return PostgresPool(pool), pool.Close, nil
}

// PostgresPool wraps an existing pool as a guarded query runner.
func PostgresPool(pool *pgxpool.Pool) Runner {
	return func(query string) ([]map[string]any, error) {
		if err := GuardSelect(query); err != nil {
			return nil, err
		}
		rows, err := pool.Query(context.Background(), query)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		var records []map[string]any
		for rows.Next() {
			if len(records) >= maxRows {
				break
			}
			values, err := rows.Values()
			if err != nil {
				return nil, fmt.Errorf("scan: %w", err)
			}
			record := make(map[string]any, len(fields))
			for i, field := range fields {
				record[field.Name] = normalize(values[i])
			}
			records = append(records, record)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return records, nil
	}
}
