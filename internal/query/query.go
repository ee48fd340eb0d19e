// Package query exposes data sources to agent tools as plain synchronous
// query functions returning flat records. Only read-only SELECT statements
// pass the guard; everything else is rejected before reaching a database.
package query

import (
	"fmt"
	"strings"
)

// Runner executes a query and returns its rows as column-name keyed records.
type Runner func(query string) ([]map[string]any, error)

// maxRows caps result sets so a careless query cannot flood the model context.
const maxRows = 500

// GuardSelect rejects statements that are not a single SELECT (or WITH ...
// SELECT). The check is lexical, not a parse; the database user should still
// be read-only in any serious deployment.
func GuardSelect(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("empty query")
	}
	head := strings.ToUpper(firstWord(trimmed))
	if head != "SELECT" && head != "WITH" {
		return fmt.Errorf("only SELECT queries are allowed, got %q", firstWord(trimmed))
	}
	if strings.Contains(strings.TrimRight(trimmed, "; \t\r\n"), ";") {
		return fmt.Errorf("multiple statements are not allowed")
	}
	return nil
}

func firstWord(s string) string {
	for i, ch := range s {
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '(' {
			return s[:i]
		}
	}
	return s
}
