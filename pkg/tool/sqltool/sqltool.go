// Package sqltool implements the SQL adapter of C1 (spec.md §4.4):
// structured, read-only queries over the business data warehouse. It is
// grounded on the teacher's pkg/config database-pool wiring, adapted to
// execute model-generated SQL as-is (never parameterized by the model)
// against a read-only identity.
package sqltool

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
)

const defaultTimeout = 30 * time.Second

// Adapter queries db with the SQL string supplied in the "query" tool
// argument.
type Adapter struct {
	db      *sql.DB
	timeout time.Duration
}

// New builds a SQL adapter over an already-open, read-only-identity pool.
func New(db *sql.DB) *Adapter {
	return &Adapter{db: db, timeout: defaultTimeout}
}

// Spec describes the sql_query tool.
func (a *Adapter) Spec() domain.ToolSpec {
	return domain.ToolSpec{
		Name:        "sql_query",
		Description: "Run a read-only SQL query against the business data warehouse and return the result rows.",
		Parameters: []domain.ToolParameter{
			{Name: "query", Type: "string", Required: true, Description: "A complete SQL SELECT statement."},
		},
		Approval: domain.ApprovalNone,
	}
}

// Call runs args["query"] as-is against the warehouse. Per spec.md §4.4,
// the model-generated SQL is executed verbatim — parameterized execution
// is reserved for the History Store's own statements, never this path.
func (a *Adapter) Call(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("sql_query requires a non-empty query argument")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperr.ToolTransient("sql query failed", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, apperr.ToolPermanent("sql query returned no column metadata", err)
	}

	var table []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperr.ToolPermanent("sql row scan failed", err)
		}
		record := make(map[string]any, len(cols))
		for i, col := range cols {
			record[col] = values[i]
		}
		table = append(table, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.ToolTransient("sql row iteration failed", err)
	}

	return &domain.ToolResult{
		TextSummary: summarize(len(table)),
		Structured:  table,
	}, nil
}

func summarize(rowCount int) string {
	if rowCount == 0 {
		return "query returned 0 rows"
	}
	return fmt.Sprintf("query returned %d row(s)", rowCount)
}
