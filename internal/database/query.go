package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	apperrors "github.com/JonMunkholm/nlq/internal/errors"
)

var (
	errEmptyQuery     = errors.New("query is empty")
	errNotSelectQuery = errors.New("only SELECT or WITH queries are allowed")
)

// Result is the outcome of one query: column names and normalized row values.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Runner executes generated SQL read-only.
type Runner struct {
	db *sql.DB
}

func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// Run executes query inside a read-only transaction that is always rolled back.
// Failures carry apperrors.SQLExecutionError.
func (r *Runner) Run(ctx context.Context, query string) (Result, error) {
	query, err := ValidateSelect(query)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.SQLExecutionError, "reject query", err)
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.SQLExecutionError, "begin read-only transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.SQLExecutionError, "execute query", err)
	}
	defer rows.Close()

	res, err := Collect(rows)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.SQLExecutionError, "read rows", err)
	}
	return res, nil
}

// ValidateSelect rejects anything that is not a SELECT or WITH statement.
func ValidateSelect(raw string) (string, error) {
	query := strings.TrimSpace(raw)
	if query == "" {
		return "", errEmptyQuery
	}
	lower := strings.ToLower(query)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return "", errNotSelectQuery
	}
	return query, nil
}

// Collect reads all remaining rows, normalizing values by column type.
func Collect(rows *sql.Rows) (Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return Result{}, err
	}
	typeNames := make([]string, len(types))
	for i, ct := range types {
		typeNames[i] = strings.ToUpper(ct.DatabaseTypeName())
	}

	res := Result{Columns: columns}
	for rows.Next() {
		values, err := scanRow(rows, len(columns))
		if err != nil {
			return Result{}, err
		}
		res.Rows = append(res.Rows, normalizeRow(values, typeNames))
	}
	return res, rows.Err()
}

func scanRow(rows *sql.Rows, numCols int) ([]any, error) {
	values := make([]any, numCols)
	ptrs := make([]any, numCols)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}

// normalizeRow converts driver values into Go values the renderers understand.
// NUMERIC arrives as text and is kept as a Decimal; DATE columns become Date.
func normalizeRow(values []any, typeNames []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		var typeName string
		if i < len(typeNames) {
			typeName = typeNames[i]
		}
		switch val := v.(type) {
		case []byte:
			if isNumeric(typeName) {
				out[i] = Decimal(val)
			} else {
				out[i] = string(val)
			}
		case string:
			if isNumeric(typeName) {
				out[i] = Decimal(val)
			} else {
				out[i] = val
			}
		case time.Time:
			if typeName == "DATE" {
				out[i] = Date{val}
			} else {
				out[i] = val
			}
		default:
			out[i] = val
		}
	}
	return out
}

func isNumeric(typeName string) bool {
	return typeName == "NUMERIC" || typeName == "DECIMAL"
}
