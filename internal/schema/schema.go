// Package schema introspects the collection database and renders it as the
// table description placed in prompts.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/JonMunkholm/nlq/internal/database"
)

// Cache holds the introspected tables. Load replaces the contents wholesale.
type Cache struct {
	Tables      []Table
	LastRefresh time.Time
	mu          sync.RWMutex
}

// Table represents a database table, its structure and a few sample rows.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	RowEstimate int64        `json:"row_estimate"`
	SampleRows  [][]string   `json:"sample_rows,omitempty"`
}

// Column represents a table column.
type Column struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	MaxLength int64  `json:"max_length,omitempty"`
	Nullable  bool   `json:"nullable"`
	IsPK      bool   `json:"is_pk"`
	Comment   string `json:"comment,omitempty"`
}

// ForeignKey represents a foreign key relationship.
type ForeignKey struct {
	Column        string `json:"column"`
	ForeignTable  string `json:"foreign_table"`
	ForeignColumn string `json:"foreign_column"`
}

const sampleValueLength = 100

// NewCache creates an empty schema cache.
func NewCache() *Cache {
	return &Cache{}
}

// Load fetches the schema and up to sampleRows rows per table, then caches it.
func (c *Cache) Load(ctx context.Context, db *sql.DB, sampleRows int) error {
	tables, err := loadTables(ctx, db)
	if err != nil {
		return fmt.Errorf("load tables: %w", err)
	}

	if sampleRows > 0 {
		for i := range tables {
			rows, err := loadSampleRows(ctx, db, tables[i].Name, sampleRows)
			if err != nil {
				// Non-fatal: the table is still described without samples
				log.Warn().Err(err).Str("table", tables[i].Name).Msg("sample rows unavailable")
				continue
			}
			tables[i].SampleRows = rows
		}
	}

	c.mu.Lock()
	c.Tables = tables
	c.LastRefresh = time.Now()
	c.mu.Unlock()

	return nil
}

// Source is a Cache bound to the database it was loaded from.
type Source struct {
	*Cache
	db         *sql.DB
	sampleRows int
}

// NewSource returns an empty Source. Call Refresh to populate it.
func NewSource(db *sql.DB, sampleRows int) *Source {
	return &Source{Cache: NewCache(), db: db, sampleRows: sampleRows}
}

// Refresh reloads the schema. On failure the previously cached tables stay.
func (s *Source) Refresh(ctx context.Context) error {
	return s.Load(ctx, s.db, s.sampleRows)
}

// GetTables returns a copy of the cached tables.
func (c *Cache) GetTables() []Table {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tables := make([]Table, len(c.Tables))
	copy(tables, c.Tables)
	return tables
}

// TableInfo renders every table as a CREATE TABLE statement followed by its
// sample rows in a comment block.
func (c *Cache) TableInfo() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	parts := make([]string, 0, len(c.Tables))
	for _, table := range c.Tables {
		parts = append(parts, tableInfo(table))
	}
	return strings.Join(parts, "\n\n")
}

// TableCount returns the number of cached tables.
func (c *Cache) TableCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Tables)
}

// GetLastRefresh returns when the schema was last refreshed.
func (c *Cache) GetLastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LastRefresh
}

func tableInfo(t Table) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n", t.Name)

	lines := make([]string, 0, len(t.Columns)+len(t.ForeignKeys)+1)
	var pk []string
	for _, col := range t.Columns {
		line := fmt.Sprintf("\t%s %s", col.Name, columnType(col))
		if !col.Nullable {
			line += " NOT NULL"
		}
		lines = append(lines, line)
		if col.IsPK {
			pk = append(pk, col.Name)
		}
	}
	if len(pk) > 0 {
		lines = append(lines, fmt.Sprintf("\tCONSTRAINT %s_pkey PRIMARY KEY (%s)", t.Name, strings.Join(pk, ", ")))
	}
	for _, fk := range t.ForeignKeys {
		lines = append(lines, fmt.Sprintf("\tFOREIGN KEY(%s) REFERENCES %s (%s)", fk.Column, fk.ForeignTable, fk.ForeignColumn))
	}
	sb.WriteString(strings.Join(lines, ",\n"))
	sb.WriteString("\n)")

	if len(t.SampleRows) > 0 {
		names := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			names[i] = col.Name
		}
		fmt.Fprintf(&sb, "\n\n/*\n%d rows from %s table:\n%s\n", len(t.SampleRows), t.Name, strings.Join(names, "\t"))
		for _, row := range t.SampleRows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
		sb.WriteString("*/")
	}
	return sb.String()
}

var typeNames = map[string]string{
	"character varying":           "VARCHAR",
	"character":                   "CHAR",
	"timestamp without time zone": "TIMESTAMP WITHOUT TIME ZONE",
	"timestamp with time zone":    "TIMESTAMP WITH TIME ZONE",
	"double precision":            "DOUBLE PRECISION",
}

func columnType(col Column) string {
	name, ok := typeNames[col.Type]
	if !ok {
		name = strings.ToUpper(col.Type)
	}
	if col.MaxLength > 0 {
		name = fmt.Sprintf("%s(%d)", name, col.MaxLength)
	}
	return name
}

func loadSampleRows(ctx context.Context, db *sql.DB, table string, limit int) ([][]string, error) {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", pq.QuoteIdentifier(table), limit)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res, err := database.Collect(rows)
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = truncate(database.FormatValue(v), sampleValueLength)
		}
		out = append(out, cells)
	}
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func loadTables(ctx context.Context, db *sql.DB) ([]Table, error) {
	tableNames, err := getTableNames(ctx, db)
	if err != nil {
		return nil, err
	}

	columns, err := getColumns(ctx, db)
	if err != nil {
		return nil, err
	}

	primaryKeys, err := getPrimaryKeys(ctx, db)
	if err != nil {
		return nil, err
	}

	foreignKeys, err := getForeignKeys(ctx, db)
	if err != nil {
		return nil, err
	}

	rowEstimates, err := getRowEstimates(ctx, db)
	if err != nil {
		// Non-fatal: continue without estimates
		rowEstimates = make(map[string]int64)
	}

	tables := make([]Table, 0, len(tableNames))
	for _, name := range tableNames {
		table := Table{
			Name:        name,
			Columns:     columns[name],
			ForeignKeys: foreignKeys[name],
			RowEstimate: rowEstimates[name],
		}

		// Mark primary key columns
		pkCols := primaryKeys[name]
		for i := range table.Columns {
			for _, pk := range pkCols {
				if table.Columns[i].Name == pk {
					table.Columns[i].IsPK = true
					break
				}
			}
		}

		tables = append(tables, table)
	}

	return tables, nil
}

func getTableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func getColumns(ctx context.Context, db *sql.DB) (map[string][]Column, error) {
	query := `
		SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			COALESCE(c.character_maximum_length, 0) AS max_length,
			c.is_nullable = 'YES' AS nullable,
			COALESCE(pgd.description, '') AS comment
		FROM information_schema.columns c
		LEFT JOIN pg_catalog.pg_statio_all_tables st
			ON st.schemaname = c.table_schema AND st.relname = c.table_name
		LEFT JOIN pg_catalog.pg_description pgd
			ON pgd.objoid = st.relid AND pgd.objsubid = c.ordinal_position
		WHERE c.table_schema = 'public'
		ORDER BY c.table_name, c.ordinal_position`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string][]Column)
	for rows.Next() {
		var tableName string
		var col Column
		if err := rows.Scan(&tableName, &col.Name, &col.Type, &col.MaxLength, &col.Nullable, &col.Comment); err != nil {
			return nil, err
		}
		columns[tableName] = append(columns[tableName], col)
	}
	return columns, rows.Err()
}

func getPrimaryKeys(ctx context.Context, db *sql.DB) (map[string][]string, error) {
	query := `
		SELECT
			tc.table_name,
			kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = 'public'
		ORDER BY tc.table_name, kcu.ordinal_position`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pks := make(map[string][]string)
	for rows.Next() {
		var tableName, colName string
		if err := rows.Scan(&tableName, &colName); err != nil {
			return nil, err
		}
		pks[tableName] = append(pks[tableName], colName)
	}
	return pks, rows.Err()
}

func getForeignKeys(ctx context.Context, db *sql.DB) (map[string][]ForeignKey, error) {
	query := `
		SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_name AS foreign_table,
			ccu.column_name AS foreign_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = 'public'`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fks := make(map[string][]ForeignKey)
	for rows.Next() {
		var tableName string
		var fk ForeignKey
		if err := rows.Scan(&tableName, &fk.Column, &fk.ForeignTable, &fk.ForeignColumn); err != nil {
			return nil, err
		}
		fks[tableName] = append(fks[tableName], fk)
	}
	return fks, rows.Err()
}

func getRowEstimates(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	query := `
		SELECT relname, reltuples::bigint
		FROM pg_class
		WHERE relnamespace = 'public'::regnamespace
		  AND relkind = 'r'`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	estimates := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		if count < 0 {
			count = 0
		}
		estimates[name] = count
	}
	return estimates, rows.Err()
}
