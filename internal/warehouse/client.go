// Package warehouse emulates the analytical store over a per-tenant MySQL
// schema: append rows, delete by key set, query, with table creation and
// schema evolution (column addition only) inferred from the rows themselves.
package warehouse

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"conta-sync-service/internal/record"

	"github.com/rs/zerolog"
)

// deleteChunkSize bounds the IN-list length of delete-by-key statements.
const deleteChunkSize = 500

type Client struct {
	db        *sql.DB
	namespace string
	log       zerolog.Logger
}

// NewClient returns a warehouse client bound to one tenant namespace.
func NewClient(db *sql.DB, namespace string, log zerolog.Logger) *Client {
	return &Client{
		db:        db,
		namespace: namespace,
		log:       log.With().Str("component", "warehouse").Str("namespace", namespace).Logger(),
	}
}

// Namespace returns the schema this client writes into.
func (c *Client) Namespace() string {
	return c.namespace
}

// EnsureNamespace creates the tenant schema when absent.
func (c *Client) EnsureNamespace() error {
	_, err := c.db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", quoteIdent(c.namespace)))
	if err != nil {
		return fmt.Errorf("failed to ensure namespace %s: %w", c.namespace, err)
	}
	return nil
}

// TableExists reports whether the table exists in the tenant schema.
func (c *Client) TableExists(table string) (bool, error) {
	var count int
	err := c.db.QueryRow(
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?",
		c.namespace, table,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return count > 0, nil
}

// Append writes the rows, creating the table with an inferred schema when it
// does not exist and adding any columns new rows introduce. Columns are never
// removed or narrowed.
func (c *Client) Append(table string, rows []record.Record) error {
	if len(rows) == 0 {
		return nil
	}

	columns := columnUnion(rows)

	exists, err := c.TableExists(table)
	if err != nil {
		return err
	}
	if !exists {
		if err := c.createTable(table, columns, rows); err != nil {
			return err
		}
	} else if err := c.addMissingColumns(table, columns, rows); err != nil {
		return err
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	query := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES %s",
		quoteIdent(c.namespace), quoteIdent(table),
		strings.Join(quoted, ", "),
		strings.TrimRight(strings.Repeat(placeholders+",", len(rows)), ","),
	)

	args := make([]interface{}, 0, len(rows)*len(columns))
	for _, row := range rows {
		for _, col := range columns {
			args = append(args, row[col])
		}
	}

	if _, err := c.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to append %d rows to %s: %w", len(rows), table, err)
	}
	return nil
}

// DeleteWhereKeyIn removes every row whose key field matches one of the
// values. Deletes in bounded chunks.
func (c *Client) DeleteWhereKeyIn(table, keyField string, values []interface{}) error {
	for start := 0; start < len(values); start += deleteChunkSize {
		end := start + deleteChunkSize
		if end > len(values) {
			end = len(values)
		}
		chunk := values[start:end]

		query := fmt.Sprintf("DELETE FROM %s.%s WHERE %s IN (%s)",
			quoteIdent(c.namespace), quoteIdent(table), quoteIdent(keyField),
			strings.TrimRight(strings.Repeat("?,", len(chunk)), ","),
		)
		if _, err := c.db.Exec(query, chunk...); err != nil {
			return fmt.Errorf("failed to delete rows from %s: %w", table, err)
		}
	}
	return nil
}

// QueryAll reads every row of a table back as records. Numeric and boolean
// columns are converted from the driver's raw bytes by column type.
func (c *Client) QueryAll(table string) ([]record.Record, error) {
	rows, err := c.db.Query(fmt.Sprintf("SELECT * FROM %s.%s", quoteIdent(c.namespace), quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out []record.Record
	for rows.Next() {
		raw := make([]sql.RawBytes, len(cols))
		dest := make([]interface{}, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		rec := make(record.Record, len(cols))
		for i, col := range cols {
			rec[col] = convertValue(raw[i], colTypes[i].DatabaseTypeName())
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SumWhere returns the sum of a numeric column over the rows matching every
// equality condition in where. A missing table sums to zero.
func (c *Client) SumWhere(table, column string, where map[string]interface{}) (float64, error) {
	exists, err := c.TableExists(table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	query := fmt.Sprintf("SELECT COALESCE(SUM(%s), 0) FROM %s.%s",
		quoteIdent(column), quoteIdent(c.namespace), quoteIdent(table))

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var args []interface{}
	var conds []string
	for _, k := range keys {
		conds = append(conds, quoteIdent(k)+" = ?")
		args = append(args, where[k])
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var total float64
	if err := c.db.QueryRow(query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum %s.%s: %w", table, column, err)
	}
	return total, nil
}

func (c *Client) createTable(table string, columns []string, rows []record.Record) error {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = quoteIdent(col) + " " + inferColumnType(col, rows)
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (%s) CHARACTER SET utf8mb4",
		quoteIdent(c.namespace), quoteIdent(table), strings.Join(defs, ", "))

	if _, err := c.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	c.log.Info().Str("table", table).Int("columns", len(columns)).Msg("Created warehouse table")
	return nil
}

func (c *Client) addMissingColumns(table string, columns []string, rows []record.Record) error {
	existing, err := c.columnSet(table)
	if err != nil {
		return err
	}
	for _, col := range columns {
		if existing[col] {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s.%s ADD COLUMN %s %s",
			quoteIdent(c.namespace), quoteIdent(table), quoteIdent(col), inferColumnType(col, rows))
		if _, err := c.db.Exec(query); err != nil {
			return fmt.Errorf("failed to add column %s to %s: %w", col, table, err)
		}
		c.log.Info().Str("table", table).Str("column", col).Msg("Added warehouse column")
	}
	return nil
}

func (c *Client) columnSet(table string) (map[string]bool, error) {
	rows, err := c.db.Query(
		"SELECT column_name FROM information_schema.columns WHERE table_schema = ? AND table_name = ?",
		c.namespace, table,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

// columnUnion returns the sorted union of keys across the batch.
func columnUnion(rows []record.Record) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// inferColumnType picks a column type from the first non-nil value observed
// for the column. Columns that never carry a value default to TEXT.
func inferColumnType(col string, rows []record.Record) string {
	for _, row := range rows {
		switch row[col].(type) {
		case nil:
			continue
		case float64:
			return "DOUBLE"
		case int, int64:
			return "BIGINT"
		case bool:
			return "TINYINT(1)"
		default:
			return "TEXT"
		}
	}
	return "TEXT"
}

func convertValue(raw sql.RawBytes, dbType string) interface{} {
	if raw == nil {
		return nil
	}
	s := string(raw)
	switch dbType {
	case "DOUBLE", "FLOAT", "DECIMAL", "INT", "BIGINT", "MEDIUMINT", "SMALLINT":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "TINYINT", "BOOL":
		return s != "0"
	}
	return s
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "") + "`"
}
