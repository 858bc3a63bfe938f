package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cbattlegear/azure-data-chat/log"
)

// Column describes one column of a user table.
type Column struct {
	Name       string
	DataType   string
	Nullable   bool
	PrimaryKey bool
}

// Table is a user table with its columns in ordinal order.
type Table struct {
	Schema  string
	Name    string
	Columns []Column
}

// Snapshot is a point-in-time view of the database schema, used as
// grounding for query generation.
type Snapshot struct {
	Tables    []Table
	FetchedAt time.Time
}

// Render formats the snapshot as prompt text, one line per table. The
// output is deterministic for a given snapshot so prompts stay stable
// between requests.
func (s *Snapshot) Render() string {
	var b strings.Builder
	for _, t := range s.Tables {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Table [%s].[%s]:", t.Schema, t.Name)
		for i, col := range t.Columns {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, " [%s] %s", col.Name, col.DataType)
			if col.PrimaryKey {
				b.WriteString(" (primary key)")
			}
			if col.Nullable {
				b.WriteString(" (nullable)")
			}
		}
	}
	return b.String()
}

// Schema returns the cached snapshot, loading a fresh one when the cache
// is empty or older than the configured TTL. A failed refresh falls back
// to the stale snapshot when one exists.
func (c *Client) Schema(ctx context.Context) (*Snapshot, error) {
	c.schemaMu.RLock()
	snap := c.schema
	c.schemaMu.RUnlock()

	if snap != nil && time.Since(snap.FetchedAt) < c.schemaTTL {
		return snap, nil
	}

	if err := c.RefreshSchema(ctx); err != nil {
		if snap != nil {
			log.Warn().Err(err).Msg("schema refresh failed, using cached snapshot")
			return snap, nil
		}
		return nil, err
	}

	c.schemaMu.RLock()
	defer c.schemaMu.RUnlock()
	return c.schema, nil
}

// RefreshSchema reloads the snapshot from INFORMATION_SCHEMA and swaps it
// into the cache.
func (c *Client) RefreshSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	snap, err := loadSchema(ctx, c.db)
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}

	c.schemaMu.Lock()
	c.schema = snap
	c.schemaMu.Unlock()

	log.Debug().
		Int("tables", len(snap.Tables)).
		Dur("duration", time.Since(start)).
		Msg("schema snapshot refreshed")
	return nil
}

const columnsQuery = `
SELECT c.TABLE_SCHEMA, c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE
FROM INFORMATION_SCHEMA.COLUMNS c
JOIN INFORMATION_SCHEMA.TABLES t
  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
WHERE t.TABLE_TYPE = 'BASE TABLE'
ORDER BY c.TABLE_SCHEMA, c.TABLE_NAME, c.ORDINAL_POSITION`

const primaryKeysQuery = `
SELECT ku.TABLE_SCHEMA, ku.TABLE_NAME, ku.COLUMN_NAME
FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE ku
  ON ku.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
 AND ku.TABLE_SCHEMA = tc.TABLE_SCHEMA
 AND ku.TABLE_NAME = tc.TABLE_NAME
WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'`

func loadSchema(ctx context.Context, db *sql.DB) (*Snapshot, error) {
	keys, err := loadPrimaryKeys(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, columnsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	snap := &Snapshot{FetchedAt: time.Now()}
	var current *Table
	for rows.Next() {
		var schema, table, column, dataType, nullable string
		if err := rows.Scan(&schema, &table, &column, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan column row: %w", err)
		}
		if current == nil || current.Schema != schema || current.Name != table {
			snap.Tables = append(snap.Tables, Table{Schema: schema, Name: table})
			current = &snap.Tables[len(snap.Tables)-1]
		}
		current.Columns = append(current.Columns, Column{
			Name:       column,
			DataType:   dataType,
			Nullable:   strings.EqualFold(nullable, "YES"),
			PrimaryKey: keys[schema+"."+table][column],
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read column rows: %w", err)
	}
	return snap, nil
}

func loadPrimaryKeys(ctx context.Context, db *sql.DB) (map[string]map[string]bool, error) {
	rows, err := db.QueryContext(ctx, primaryKeysQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]map[string]bool)
	for rows.Next() {
		var schema, table, column string
		if err := rows.Scan(&schema, &table, &column); err != nil {
			return nil, fmt.Errorf("failed to scan primary key row: %w", err)
		}
		k := schema + "." + table
		if keys[k] == nil {
			keys[k] = make(map[string]bool)
		}
		keys[k][column] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read primary key rows: %w", err)
	}
	return keys, nil
}
