// Package datasource provides read-only access to the SQL Server database
// that chat answers are grounded on: schema snapshots for prompt building,
// a guard that keeps generated queries read-only, and capped query
// execution.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/cbattlegear/azure-data-chat/log"
	"github.com/cbattlegear/azure-data-chat/metrics"
)

const (
	defaultMaxRows      = 100
	defaultQueryTimeout = 30 * time.Second
	defaultSchemaTTL    = 15 * time.Minute
)

// Config carries the connection settings for Open.
type Config struct {
	ConnectionString string
	MaxRows          int
	QueryTimeout     time.Duration
	SchemaTTL        time.Duration
}

// Client wraps the database pool together with the schema cache.
type Client struct {
	db        *sql.DB
	maxRows   int
	timeout   time.Duration
	schemaTTL time.Duration
	metrics   *metrics.Metrics

	schemaMu sync.RWMutex
	schema   *Snapshot
}

// ResultSet holds the rows returned by Query. Rows are maps keyed by
// column name with driver values normalized for JSON serialization;
// Columns preserves the select-list order.
type ResultSet struct {
	Columns   []string
	Rows      []map[string]any
	Truncated bool
}

// Open connects to SQL Server using the given connection string. The
// connection is verified with a short ping but an unreachable database
// only logs a warning, so the service can start while the database is
// still coming up.
func Open(ctx context.Context, cfg Config, m *metrics.Metrics) (*Client, error) {
	if cfg.ConnectionString == "" {
		return nil, errors.New("database connection string is required")
	}

	db, err := sql.Open("sqlserver", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Warn().Err(err).Msg("database is not reachable yet")
	} else {
		log.Info().Msg("database connection verified")
	}

	c := &Client{
		db:        db,
		maxRows:   cfg.MaxRows,
		timeout:   cfg.QueryTimeout,
		schemaTTL: cfg.SchemaTTL,
		metrics:   m,
	}
	if c.maxRows <= 0 {
		c.maxRows = defaultMaxRows
	}
	if c.timeout <= 0 {
		c.timeout = defaultQueryTimeout
	}
	if c.schemaTTL <= 0 {
		c.schemaTTL = defaultSchemaTTL
	}
	return c, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Query validates the statement read-only and executes it with the
// configured timeout. maxRows overrides the configured row cap when
// positive; one extra row is read to detect truncation.
func (c *Client) Query(ctx context.Context, query string, maxRows int) (*ResultSet, error) {
	if err := ValidateReadOnly(query); err != nil {
		return nil, err
	}

	limit := c.maxRows
	if maxRows > 0 {
		limit = maxRows
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := &ResultSet{Columns: columns}
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if len(result.Rows) >= limit {
			result.Truncated = true
			break
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	c.metrics.ObserveQuery(time.Since(start), len(result.Rows), result.Truncated)
	log.Debug().
		Int("rows", len(result.Rows)).
		Bool("truncated", result.Truncated).
		Dur("duration", time.Since(start)).
		Msg("query executed")
	return result, nil
}

// normalizeValue converts driver types into values that serialize cleanly
// to JSON and read naturally in a prompt.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339)
	case []byte:
		return string(val)
	default:
		return v
	}
}
