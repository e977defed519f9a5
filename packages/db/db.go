// Package db opens SQLite databases for sql steps and sql data providers.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultQueryTimeout = 30 * time.Second
	pingTimeout         = 5 * time.Second
)

// ErrUnsupportedScheme is returned for connection strings naming a driver
// that is not compiled in.
var ErrUnsupportedScheme = errors.New("unsupported database scheme")

// Result holds the rows of a query, in column order.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// First returns the first row, or nil when the query returned none.
func (r *Result) First() map[string]any {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}

// Value returns the named column of the first row. Column names match
// case-insensitively.
func (r *Result) Value(column string) (any, bool) {
	row := r.First()
	if row == nil {
		return nil, false
	}
	if v, ok := row[column]; ok {
		return v, true
	}
	for name, v := range row {
		if strings.EqualFold(name, column) {
			return v, true
		}
	}
	return nil, false
}

type Client struct {
	db      *sql.DB
	dsn     string
	timeout time.Duration
}

// Open connects to the database named by conn and verifies it with a ping.
func Open(ctx context.Context, conn string) (*Client, error) {
	dsn, err := ParseConnectionString(conn)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Client{db: sqlDB, dsn: dsn, timeout: defaultQueryTimeout}, nil
}

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Query runs a statement returning rows. []byte values are converted to strings.
func (c *Client) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	res := &Result{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return res, nil
}

// Exec runs a statement that returns no rows and reports the affected count.
func (c *Client) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// ParseConnectionString turns sqlite://path, sqlite:path or a bare file
// path into a driver DSN.
func ParseConnectionString(conn string) (string, error) {
	conn = strings.TrimSpace(conn)
	switch {
	case conn == "":
		return "", errors.New("empty connection string")
	case strings.HasPrefix(conn, "sqlite://"):
		return strings.TrimPrefix(conn, "sqlite://"), nil
	case strings.HasPrefix(conn, "sqlite:"):
		return strings.TrimPrefix(conn, "sqlite:"), nil
	case strings.HasPrefix(conn, "file:"):
		return conn, nil
	}
	if i := strings.Index(conn, "://"); i > 0 {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, conn[:i])
	}
	return conn, nil
}

// Pool shares one Client per connection string for the lifetime of a run.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func NewPool() *Pool {
	return &Pool{clients: make(map[string]*Client)}
}

// Get returns the cached client for conn, opening it on first use.
func (p *Pool) Get(ctx context.Context, conn string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[conn]; ok {
		return c, nil
	}
	c, err := Open(ctx, conn)
	if err != nil {
		return nil, err
	}
	p.clients[conn] = c
	return c, nil
}

// Close closes every pooled client and returns the first error.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for conn, c := range p.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(p.clients, conn)
	}
	return first
}
