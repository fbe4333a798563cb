// Package sqlitedb implements the embedded-database protocol adapter.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/dataway-dev/dataway/internal/adapter"
	"github.com/dataway-dev/dataway/internal/logging"
	"github.com/dataway-dev/dataway/internal/routes"
)

// Adapter executes SQL descriptors against the embedded database. The
// handle is owned by the caller; a nil handle leaves the adapter
// unconfigured.
type Adapter struct {
	db     *sql.DB
	logger *zap.Logger
}

// New constructs a SQL adapter around an opened database handle.
func New(db *sql.DB, logger *zap.Logger) *Adapter {
	return &Adapter{db: db, logger: logger}
}

// Configure implements adapter.Adapter. The embedded database carries no
// per-connection credentials, so this is a no-op.
func (a *Adapter) Configure(params adapter.ConnectionParams) {}

// Close implements adapter.Adapter. The database handle belongs to the
// caller and is not closed here.
func (a *Adapter) Close() error { return nil }

// Execute runs the descriptor's parameterized query, binding args
// positionally in descriptor order. Routes declared void execute without
// reading rows; object routes yield only the first result row.
func (a *Adapter) Execute(ctx context.Context, entry *routes.Entry, args map[string]any) (any, error) {
	desc := entry.SQLite
	if desc == nil {
		return nil, fmt.Errorf("route %q has no sqlite descriptor", entry.Name)
	}
	if a.db == nil {
		return nil, adapter.ErrNotConfigured
	}

	bound := make([]any, len(desc.Args))
	for i, field := range desc.Args {
		bound[i] = args[field]
	}

	a.logger.Debug("executing sql call", logging.Route(entry.Name))

	if entry.Return == routes.ShapeVoid {
		if _, err := a.db.ExecContext(ctx, desc.Query, bound...); err != nil {
			return nil, fmt.Errorf("exec %q: %w", entry.Name, err)
		}
		return nil, nil
	}

	rows, err := a.db.QueryContext(ctx, desc.Query, bound...)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", entry.Name, err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", entry.Name, err)
	}

	if entry.Return == routes.ShapeObject {
		if len(results) == 0 {
			return nil, nil
		}
		return results[0], nil
	}
	return results, nil
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, column := range columns {
			value := values[i]
			// database/sql yields []byte for sqlite text columns.
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			row[column] = value
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
