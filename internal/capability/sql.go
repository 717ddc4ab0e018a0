package capability

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// SQLProvider runs database operations against per-target connections. A
// target is a DSN whose scheme picks the driver, the same three the engine
// store supports. Connections are opened lazily and cached for the life of
// the provider.
type SQLProvider struct {
	mu    sync.Mutex
	conns map[string]*sql.DB
}

func NewSQLProvider() *SQLProvider {
	return &SQLProvider{conns: make(map[string]*sql.DB)}
}

func (p *SQLProvider) open(target string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if db, ok := p.conns[target]; ok {
		return db, nil
	}

	driver := "postgres"
	dsn := target
	if strings.HasPrefix(target, "mysql://") {
		driver = "mysql"
		dsn = strings.TrimPrefix(target, "mysql://")
	} else if strings.HasPrefix(target, "sqlite3://") {
		driver = "sqlite3"
		dsn = strings.TrimPrefix(target, "sqlite3://")
	} else if !strings.HasPrefix(target, "postgres://") && !strings.HasPrefix(target, "postgresql://") {
		return nil, fmt.Errorf("unsupported target %q, expected a postgres://, mysql:// or sqlite3:// DSN", target)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	p.conns[target] = db
	return db, nil
}

// Close releases every cached connection.
func (p *SQLProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for target, db := range p.conns {
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
		delete(p.conns, target)
	}
	return first
}

func (p *SQLProvider) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Target == "" {
		return nil, fmt.Errorf("operation %s requires a target", req.Operation)
	}
	db, err := p.open(req.Target)
	if err != nil {
		return nil, err
	}

	switch req.Operation {
	case OpQuery:
		return p.query(ctx, db, req.Statement)
	case OpApply, OpRevert:
		return p.exec(ctx, db, req.Statement)
	case OpSimulate:
		return p.simulate(ctx, db, req.Statement)
	case OpDiscover:
		return p.discover(ctx, db, req.Target)
	default:
		return nil, fmt.Errorf("unsupported database operation %q", req.Operation)
	}
}

func (p *SQLProvider) query(ctx context.Context, db *sql.DB, statement string) (*Result, error) {
	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = vals[i]
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Result{Data: map[string]any{"rows": records, "count": len(records)}}, nil
}

func (p *SQLProvider) exec(ctx context.Context, db *sql.DB, statement string) (*Result, error) {
	res, err := db.ExecContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	affected, _ := res.RowsAffected()
	return &Result{Data: map[string]any{"rowsAffected": affected}}, nil
}

// simulate runs the statement inside a transaction that is always rolled
// back, reporting what the real apply would have touched.
func (p *SQLProvider) simulate(ctx context.Context, db *sql.DB, statement string) (*Result, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	affected, _ := res.RowsAffected()
	return &Result{Data: map[string]any{"rowsAffected": affected, "simulated": true}}, nil
}

func (p *SQLProvider) discover(ctx context.Context, db *sql.DB, target string) (*Result, error) {
	query := `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`
	if strings.HasPrefix(target, "mysql://") {
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name`
	} else if strings.HasPrefix(target, "sqlite3://") {
		query = `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []any
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Result{Data: map[string]any{"tables": tables, "count": len(tables)}}, nil
}
