// Package export mirrors a project's tables and rows into a local SQL
// database (SQLite, PostgreSQL or MySQL).
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/capture/internal/api"
	"github.com/mesh-intelligence/capture/internal/logging"
	"github.com/mesh-intelligence/capture/internal/rows"
	"github.com/mesh-intelligence/capture/pkg/types"
)

// Export errors.
var (
	ErrUnsupportedDriver = errors.New("unsupported driver")
	ErrInvalidTable      = errors.New("invalid table")
	ErrForeignKeyCycle   = errors.New("foreign key cycle")
)

// DefaultFetchConcurrency bounds concurrent table-data requests.
const DefaultFetchConcurrency = 4

// Source is the read side of the backend API used by Project.
type Source interface {
	ProjectMeta(ctx context.Context, project string) ([]types.TableMeta, error)
	TableData(ctx context.Context, project, table string) ([]api.RawRow, error)
}

// DB is an open export target.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the target database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	d, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", d, err)
	}
	return &DB{DB: conn, Dialect: d}, nil
}

// Options tune Project.
type Options struct {
	// Replace drops existing tables of the same names before creating them.
	Replace bool
	// Concurrency bounds concurrent table-data fetches. Zero means
	// DefaultFetchConcurrency.
	Concurrency int
	Logger      *zap.SugaredLogger
}

// TableResult reports one exported table.
type TableResult struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// Result reports a finished export.
type Result struct {
	Project string        `json:"project"`
	Tables  []TableResult `json:"tables"`
}

type tableData struct {
	meta types.TableMeta
	rows []types.Row
}

// Project copies every table of project from src into db. Table data is
// fetched concurrently and all writes happen in one transaction. A failed
// export leaves SQLite and PostgreSQL targets unchanged. MySQL commits each
// DROP and CREATE TABLE implicitly, so there only the inserted rows are
// rolled back.
func Project(ctx context.Context, src Source, project string, db *DB, opts Options) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = DefaultFetchConcurrency
	}

	metas, err := src.ProjectMeta(ctx, project)
	if err != nil {
		return Result{}, fmt.Errorf("fetch project meta: %w", err)
	}
	ordered, err := Order(metas)
	if err != nil {
		return Result{}, err
	}

	p := pool.NewWithResults[tableData]().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(workers)
	for _, meta := range ordered {
		p.Go(func(ctx context.Context) (tableData, error) {
			raw, err := src.TableData(ctx, project, meta.Name)
			if err != nil {
				return tableData{}, fmt.Errorf("fetch table %q: %w", meta.Name, err)
			}
			decoded := make([]types.Row, 0, len(raw))
			for _, r := range raw {
				row, err := rows.DecodeRow(meta, r)
				if err != nil {
					return tableData{}, err
				}
				decoded = append(decoded, row)
			}
			log.Debugw("fetched table", "project", project, "table", meta.Name, "rows", len(decoded))
			return tableData{meta: meta, rows: decoded}, nil
		})
	}
	fetched, err := p.Wait()
	if err != nil {
		return Result{}, err
	}
	byName := make(map[string]tableData, len(fetched))
	for _, td := range fetched {
		byName[td.meta.Name] = td
	}

	res := Result{Project: project}
	err = inTx(ctx, db.DB, func(tx *sql.Tx) error {
		if opts.Replace {
			for i := len(ordered) - 1; i >= 0; i-- {
				if _, err := tx.ExecContext(ctx, DropTableSQL(db.Dialect, ordered[i].Name)); err != nil {
					return fmt.Errorf("drop table %q: %w", ordered[i].Name, err)
				}
			}
		}
		for _, meta := range ordered {
			n, err := writeTable(ctx, tx, db.Dialect, byName[meta.Name])
			if err != nil {
				return err
			}
			res.Tables = append(res.Tables, TableResult{Name: meta.Name, Rows: n})
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	log.Infow("exported project", "project", project, "tables", len(res.Tables), "dialect", db.Dialect)
	return res, nil
}

func writeTable(ctx context.Context, tx *sql.Tx, d Dialect, td tableData) (int, error) {
	ddl, err := CreateTableSQL(d, td.meta)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return 0, fmt.Errorf("create table %q: %w", td.meta.Name, err)
	}
	n := 0
	for i, row := range td.rows {
		cols := make([]string, 0, len(row))
		for c := range row {
			cols = append(cols, c)
		}
		if len(cols) == 0 {
			continue
		}
		sort.Strings(cols)
		args := make([]any, len(cols))
		for j, c := range cols {
			args[j] = row[c]
		}
		if _, err := tx.ExecContext(ctx, InsertSQL(d, td.meta.Name, cols), args...); err != nil {
			return 0, fmt.Errorf("insert into %q row %d: %w", td.meta.Name, i, err)
		}
		n++
	}
	return n, nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
