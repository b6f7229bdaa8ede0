package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sourcegraph/conc/pool"

	"github.com/mesh-intelligence/capture/internal/logging"
	"github.com/mesh-intelligence/capture/internal/rows"
	"github.com/mesh-intelligence/capture/pkg/types"
)

// SchemaFileName holds the table schemas of a dump.
const SchemaFileName = "schema.json"

// ErrNoSchema means a dump directory lacks schema.json.
var ErrNoSchema = errors.New("dump has no " + SchemaFileName)

// Sink is the write side of the backend API used by Restore.
type Sink interface {
	CreateTable(ctx context.Context, project string, meta types.TableMeta) error
	InsertRow(ctx context.Context, project, table string, row types.Row) error
}

// readJSONL returns each non-empty, valid JSON line of path. Malformed
// lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		records = append(records, json.RawMessage(append([]byte(nil), line...)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeAtomic writes path through a temp file, fsync and rename.
func writeAtomic(path string, write func(w *bufio.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dump-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		return fail(err)
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flushing buffer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// writeJSONL writes one record per line.
func writeJSONL[T any](path string, records []T) error {
	return writeAtomic(path, func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		for i, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("writing record %d: %w", i, err)
			}
		}
		return nil
	})
}

func tableFile(dir, table string) string {
	return filepath.Join(dir, table+".jsonl")
}

// checkFileNames rejects tables whose name is not a single local path
// element, so every table file stays inside the dump directory.
func checkFileNames(metas []types.TableMeta) error {
	for _, meta := range metas {
		name := meta.Name
		if name == "" || name == "." || name == ".." || filepath.Base(name) != name || !filepath.IsLocal(name+".jsonl") {
			return fmt.Errorf("%w: table name %q is not usable as a file name", ErrInvalidTable, name)
		}
	}
	return nil
}

// Dump writes project to dir: schema.json with every table schema, and one
// <table>.jsonl file of rows per table. Rows are written as the backend
// returned them.
func Dump(ctx context.Context, src Source, project, dir string, opts Options) (Result, error) {
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
	if err := checkFileNames(metas); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create dump dir: %w", err)
	}

	p := pool.NewWithResults[TableResult]().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(workers)
	for _, meta := range metas {
		p.Go(func(ctx context.Context) (TableResult, error) {
			raw, err := src.TableData(ctx, project, meta.Name)
			if err != nil {
				return TableResult{}, fmt.Errorf("fetch table %q: %w", meta.Name, err)
			}
			if err := writeJSONL(tableFile(dir, meta.Name), raw); err != nil {
				return TableResult{}, fmt.Errorf("write table %q: %w", meta.Name, err)
			}
			return TableResult{Name: meta.Name, Rows: len(raw)}, nil
		})
	}
	written, err := p.Wait()
	if err != nil {
		return Result{}, err
	}

	// schema.json goes last so an interrupted dump is not mistaken for a
	// complete one.
	err = writeAtomic(filepath.Join(dir, SchemaFileName), func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(metas)
	})
	if err != nil {
		return Result{}, fmt.Errorf("write schema: %w", err)
	}

	counts := make(map[string]int, len(written))
	for _, tr := range written {
		counts[tr.Name] = tr.Rows
	}
	res := Result{Project: project}
	for _, m := range metas {
		res.Tables = append(res.Tables, TableResult{Name: m.Name, Rows: counts[m.Name]})
	}
	log.Infow("dumped project", "project", project, "dir", dir, "tables", len(res.Tables))
	return res, nil
}

// LoadSchema reads schema.json from a dump directory.
func LoadSchema(dir string) ([]types.TableMeta, error) {
	data, err := os.ReadFile(filepath.Join(dir, SchemaFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSchema
	}
	if err != nil {
		return nil, err
	}
	var metas []types.TableMeta
	if err := json.Unmarshal(data, &metas); err != nil {
		return nil, &types.DecodeError{Op: SchemaFileName, Err: err}
	}
	return metas, nil
}

// Restore recreates a dump in project: tables in foreign-key order, then
// their rows. The project must exist and must not contain the dumped
// tables. Malformed lines in table files are skipped. A missing table file
// restores an empty table.
func Restore(ctx context.Context, dst Sink, project, dir string, opts Options) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	metas, err := LoadSchema(dir)
	if err != nil {
		return Result{}, err
	}
	if err := checkFileNames(metas); err != nil {
		return Result{}, err
	}
	ordered, err := Order(metas)
	if err != nil {
		return Result{}, err
	}

	for _, meta := range ordered {
		if err := dst.CreateTable(ctx, project, meta); err != nil {
			return Result{}, fmt.Errorf("create table %q: %w", meta.Name, err)
		}
	}

	res := Result{Project: project}
	for _, meta := range ordered {
		records, err := readJSONL(tableFile(dir, meta.Name))
		if errors.Is(err, os.ErrNotExist) {
			records = nil
		} else if err != nil {
			return Result{}, err
		}
		n := 0
		for _, rec := range records {
			var raw map[string]json.RawMessage
			if err := json.Unmarshal(rec, &raw); err != nil {
				log.Warnw("skipping non-object row", "table", meta.Name, "error", err)
				continue
			}
			row, err := rows.DecodeRow(meta, raw)
			if err != nil {
				log.Warnw("skipping row", "table", meta.Name, "error", err)
				continue
			}
			if err := dst.InsertRow(ctx, project, meta.Name, row); err != nil {
				return Result{}, fmt.Errorf("insert into %q: %w", meta.Name, err)
			}
			n++
		}
		res.Tables = append(res.Tables, TableResult{Name: meta.Name, Rows: n})
	}
	log.Infow("restored project", "project", project, "dir", dir, "tables", len(res.Tables))
	return res, nil
}
