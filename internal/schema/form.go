// Package schema holds the editable state of a create-table form: an
// ordered list of column descriptors that is never empty, a viability check
// gating submission, and foreign-key wiring constrained to tables with a
// single primary-key column.
package schema

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mesh-intelligence/capture/pkg/types"
)

// Form errors.
var (
	ErrFormIncomplete       = errors.New("table name and every column name and type are required")
	ErrColumnIndex          = errors.New("column index out of range")
	ErrForeignTargetInvalid = errors.New("foreign table must have exactly one primary-key column")
	ErrForeignColumnLocked  = errors.New("foreign column is fixed to the target table's primary key")
)

// Creator submits a finished table schema.
type Creator interface {
	CreateTable(ctx context.Context, project string, meta types.TableMeta) error
}

// Form is the in-memory state of one create-table form. It is not safe for
// concurrent use.
type Form struct {
	project string
	name    string
	columns []types.ColumnMeta
	known   []types.TableMeta
	err     string
}

// NewForm returns a form for a table in project. known lists the tables
// already in the project; it supplies the foreign-key targets.
func NewForm(project string, known []types.TableMeta) *Form {
	return &Form{
		project: project,
		columns: []types.ColumnMeta{{}},
		known:   slices.Clone(known),
	}
}

// Project returns the project the table will be created in.
func (f *Form) Project() string { return f.project }

// Name returns the table name.
func (f *Form) Name() string { return f.name }

// SetName sets the table name.
func (f *Form) SetName(name string) { f.name = name }

// Len returns the number of columns. It is always at least one.
func (f *Form) Len() int { return len(f.columns) }

// Columns returns a copy of the column descriptors.
func (f *Form) Columns() []types.ColumnMeta {
	out := make([]types.ColumnMeta, len(f.columns))
	for i, c := range f.columns {
		out[i] = cloneColumn(c)
	}
	return out
}

// Column returns the column at i.
func (f *Form) Column(i int) (types.ColumnMeta, error) {
	if err := f.check(i); err != nil {
		return types.ColumnMeta{}, err
	}
	return cloneColumn(f.columns[i]), nil
}

// AddColumn appends a default (empty) column and returns its index.
func (f *Form) AddColumn() int {
	f.columns = append(f.columns, types.ColumnMeta{})
	return len(f.columns) - 1
}

// RemoveColumn removes the column at i. Removing the last remaining column
// leaves a single default column in its place.
func (f *Form) RemoveColumn(i int) error {
	if err := f.check(i); err != nil {
		return err
	}
	f.columns = slices.Delete(f.columns, i, i+1)
	if len(f.columns) == 0 {
		f.columns = append(f.columns, types.ColumnMeta{})
	}
	return nil
}

// SetColumnName sets the name of the column at i.
func (f *Form) SetColumnName(i int, name string) error {
	return f.edit(i, func(c *types.ColumnMeta) { c.Name = name })
}

// SetColumnType sets the type tag of the column at i.
func (f *Form) SetColumnType(i int, typ string) error {
	return f.edit(i, func(c *types.ColumnMeta) { c.Type = typ })
}

// SetNotNull sets the NOT NULL constraint of the column at i.
func (f *Form) SetNotNull(i int, v bool) error {
	return f.edit(i, func(c *types.ColumnMeta) { c.NotNull = v })
}

// SetUnique sets the UNIQUE constraint of the column at i.
func (f *Form) SetUnique(i int, v bool) error {
	return f.edit(i, func(c *types.ColumnMeta) { c.Unique = v })
}

// SetPrimaryKey marks the column at i as part of the primary key.
func (f *Form) SetPrimaryKey(i int, v bool) error {
	return f.edit(i, func(c *types.ColumnMeta) { c.PrimaryKey = v })
}

// SetColumn replaces the column at i. A foreign key in c goes through the
// same validation as SetForeignTable and SetForeignColumn; on error the
// column is left as it was.
func (f *Form) SetColumn(i int, c types.ColumnMeta) error {
	if err := f.check(i); err != nil {
		return err
	}
	if fk := c.ForeignKey; fk != nil {
		target, ok := f.target(fk.Table)
		if !ok {
			return fmt.Errorf("%w: %q", ErrForeignTargetInvalid, fk.Table)
		}
		pk := target.PrimaryKeys()[0].Name
		if fk.Column != "" && fk.Column != pk {
			return fmt.Errorf("%w: %s.%s", ErrForeignColumnLocked, target.Name, pk)
		}
		c.ForeignKey = &types.ForeignKey{Table: target.Name, Column: pk}
	}
	f.columns[i] = c
	return nil
}

// ForeignTargets returns the known tables a foreign key may reference:
// those with exactly one primary-key column.
func (f *Form) ForeignTargets() []types.TableMeta {
	var out []types.TableMeta
	for _, t := range f.known {
		if len(t.PrimaryKeys()) == 1 {
			out = append(out, t)
		}
	}
	return out
}

// SetForeignTable points the column at i to table. The referenced column is
// selected automatically (the table's sole primary key) and locked.
func (f *Form) SetForeignTable(i int, table string) error {
	if err := f.check(i); err != nil {
		return err
	}
	target, ok := f.target(table)
	if !ok {
		return fmt.Errorf("%w: %q", ErrForeignTargetInvalid, table)
	}
	f.columns[i].ForeignKey = &types.ForeignKey{
		Table:  target.Name,
		Column: target.PrimaryKeys()[0].Name,
	}
	return nil
}

// SetForeignColumn chooses the referenced column of the column at i. The
// column is locked to the target's primary key, so any other name fails
// with ErrForeignColumnLocked.
func (f *Form) SetForeignColumn(i int, column string) error {
	if err := f.check(i); err != nil {
		return err
	}
	fk := f.columns[i].ForeignKey
	if fk == nil {
		return fmt.Errorf("column %d has no foreign table", i)
	}
	if column != fk.Column {
		return fmt.Errorf("%w: %s.%s", ErrForeignColumnLocked, fk.Table, fk.Column)
	}
	return nil
}

// ForeignColumnLocked reports whether the referenced column of the column
// at i is fixed. It is whenever a foreign table is selected.
func (f *Form) ForeignColumnLocked(i int) bool {
	if f.check(i) != nil {
		return false
	}
	return f.columns[i].ForeignKey != nil
}

// ClearForeignKey removes the foreign key of the column at i.
func (f *Form) ClearForeignKey(i int) error {
	return f.edit(i, func(c *types.ColumnMeta) { c.ForeignKey = nil })
}

// CanSubmit reports whether the form is complete: the table has a name and
// every column has a name and a type.
func (f *Form) CanSubmit() bool {
	if f.name == "" {
		return false
	}
	for _, c := range f.columns {
		if c.Name == "" || c.Type == "" {
			return false
		}
	}
	return true
}

// Meta returns the create-table request described by the form.
func (f *Form) Meta() types.TableMeta {
	return types.TableMeta{Name: f.name, Columns: f.Columns()}
}

// Err returns the message of the last failed submission, or "".
func (f *Form) Err() string { return f.err }

// Submit sends the table to c. On success the form is reset to a single
// empty column with no name. On failure the contents are kept for
// correction and the message is available from Err.
func (f *Form) Submit(ctx context.Context, c Creator) error {
	if !f.CanSubmit() {
		f.err = ErrFormIncomplete.Error()
		return ErrFormIncomplete
	}
	if err := c.CreateTable(ctx, f.project, f.Meta()); err != nil {
		f.err = SubmitMessage(f.name, err)
		return err
	}
	f.Reset()
	return nil
}

// Reset clears the form to its default state. The known tables are kept.
func (f *Form) Reset() {
	f.name = ""
	f.columns = []types.ColumnMeta{{}}
	f.err = ""
}

// SetKnown replaces the known tables, e.g. after a fresh fetch. Foreign keys
// that no longer point at a viable target are dropped.
func (f *Form) SetKnown(known []types.TableMeta) {
	f.known = slices.Clone(known)
	for i := range f.columns {
		fk := f.columns[i].ForeignKey
		if fk == nil {
			continue
		}
		if t, ok := f.target(fk.Table); !ok || t.PrimaryKeys()[0].Name != fk.Column {
			f.columns[i].ForeignKey = nil
		}
	}
}

// SubmitMessage renders a create-table failure for display next to the
// form.
func SubmitMessage(table string, err error) string {
	switch {
	case errors.Is(err, types.ErrTableAlreadyExists), errors.Is(err, types.ErrConflict):
		return fmt.Sprintf("Table '%s' already exists", table)
	case errors.Is(err, types.ErrNotFound):
		return "Project not found"
	}
	return err.Error()
}

func (f *Form) target(table string) (types.TableMeta, bool) {
	for _, t := range f.ForeignTargets() {
		if t.Name == table {
			return t, true
		}
	}
	return types.TableMeta{}, false
}

func (f *Form) check(i int) error {
	if i < 0 || i >= len(f.columns) {
		return fmt.Errorf("%w: %d", ErrColumnIndex, i)
	}
	return nil
}

func (f *Form) edit(i int, fn func(c *types.ColumnMeta)) error {
	if err := f.check(i); err != nil {
		return err
	}
	fn(&f.columns[i])
	return nil
}

func cloneColumn(c types.ColumnMeta) types.ColumnMeta {
	if c.ForeignKey != nil {
		fk := *c.ForeignKey
		c.ForeignKey = &fk
	}
	return c
}
