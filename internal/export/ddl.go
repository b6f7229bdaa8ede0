package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mesh-intelligence/capture/pkg/types"
)

// CreateTableSQL returns the CREATE TABLE statement for meta.
func CreateTableSQL(d Dialect, meta types.TableMeta) (string, error) {
	if meta.Name == "" {
		return "", fmt.Errorf("%w: table has no name", ErrInvalidTable)
	}
	if len(meta.Columns) == 0 {
		return "", fmt.Errorf("%w: table %q has no columns", ErrInvalidTable, meta.Name)
	}

	pks := meta.PrimaryKeys()
	var defs []string
	for _, c := range meta.Columns {
		if c.Name == "" {
			return "", fmt.Errorf("%w: table %q has an unnamed column", ErrInvalidTable, meta.Name)
		}
		keyed := c.PrimaryKey || c.Unique || c.ForeignKey != nil
		def := d.Quote(c.Name) + " " + d.ColumnType(c.Type, keyed)
		if c.NotNull || c.PrimaryKey {
			def += " NOT NULL"
		}
		if c.Unique && !(c.PrimaryKey && len(pks) == 1) {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}

	if len(pks) > 0 {
		names := make([]string, len(pks))
		for i, c := range pks {
			names[i] = d.Quote(c.Name)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(names, ", ")+")")
	}
	for _, c := range meta.Columns {
		if c.ForeignKey == nil {
			continue
		}
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			d.Quote(c.Name), d.Quote(c.ForeignKey.Table), d.Quote(c.ForeignKey.Column)))
	}

	return fmt.Sprintf("CREATE TABLE %s (\n    %s\n)", d.Quote(meta.Name), strings.Join(defs, ",\n    ")), nil
}

// DropTableSQL returns a DROP TABLE IF EXISTS statement.
func DropTableSQL(d Dialect, table string) string {
	return "DROP TABLE IF EXISTS " + d.Quote(table)
}

// InsertSQL returns a parameterized INSERT for the given column order.
func InsertSQL(d Dialect, table string, columns []string) string {
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
		marks[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

// Order sorts metas so every table follows the tables its foreign keys
// reference. Ties keep name order. Self-references and references to tables
// outside metas are ignored; a reference cycle is an error.
func Order(metas []types.TableMeta) ([]types.TableMeta, error) {
	byName := make(map[string]types.TableMeta, len(metas))
	for _, m := range metas {
		byName[m.Name] = m
	}
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))
	ordered := make([]types.TableMeta, 0, len(names))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrForeignKeyCycle, strings.Join(append(path, name), " -> "))
		}
		state[name] = visiting
		meta := byName[name]
		var deps []string
		for _, c := range meta.Columns {
			if fk := c.ForeignKey; fk != nil && fk.Table != name {
				if _, ok := byName[fk.Table]; ok {
					deps = append(deps, fk.Table)
				}
			}
		}
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		ordered = append(ordered, meta)
		return nil
	}

	for _, n := range names {
		if err := visit(n, nil); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
