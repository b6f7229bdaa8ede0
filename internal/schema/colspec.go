package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/capture/pkg/types"
)

// ParseColumnSpec parses a column written as
//
//	name:type[:pk][:notnull][:unique][:fk=table[.column]]
//
// Flags may appear in any order after the type.
func ParseColumnSpec(spec string) (types.ColumnMeta, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 {
		return types.ColumnMeta{}, fmt.Errorf("column %q: expected name:type", spec)
	}
	c := types.ColumnMeta{
		Name: strings.TrimSpace(parts[0]),
		Type: strings.ToLower(strings.TrimSpace(parts[1])),
	}
	for _, flag := range parts[2:] {
		flag = strings.TrimSpace(flag)
		switch {
		case strings.EqualFold(flag, "pk"), strings.EqualFold(flag, "primary_key"):
			c.PrimaryKey = true
		case strings.EqualFold(flag, "notnull"), strings.EqualFold(flag, "not_null"):
			c.NotNull = true
		case strings.EqualFold(flag, "unique"):
			c.Unique = true
		case strings.HasPrefix(flag, "fk="):
			ref := strings.TrimPrefix(flag, "fk=")
			table, column, _ := strings.Cut(ref, ".")
			if table == "" {
				return types.ColumnMeta{}, fmt.Errorf("column %q: empty foreign table", spec)
			}
			c.ForeignKey = &types.ForeignKey{Table: table, Column: column}
		default:
			return types.ColumnMeta{}, fmt.Errorf("column %q: unknown flag %q", spec, flag)
		}
	}
	return c, nil
}

// LoadFile reads a table schema from a YAML or JSON file.
func LoadFile(path string) (types.TableMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.TableMeta{}, fmt.Errorf("read schema file: %w", err)
	}
	var meta types.TableMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return types.TableMeta{}, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	return meta, nil
}

// Fill replaces the form contents with meta. Each column goes through
// SetColumn, so foreign keys are checked against the known tables. On error
// the form is left empty.
func (f *Form) Fill(meta types.TableMeta) error {
	f.Reset()
	f.SetName(meta.Name)
	for i, c := range meta.Columns {
		if i > 0 {
			f.AddColumn()
		}
		if err := f.SetColumn(i, c); err != nil {
			f.Reset()
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
	}
	return nil
}
