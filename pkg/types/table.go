package types

// Column type tags understood by the client. The backend defines the set;
// unknown tags are passed through and their values treated as text.
const (
	TypeInteger   = "integer"
	TypeReal      = "real"
	TypeBoolean   = "boolean"
	TypeText      = "text"
	TypeTimestamp = "timestamp"
)

// ColumnTypes lists the known type tags in display order.
var ColumnTypes = []string{
	TypeInteger,
	TypeReal,
	TypeBoolean,
	TypeText,
	TypeTimestamp,
}

// ForeignKey references a single column of another table in the same
// project.
type ForeignKey struct {
	Table  string `json:"table" yaml:"table"`
	Column string `json:"column" yaml:"column"`
}

// ColumnMeta describes one column of a user-defined table.
type ColumnMeta struct {
	Name       string      `json:"name" yaml:"name"`
	Type       string      `json:"type" yaml:"type"`
	NotNull    bool        `json:"not_null" yaml:"not_null,omitempty"`
	Unique     bool        `json:"unique" yaml:"unique,omitempty"`
	PrimaryKey bool        `json:"primary_key" yaml:"primary_key,omitempty"`
	ForeignKey *ForeignKey `json:"foreign_key,omitempty" yaml:"foreign_key,omitempty"`
}

// TableMeta is the schema of a user-defined table: its name and ordered
// columns.
type TableMeta struct {
	Name    string       `json:"name" yaml:"name"`
	Columns []ColumnMeta `json:"columns" yaml:"columns"`
}

// PrimaryKeys returns the primary-key columns in column order.
func (t TableMeta) PrimaryKeys() []ColumnMeta {
	var pks []ColumnMeta
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pks = append(pks, c)
		}
	}
	return pks
}

// Column returns the column with the given name.
func (t TableMeta) Column(name string) (ColumnMeta, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnMeta{}, false
}

// Row maps column names to typed values. Values are int64, float64, bool,
// string, time.Time or nil, according to the owning table's columns.
type Row map[string]any
