// Package rows types table row values according to the owning table's
// column metadata.
package rows

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/mesh-intelligence/capture/pkg/types"
)

// Row parsing errors.
var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrMissingValue  = errors.New("value required for NOT NULL column")
	ErrBadValue      = errors.New("value does not match column type")
)

// timestampLayouts are tried in order when parsing timestamp text.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseValue converts command-line text to the Go value for a column type.
// Unknown type tags keep the text as is.
func ParseValue(colType, text string) (any, error) {
	switch strings.ToLower(colType) {
	case types.TypeInteger:
		v, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrBadValue, text)
		}
		return v, nil
	case types.TypeReal:
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q is not a real number", ErrBadValue, text)
		}
		return v, nil
	case types.TypeBoolean:
		v, err := strconv.ParseBool(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a boolean", ErrBadValue, text)
		}
		return v, nil
	case types.TypeTimestamp:
		s := strings.TrimSpace(text)
		for _, layout := range timestampLayouts {
			if v, err := time.Parse(layout, s); err == nil {
				return v, nil
			}
		}
		return nil, fmt.Errorf("%w: %q is not a timestamp", ErrBadValue, text)
	default:
		return text, nil
	}
}

// ParseAssignments builds a row from col=value arguments. Every problem is
// reported at once. A column given as "col=" on a nullable column is null;
// NOT NULL columns must be given. Primary-key columns are left to the
// backend when omitted.
func ParseAssignments(meta types.TableMeta, args []string) (types.Row, error) {
	row := make(types.Row, len(args))
	var errs error
	for _, arg := range args {
		name, text, ok := strings.Cut(arg, "=")
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%q: expected column=value", arg))
			continue
		}
		col, found := meta.Column(name)
		if !found {
			errs = multierr.Append(errs, fmt.Errorf("%w: %q", ErrUnknownColumn, name))
			continue
		}
		if text == "" && col.Type != types.TypeText {
			if col.NotNull {
				errs = multierr.Append(errs, fmt.Errorf("%w: %q", ErrMissingValue, name))
				continue
			}
			row[name] = nil
			continue
		}
		v, err := ParseValue(col.Type, text)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("column %q: %w", name, err))
			continue
		}
		row[name] = v
	}
	for _, col := range meta.Columns {
		if _, given := row[col.Name]; !given && col.NotNull && !col.PrimaryKey {
			errs = multierr.Append(errs, fmt.Errorf("%w: %q", ErrMissingValue, col.Name))
		}
	}
	if errs != nil {
		return nil, errs
	}
	return row, nil
}

// DecodeRow types a row returned by the backend. A column the table does not
// have, or a value of the wrong JSON kind, is a *types.DecodeError.
func DecodeRow(meta types.TableMeta, raw map[string]json.RawMessage) (types.Row, error) {
	row := make(types.Row, len(raw))
	for name, data := range raw {
		col, ok := meta.Column(name)
		if !ok {
			return nil, &types.DecodeError{Op: "table " + meta.Name, Err: fmt.Errorf("%w: %q", ErrUnknownColumn, name)}
		}
		v, err := decodeValue(col.Type, data)
		if err != nil {
			return nil, &types.DecodeError{Op: "table " + meta.Name, Err: fmt.Errorf("column %q: %w", name, err)}
		}
		row[name] = v
	}
	return row, nil
}

func decodeValue(colType string, data json.RawMessage) (any, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	switch strings.ToLower(colType) {
	case types.TypeInteger:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		return n.Int64()
	case types.TypeReal:
		var v float64
		err := json.Unmarshal(data, &v)
		return v, err
	case types.TypeBoolean:
		var v bool
		err := json.Unmarshal(data, &v)
		return v, err
	case types.TypeTimestamp:
		var v time.Time
		err := json.Unmarshal(data, &v)
		return v, err
	case types.TypeText:
		var v string
		err := json.Unmarshal(data, &v)
		return v, err
	default:
		var v any
		err := json.Unmarshal(data, &v)
		return v, err
	}
}

// Format renders a typed value for display.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return x.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// Columns returns the column names of meta in order, followed by any extra
// keys present in rs, sorted.
func Columns(meta types.TableMeta, rs []types.Row) []string {
	names := make([]string, 0, len(meta.Columns))
	seen := make(map[string]bool, len(meta.Columns))
	for _, c := range meta.Columns {
		names = append(names, c.Name)
		seen[c.Name] = true
	}
	var extra []string
	for _, r := range rs {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}
