package rows

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/capture/pkg/types"
)

var people = types.TableMeta{Name: "people", Columns: []types.ColumnMeta{
	{Name: "id", Type: types.TypeInteger, PrimaryKey: true, NotNull: true},
	{Name: "name", Type: types.TypeText, NotNull: true},
	{Name: "height", Type: types.TypeReal},
	{Name: "active", Type: types.TypeBoolean},
	{Name: "joined", Type: types.TypeTimestamp},
}}

func TestParseValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		typ     string
		text    string
		want    any
		wantErr bool
	}{
		{types.TypeInteger, "42", int64(42), false},
		{types.TypeInteger, " -7 ", int64(-7), false},
		{types.TypeInteger, "4.2", nil, true},
		{types.TypeReal, "1.5", 1.5, false},
		{types.TypeReal, "NaN", nil, true},
		{types.TypeBoolean, "true", true, false},
		{types.TypeBoolean, "0", false, false},
		{types.TypeBoolean, "yes", nil, true},
		{types.TypeTimestamp, "2024-03-01T10:30:00Z", ts, false},
		{types.TypeTimestamp, "2024-03-01 10:30:00", ts, false},
		{types.TypeTimestamp, "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{types.TypeTimestamp, "yesterday", nil, true},
		{types.TypeText, "hello", "hello", false},
		{"uuid", "abc", "abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.text, func(t *testing.T) {
			got, err := ParseValue(tt.typ, tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAssignments(t *testing.T) {
	row, err := ParseAssignments(people, []string{"name=Ada", "height=1.7", "active=true", "joined="})
	require.NoError(t, err)
	assert.Equal(t, types.Row{"name": "Ada", "height": 1.7, "active": true, "joined": nil}, row)
}

func TestParseAssignmentsReportsEveryError(t *testing.T) {
	_, err := ParseAssignments(people, []string{"height=tall", "color=red", "oops"})
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrBadValue))
	assert.True(t, errors.Is(err, ErrUnknownColumn))
	assert.True(t, errors.Is(err, ErrMissingValue), "name is NOT NULL and missing")
	assert.Contains(t, err.Error(), "expected column=value")
}

func TestParseAssignmentsEmptyTextIsEmptyString(t *testing.T) {
	row, err := ParseAssignments(people, []string{"name="})
	require.NoError(t, err)
	assert.Equal(t, "", row["name"])
}

func TestDecodeRow(t *testing.T) {
	raw := map[string]json.RawMessage{
		"id":     json.RawMessage(`7`),
		"name":   json.RawMessage(`"Ada"`),
		"height": json.RawMessage(`1.5`),
		"active": json.RawMessage(`false`),
		"joined": json.RawMessage(`"2024-03-01T10:30:00Z"`),
	}
	row, err := DecodeRow(people, raw)
	require.NoError(t, err)
	assert.Equal(t, int64(7), row["id"])
	assert.Equal(t, "Ada", row["name"])
	assert.Equal(t, 1.5, row["height"])
	assert.Equal(t, false, row["active"])
	assert.Equal(t, time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), row["joined"])

	row, err = DecodeRow(people, map[string]json.RawMessage{"height": json.RawMessage(`null`)})
	require.NoError(t, err)
	assert.Nil(t, row["height"])
}

func TestDecodeRowMismatchIsDecodeError(t *testing.T) {
	tests := map[string]map[string]json.RawMessage{
		"unknown column":    {"color": json.RawMessage(`"red"`)},
		"text for integer":  {"id": json.RawMessage(`"seven"`)},
		"fraction integer":  {"id": json.RawMessage(`7.5`)},
		"number for text":   {"name": json.RawMessage(`3`)},
		"string for bool":   {"active": json.RawMessage(`"no"`)},
		"invalid timestamp": {"joined": json.RawMessage(`"soon"`)},
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRow(people, raw)
			var de *types.DecodeError
			require.True(t, errors.As(err, &de), "got %v", err)
			assert.Contains(t, err.Error(), "decode error: table people")
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "NULL", Format(nil))
	assert.Equal(t, "1.5", Format(1.5))
	assert.Equal(t, "42", Format(int64(42)))
	assert.Equal(t, "true", Format(true))
	assert.Equal(t, "2024-03-01T10:30:00Z", Format(time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)))
}

func TestColumns(t *testing.T) {
	names := Columns(people, []types.Row{{"zeta": 1, "alpha": 2, "id": int64(1)}})
	assert.Equal(t, []string{"id", "name", "height", "active", "joined", "alpha", "zeta"}, names)
}
