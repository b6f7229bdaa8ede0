package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableMetaPrimaryKeys(t *testing.T) {
	meta := TableMeta{
		Name: "orders",
		Columns: []ColumnMeta{
			{Name: "id", Type: TypeInteger, PrimaryKey: true},
			{Name: "note", Type: TypeText},
			{Name: "line", Type: TypeInteger, PrimaryKey: true},
		},
	}

	pks := meta.PrimaryKeys()
	require.Len(t, pks, 2)
	assert.Equal(t, "id", pks[0].Name)
	assert.Equal(t, "line", pks[1].Name)

	assert.Empty(t, TableMeta{Name: "empty"}.PrimaryKeys())
}

func TestTableMetaColumn(t *testing.T) {
	meta := TableMeta{Columns: []ColumnMeta{{Name: "id", Type: TypeInteger}}}

	c, ok := meta.Column("id")
	assert.True(t, ok)
	assert.Equal(t, TypeInteger, c.Type)

	_, ok = meta.Column("missing")
	assert.False(t, ok)
}

func TestColumnMetaJSON(t *testing.T) {
	data := []byte(`{"name":"owner","type":"integer","not_null":true,"unique":false,"primary_key":false,"foreign_key":{"table":"users","column":"id"}}`)
	var c ColumnMeta
	require.NoError(t, json.Unmarshal(data, &c))
	assert.True(t, c.NotNull)
	require.NotNil(t, c.ForeignKey)
	assert.Equal(t, ForeignKey{Table: "users", Column: "id"}, *c.ForeignKey)
}

func TestAccessParsing(t *testing.T) {
	a, err := ParseAccess("admin")
	require.NoError(t, err)
	assert.Equal(t, AccessAdmin, a)

	_, err = ParseAccess("root")
	assert.Error(t, err)

	var u User
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"email":"a@b.c","access":"Admin"}`), &u))
	assert.True(t, u.IsAdmin())

	assert.Error(t, json.Unmarshal([]byte(`{"id":3,"email":"a@b.c","access":"Owner"}`), &u))
}
