package ordered

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalKeepsKeyOrder(t *testing.T) {
	var m Map
	require.NoError(t, json.Unmarshal([]byte(`{"zeta":1,"alpha":"x","mid":{"b":2,"a":1.5},"list":[1,{"k":null}]}`), &m))

	assert.Equal(t, []string{"zeta", "alpha", "mid", "list"}, m.Keys())

	v, _ := m.Get("zeta")
	assert.Equal(t, int64(1), v)

	nested, _ := m.Get("mid")
	require.IsType(t, &Map{}, nested)
	assert.Equal(t, []string{"b", "a"}, nested.(*Map).Keys())

	out, err := json.Marshal(&m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"zeta":1,"alpha":"x","mid":{"b":2,"a":1.5},"list":[1,{"k":null}]}`, string(out))
	assert.Equal(t, `{"zeta":1,"alpha":"x","mid":{"b":2,"a":1.5},"list":[1,{"k":null}]}`, string(out))
}

func TestSetDeleteClone(t *testing.T) {
	m := FromPairs("a", 1, "b", 2, "c", 3)
	m.Set("a", 10)
	m.Delete("b")
	assert.Equal(t, []string{"a", "c"}, m.Keys())

	c := m.Clone()
	c.Set("d", 4)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, "10", m.String("a"))
	assert.Equal(t, "", m.String("missing"))
}

func TestFromMapRespectsOrder(t *testing.T) {
	m := FromMap(map[string]any{"x": 1, "y": 2}, "y", "x")
	assert.Equal(t, []string{"y", "x"}, m.Keys())
}
