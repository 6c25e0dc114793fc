package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt64ListValue(t *testing.T) {
	tests := []struct {
		name string
		list Int64List
		want any
	}{
		{name: "empty persists as NULL", list: nil, want: nil},
		{name: "zero-length persists as NULL", list: Int64List{}, want: nil},
		{name: "values persist as json", list: Int64List{3, 1, 2}, want: []byte("[3,1,2]")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.list.Value()
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.JSONEq(t, string(tt.want.([]byte)), string(got.([]byte)))
		})
	}
}

func TestInt64ListScan(t *testing.T) {
	var l Int64List
	require.NoError(t, l.Scan([]byte("[5,6]")))
	assert.Equal(t, Int64List{5, 6}, l)

	require.NoError(t, l.Scan(nil))
	assert.Nil(t, l)

	require.Error(t, l.Scan(42))
}

func TestInt64ListContains(t *testing.T) {
	l := Int64List{10, 20}
	assert.True(t, l.Contains(20))
	assert.False(t, l.Contains(30))
	assert.False(t, Int64List(nil).Contains(1))
}

func TestStringListRoundTrip(t *testing.T) {
	v, err := StringList{"a.png", "b.png"}.Value()
	require.NoError(t, err)

	var back StringList
	require.NoError(t, back.Scan(v))
	assert.Equal(t, StringList{"a.png", "b.png"}, back)

	empty, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestJSONBlobPassesThrough(t *testing.T) {
	raw := []byte(`{"x":12,"y":34}`)

	var b JSONBlob
	require.NoError(t, b.Scan(raw))

	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))

	var empty JSONBlob
	out, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}
