package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/laguz/internal/apperr"
)

func testVocab(t *testing.T) *Vocabulary {
	t.Helper()
	v, err := NewVocabulary([]Entry{
		{ID: "none", Name: "None"},
		{ID: "fire", Name: "Fire"},
		{ID: "smoke", Name: "Smoke"},
		{ID: "cloud", Name: "Cloud"},
		{ID: "fog", Name: "Fog"},
		{ID: "haze", Name: "Haze"},
	})
	require.NoError(t, err)
	return v
}

func TestEncode(t *testing.T) {
	c := NewCodec(testVocab(t))

	tests := []struct {
		name    string
		indices []int
		want    string
	}{
		{name: "empty is unset", indices: nil, want: "unset"},
		{name: "single is bare", indices: []int{3}, want: "cloud"},
		{name: "multiple is a list", indices: []int{2, 5}, want: "['smoke', 'haze']"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Encode(tt.indices)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_OutOfRange(t *testing.T) {
	c := NewCodec(testVocab(t))
	_, err := c.Encode([]int{1, 42})
	assert.ErrorIs(t, err, apperr.ErrOutOfRange)
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	c := NewCodec(testVocab(t))

	for _, in := range [][]int{{2, 5}, {1}, {}, {0, 1, 2}} {
		enc, err := c.Encode(in)
		require.NoError(t, err)
		assert.Equal(t, in, Indices(c.Decode(enc)), "round trip of %v via %q", in, enc)
	}
}

func TestDecode(t *testing.T) {
	c := NewCodec(testVocab(t))

	tests := []struct {
		name string
		raw  string
		want []Value
	}{
		{name: "unset", raw: "unset", want: []Value{}},
		{name: "empty cell", raw: "", want: []Value{}},
		{name: "bare", raw: "fire", want: []Value{IndexValue(1)}},
		{name: "list", raw: "['fire', 'smoke']", want: []Value{IndexValue(1), IndexValue(2)}},
		{name: "double quoted list", raw: `["smoke", "fire"]`, want: []Value{IndexValue(2), IndexValue(1)}},
		{name: "unknown passes through", raw: "lava", want: []Value{RawValue("lava")}},
		{name: "mixed list", raw: "['fire', 'lava']", want: []Value{IndexValue(1), RawValue("lava")}},
		{name: "lower-cased folder label", raw: "cata", want: []Value{RawValue("cata")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Decode(tt.raw))
		})
	}
}

func TestEncodeValues_KeepsRawIdentifiers(t *testing.T) {
	c := NewCodec(testVocab(t))
	raw := "['fire', 'lava']"
	got, err := c.EncodeValues(c.Decode(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestDisplay(t *testing.T) {
	c := NewCodec(testVocab(t))

	assert.Equal(t, []string{"Fire", "Smoke"}, c.Display([]Value{IndexValue(1), IndexValue(2)}))
	assert.Equal(t, []string{"Undefined: lava"}, c.Display([]Value{RawValue("lava")}))
	assert.Equal(t, []string{"Undefined: 99"}, c.Display([]Value{IndexValue(99)}))

	assert.Equal(t, "Fire", c.DisplayText([]Value{IndexValue(1)}))
	assert.Equal(t, "Fire, Undefined: lava", c.DisplayText([]Value{IndexValue(1), RawValue("lava")}))
	assert.Equal(t, "", c.DisplayText(nil))
}

func TestIndices(t *testing.T) {
	got := Indices([]Value{IndexValue(3), RawValue("x"), IndexValue(1), IndexValue(3)})
	assert.Equal(t, []int{1, 3}, got)
}
