package statuscolor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#F44336")
	require.NoError(t, err)
	assert.Equal(t, Color{R: 0xF4, G: 0x43, B: 0x36}, c)
	assert.Equal(t, "#F44336", c.Hex())

	c, err = ParseHex("00aa00")
	require.NoError(t, err)
	assert.Equal(t, "#00AA00", c.Hex())

	for _, bad := range []string{"", "#123", "#GGGGGG", "#1234567"} {
		_, err := ParseHex(bad)
		assert.Error(t, err, bad)
	}
}

func TestDefaultPalette_CaseInsensitive(t *testing.T) {
	p := DefaultPalette()
	assert.Equal(t, "#00AA00", p.ColorFor("functional").Hex())
	assert.Equal(t, "#00AA00", p.ColorFor("FUNCTIONAL").Hex())
	assert.Equal(t, "#FFA500", p.ColorFor("semi-functional").Hex())
	assert.Len(t, p.Entries(), len(Defaults))
}

func TestFallback_DeterministicAndCaseInsensitive(t *testing.T) {
	p := DefaultPalette()
	a := p.ColorFor("Needs Review")
	assert.Equal(t, a, p.ColorFor("needs review"))
	assert.Equal(t, a, Fallback("NEEDS REVIEW"))
}

func TestPalette_SetDelete(t *testing.T) {
	p := NewPalette(nil)
	red := Color{R: 255}
	p.Set("Custom", red)
	assert.Equal(t, red, p.ColorFor("custom"))
	p.Delete("CUSTOM")
	assert.Equal(t, Fallback("custom"), p.ColorFor("Custom"))
}

func TestColor_JSON(t *testing.T) {
	b, err := json.Marshal(map[string]Color{"x": {R: 1, G: 2, B: 3}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":"#010203"}`, string(b))

	var back map[string]Color
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Color{R: 1, G: 2, B: 3}, back["x"])
}
