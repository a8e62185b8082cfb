package keyvalue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libraryFolders = `"libraryfolders"
{
	"0"
	{
		"path"		"/home/u/.local/share/Steam"
		"label"		""
		"apps"
		{
			"228980"		"1083243"
			"294100"		"5126093"
		}
	}
}
`

func TestParse_LibraryFolders(t *testing.T) {
	root, err := Parse([]byte(libraryFolders))
	require.NoError(t, err)

	path, ok := root.String("libraryfolders", "0", "path")
	require.True(t, ok)
	assert.Equal(t, "/home/u/.local/share/Steam", path)

	label, ok := root.String("libraryfolders", "0", "label")
	require.True(t, ok)
	assert.Equal(t, "", label)

	apps, ok := root.Lookup("libraryfolders", "0", "apps")
	require.True(t, ok)
	assert.Equal(t, []string{"228980", "294100"}, apps.Keys())
}

func TestParse_DuplicateKeyLastWriteWins(t *testing.T) {
	root, err := Parse([]byte(`"a" "1" "b" "2" "a" "3"`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, root.Keys())
	v, _ := root.String("a")
	assert.Equal(t, "3", v)
}

func TestParse_EmptyInput(t *testing.T) {
	root, err := Parse(nil)
	require.NoError(t, err)
	assert.True(t, root.IsObject())
	assert.Equal(t, 0, root.Len())
}

func TestParse_IgnoresUnquotedText(t *testing.T) {
	root, err := Parse([]byte("// comment\n\"k\" junk \"v\" 123"))
	require.NoError(t, err)
	v, ok := root.String("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestParse_QuotedBraceIsString(t *testing.T) {
	root, err := Parse([]byte(`"k" "{" "x" "}"`))
	require.NoError(t, err)
	v, _ := root.String("k")
	assert.Equal(t, "{", v)
	v, _ = root.String("x")
	assert.Equal(t, "}", v)
}

func TestParse_KeyWithoutValueDropped(t *testing.T) {
	// The brace after "k" is consumed with the key, so "b" stays inside "a"
	// and the following brace closes "a".
	root, err := Parse([]byte(`"a" { "k" } "b" "c" } "d" "e"`))
	var synErr *SyntaxError
	require.True(t, errors.As(err, &synErr))
	assert.Contains(t, synErr.Msg, `"k"`)

	assert.Equal(t, []string{"a", "d"}, root.Keys())
	a, ok := root.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, a.Keys())
	v, ok := a.String("b")
	require.True(t, ok)
	assert.Equal(t, "c", v)
	v, ok = root.String("d")
	require.True(t, ok)
	assert.Equal(t, "e", v)
}

func TestParse_KeyWithoutValueAtEndOfObject(t *testing.T) {
	root, err := Parse([]byte(`"outer" { "a" "1" "dangling" } "next" "2"`))
	require.Error(t, err)

	outer, ok := root.Lookup("outer")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "next"}, outer.Keys())
	assert.Equal(t, []string{"outer"}, root.Keys())
}

func TestParse_StrayOpenBraceSkipped(t *testing.T) {
	root, err := Parse([]byte(`{ "a" "1" }`))
	require.Error(t, err)
	v, ok := root.String("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestParse_TopLevelCloseEndsDocument(t *testing.T) {
	root, err := Parse([]byte(`"a" "1" } "b" "2"`))
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, root.Keys())
}

func TestParse_UnterminatedQuote(t *testing.T) {
	root, err := Parse([]byte(`"a" "1" "b" "unfinished`))
	var synErr *SyntaxError
	require.True(t, errors.As(err, &synErr))
	assert.Contains(t, synErr.Error(), "unterminated")
	assert.Equal(t, []string{"a"}, root.Keys())
}

func TestParse_UnclosedObject(t *testing.T) {
	root, err := Parse([]byte(`"a" { "b" { "c" "1"`))
	require.Error(t, err)
	v, ok := root.String("a", "b", "c")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func sampleTree() *Node {
	items := NewObject()
	first := NewObject()
	first.Set("size", NewLeaf("1024"))
	first.Set("timeupdated", NewLeaf("1700000000"))
	items.Set("123456", first)
	second := NewObject()
	second.Set("timeupdated", NewLeaf("1600000000"))
	items.Set("789", second)

	ws := NewObject()
	ws.Set("appid", NewLeaf("294100"))
	ws.Set("WorkshopItemsInstalled", items)
	ws.Set("empty", NewObject())

	root := NewObject()
	root.Set("AppWorkshop", ws)
	return root
}

func TestParse_RoundTrip(t *testing.T) {
	want := sampleTree()
	got, err := Parse(Marshal(want))
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "round trip mismatch:\n%s", Marshal(got))
}

// Every prefix of a well-formed document parses without panicking and never
// yields a leaf that the full document does not contain.
func TestParse_PrefixRobustness(t *testing.T) {
	full := sampleTree()
	doc := Marshal(full)
	for i := 0; i <= len(doc); i++ {
		got, _ := Parse(doc[:i])
		require.NotNil(t, got)
		assertSubset(t, got, full, i)
	}
}

func assertSubset(t *testing.T, sub, full *Node, prefix int) {
	t.Helper()
	for k, v := range sub.All() {
		fv, ok := full.Get(k)
		if !assert.True(t, ok, "prefix %d: invented key %q", prefix, k) {
			return
		}
		if v.IsLeaf() {
			assert.True(t, fv.IsLeaf(), "prefix %d: key %q changed kind", prefix, k)
			assert.Equal(t, fv.Value(), v.Value(), "prefix %d: key %q", prefix, k)
			continue
		}
		assertSubset(t, v, fv, prefix)
	}
}

func TestNode_Helpers(t *testing.T) {
	root := sampleTree()
	_, ok := root.String("AppWorkshop", "WorkshopItemsInstalled")
	assert.False(t, ok, "object is not a string")
	_, ok = root.Lookup("AppWorkshop", "missing", "deeper")
	assert.False(t, ok)
	leaf := NewLeaf("x")
	assert.Equal(t, 0, leaf.Len())
	_, ok = leaf.Get("anything")
	assert.False(t, ok)
	assert.Equal(t, "", root.Value())
}
