package filecore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestSimpleStrategy(t *testing.T) {
	result := simpleStrategy{}.findMatches("hello world", "world")
	assert.Equal(t, []string{"world"}, result)
}

func TestLineTrimmedStrategy(t *testing.T) {
	result := lineTrimmedStrategy{}.findMatches("  hello  \n  world  ", "hello\nworld")
	assert.NotEmpty(t, result)
}

func TestWhitespaceNormalizedStrategy(t *testing.T) {
	result := whitespaceNormalizedStrategy{}.findMatches("hello\t\tworld", "hello  world")
	assert.NotEmpty(t, result)
}

func TestIndentationFlexibleStrategy(t *testing.T) {
	result := indentationFlexibleStrategy{}.findMatches("    def foo():\n        pass", "def foo():\n    pass")
	assert.NotEmpty(t, result)
}

func TestTrimmedBoundaryStrategy(t *testing.T) {
	result := trimmedBoundaryStrategy{}.findMatches("hello world test", "  world  ")
	assert.Equal(t, []string{"world"}, result)
}

func TestEscapeNormalizedStrategy(t *testing.T) {
	result := escapeNormalizedStrategy{}.findMatches("hello\nworld", `hello\nworld`)
	assert.NotEmpty(t, result)
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
	assert.Equal(t, 0, levenshtein("hello", "hello"))
	assert.Equal(t, 4, levenshtein("", "test"))
}

func TestApplyReplacementSimple(t *testing.T) {
	out, err := ApplyReplacement("hello world", strPtr("world"), OpReplace, "universe")
	require.NoError(t, err)
	assert.Equal(t, "hello universe", out)
}

func TestApplyReplacementNoSearch(t *testing.T) {
	out, err := ApplyReplacement("hello world", nil, OpReplace, "new content")
	require.NoError(t, err)
	assert.Equal(t, "new content", out)
}

func TestApplyReplacementPrepend(t *testing.T) {
	out, err := ApplyReplacement("hello world", strPtr("hello"), OpPrepend, "good ")
	require.NoError(t, err)
	assert.Equal(t, "good hello world", out)
}

func TestApplyReplacementAppend(t *testing.T) {
	out, err := ApplyReplacement("hello world", strPtr("world"), OpAppend, "!")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n!", out)
}

func TestApplyReplacementReplaceAll(t *testing.T) {
	out, err := ApplyReplacement("hello hello hello", strPtr("hello"), OpReplaceAll, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi hi hi", out)
}

func TestApplyReplacementSwap(t *testing.T) {
	out, err := ApplyReplacement("hello world", strPtr("hello"), OpSwap, "world")
	require.NoError(t, err)
	assert.Equal(t, "world hello", out)
}

func TestApplyReplacementNoMatch(t *testing.T) {
	_, err := ApplyReplacement("hello world", strPtr("missing"), OpReplace, "replacement")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `could not find match for search text: "missing"`)
}

func TestApplyReplacementMultipleMatches(t *testing.T) {
	_, err := ApplyReplacement("hello hello", strPtr("hello"), OpReplace, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple matches found")
}

func TestApplyReplacementSwapNoSearch(t *testing.T) {
	out, err := ApplyReplacement("hello world", nil, OpSwap, "anything")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestApplyReplacementMultiline(t *testing.T) {
	out, err := ApplyReplacement("line1\nline2\nline3", strPtr("line2"), OpReplace, "replaced_line")
	require.NoError(t, err)
	assert.Equal(t, "line1\nreplaced_line\nline3", out)
}

func TestApplyReplacementWithSpecialChars(t *testing.T) {
	out, err := ApplyReplacement("hello $world @test", strPtr("$world"), OpReplace, "$universe")
	require.NoError(t, err)
	assert.Equal(t, "hello $universe @test", out)
}

func TestApplyReplacementSwapNoTarget(t *testing.T) {
	_, err := ApplyReplacement("hello world", strPtr("hello"), OpSwap, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not find swap target text: missing")
}

func TestApplyReplacementEdgeCaseSameText(t *testing.T) {
	out, err := ApplyReplacement("hello hello", strPtr("hello"), OpSwap, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello hello", out)
}

func TestApplyReplacementWhitespaceHandling(t *testing.T) {
	out, err := ApplyReplacement("  hello   world  ", strPtr("hello   world"), OpReplace, "hi")
	require.NoError(t, err)
	assert.Equal(t, "  hi  ", out)
}

func TestApplyReplacementEmptySearch(t *testing.T) {
	empty := ""
	out, err := ApplyReplacement("hello world", &empty, OpReplace, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", out)
}

func TestApplyReplacementReplaceAllNoMatch(t *testing.T) {
	_, err := ApplyReplacement("hello world", strPtr("missing"), OpReplaceAll, "replacement")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `could not find match for search text: "missing"`)
}

func TestFuzzyLineTrimmedWhitespace(t *testing.T) {
	_, err := ApplyReplacement("  hello  \n  world  ", strPtr("hello\nworld"), OpReplace, "replaced")
	require.NoError(t, err)
}

func TestFuzzyIndentationFlexible(t *testing.T) {
	_, err := ApplyReplacement("    def foo():\n        pass", strPtr("def foo():\n    pass"), OpReplace, "def bar():\n    return")
	require.NoError(t, err)
}

func TestFuzzyTrimmedBoundary(t *testing.T) {
	out, err := ApplyReplacement("hello world test", strPtr("world"), OpReplace, "universe")
	require.NoError(t, err)
	assert.Equal(t, "hello universe test", out)
}

func TestFuzzyBlockAnchorToleratesDrift(t *testing.T) {
	content := "func main() {\n\tfmt.Println(\"start\")\n\tdoWork()\n\tfmt.Println(\"end\")\n}"
	search := "func main() {\n\tfmt.Println(\"begin\")\n\tdoWork()\n\tfmt.Println(\"end\")\n}"
	out, err := ApplyReplacement(content, strPtr(search), OpReplace, "func main() {}")
	require.NoError(t, err)
	assert.Equal(t, "func main() {}", out)
}

func TestFuzzyContextAwareMajorityMiddleMatch(t *testing.T) {
	content := "if cond {\n\ta()\n\tb()\n\tc()\n\td()\n}"
	search := "if cond {\n\ta()\n\tX()\n\tY()\n\td()\n}"
	out, err := ApplyReplacement(content, strPtr(search), OpReplace, "REPLACED")
	require.NoError(t, err)
	assert.Equal(t, "REPLACED", out)
}
