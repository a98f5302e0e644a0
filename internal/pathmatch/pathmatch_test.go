package pathmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExcludedSimpleGlob(t *testing.T) {
	m := New([]string{"*.tmp"})
	assert.True(t, m.Excluded("cache/data.tmp", false))
	assert.False(t, m.Excluded("cache/data.txt", false))
}

func TestExcludedDirectoryPattern(t *testing.T) {
	m := New([]string{"node_modules/"})
	assert.True(t, m.Excluded("project/node_modules", true))
	assert.False(t, m.Excluded("project/node_modules", false))
}

func TestNegatedPatternReincludes(t *testing.T) {
	m := New([]string{"*.log", "!important.log"})
	assert.True(t, m.Excluded("app.log", false))
	assert.False(t, m.Excluded("important.log", false))
}

func TestEmptyMatcherExcludesNothing(t *testing.T) {
	m := New(nil)
	assert.True(t, m.Empty())
	assert.False(t, m.Excluded("anything", false))
}

func TestBlankAndCommentLinesIgnored(t *testing.T) {
	m := New([]string{"", "  ", "# comment", "*.bak"})
	assert.True(t, m.Excluded("file.bak", false))
}
