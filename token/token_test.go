package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupRecognizesKeywords(t *testing.T) {
	assert.Equal(t, LET, Lookup("let"))
	assert.Equal(t, TRY, Lookup("try"))
	assert.Equal(t, IDENT, Lookup("notAKeyword"))
}

func TestIsKeyword(t *testing.T) {
	assert.True(t, IsKeyword("fn"))
	assert.False(t, IsKeyword("fnord"))
}

func TestKeywordsCoversEveryReservedWord(t *testing.T) {
	all := Keywords()
	assert.Contains(t, all, "match")
	assert.Contains(t, all, "async")
	for _, k := range all {
		assert.True(t, IsKeyword(k))
	}
}

func TestPosStringWithAndWithoutFile(t *testing.T) {
	assert.Equal(t, "3:5", Pos{Line: 3, Column: 5}.String())
	assert.Equal(t, "a.naab:3:5", Pos{File: "a.naab", Line: 3, Column: 5}.String())
}

func TestPosIsValid(t *testing.T) {
	assert.True(t, Pos{Line: 1, Column: 1}.IsValid())
	assert.False(t, Pos{Line: 0, Column: 1}.IsValid())
	assert.False(t, Pos{}.IsValid())
}

func TestKindStringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "let", LET.String())
	assert.Equal(t, "->", ARROW.String())
	assert.Equal(t, "UNKNOWN", Kind(9999).String())
}
