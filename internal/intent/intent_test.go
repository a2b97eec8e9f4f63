package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for k, name := range kindNames {
		got, err := ParseKind(" " + name + " ")
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("dance")
	assert.Error(t, err)
}

func TestMoves(t *testing.T) {
	assert.True(t, Write.Moves())
	assert.True(t, Erase.Moves())
	assert.True(t, Paint.Moves())
	assert.False(t, Reset.Moves())
	assert.False(t, Quit.Moves())
	assert.False(t, Chat.Moves())
}

func TestIntentString(t *testing.T) {
	assert.Equal(t, `write("AB")`, Intent{Kind: Write, Text: "AB"}.String())
	assert.Equal(t, "erase", Intent{Kind: Erase}.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
