package sourcemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fiveLines = "l0\nl1\nl2\nl3\nl4\n"

func TestExtractContextRadiusZero(t *testing.T) {
	for _, target := range []uint32{0, 2, 4, 10} {
		window := ExtractContext(fiveLines, target, 0)
		require.Len(t, window, 1)
		assert.True(t, window[0].IsTarget)
		assert.Equal(t, target, window[0].Line)
	}
}

func TestExtractContextMiddle(t *testing.T) {
	window := ExtractContext(fiveLines, 2, 1)
	assert.Equal(t, []ContextLine{
		{Line: 1, Code: "l1"},
		{Line: 2, IsTarget: true, Code: "l2"},
		{Line: 3, Code: "l3"},
	}, window)
}

func TestExtractContextClipsLow(t *testing.T) {
	window := ExtractContext(fiveLines, 1, 3)
	require.Len(t, window, 5)
	assert.Equal(t, uint32(0), window[0].Line)
	assert.Equal(t, uint32(4), window[4].Line)
	assert.True(t, window[1].IsTarget)
}

// The high end is never clipped: slots past the last line carry empty code.
func TestExtractContextPastEndIsPadded(t *testing.T) {
	window := ExtractContext(fiveLines, 4, 3)
	require.Len(t, window, 7)
	assert.Equal(t, uint32(1), window[0].Line)
	assert.Equal(t, "l4", window[3].Code)
	assert.True(t, window[3].IsTarget)
	for _, cl := range window[4:] {
		assert.Equal(t, "", cl.Code)
		assert.False(t, cl.IsTarget)
	}
	assert.Equal(t, uint32(7), window[6].Line)
}

func TestExtractContextTargetBeyondSource(t *testing.T) {
	window := ExtractContext("only()", 10, 1)
	require.Len(t, window, 3)
	for _, cl := range window {
		assert.Equal(t, "", cl.Code)
	}
	assert.True(t, window[1].IsTarget)
}

func TestExtractContextClipBoth(t *testing.T) {
	window := ExtractContextWith(ClipBoth, fiveLines, 4, 3)
	require.Len(t, window, 4)
	assert.Equal(t, uint32(1), window[0].Line)
	assert.Equal(t, uint32(4), window[3].Line)
	assert.True(t, window[3].IsTarget)

	// the target line survives even when it lies past the end
	window = ExtractContextWith(ClipBoth, "", 3, 2)
	require.Len(t, window, 3)
	assert.Equal(t, uint32(3), window[2].Line)
	assert.True(t, window[2].IsTarget)
}

func TestExtractContextHugeRadius(t *testing.T) {
	assert.NotPanics(t, func() {
		window := ExtractContextWith(ClipBoth, fiveLines, 2, ^uint32(0))
		assert.Len(t, window, 5)
	})
}

func TestContextPolicyString(t *testing.T) {
	assert.Equal(t, "asymmetric", ClipLow.String())
	assert.Equal(t, "clip_both", ClipBoth.String())
}
