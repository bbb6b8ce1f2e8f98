package clipboard

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCopyEmptyContent(t *testing.T) {
	_, err := Copy("", false)
	assert.EqualError(t, err, "no content to copy")
}

func TestGenerateOSC52(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("hello"))

	plain := generateOSC52(encoded, false)
	assert.True(t, strings.HasPrefix(plain, "\x1b]52;c;"))
	assert.True(t, strings.HasSuffix(plain, "\x07"))
	assert.Contains(t, plain, encoded)

	wrapped := generateOSC52(encoded, true)
	assert.True(t, strings.HasPrefix(wrapped, "\x1bPtmux;\x1b"))
	assert.True(t, strings.HasSuffix(wrapped, "\x1b\\"))
	assert.Contains(t, wrapped, encoded)
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 1, countLines("one"))
	assert.Equal(t, 1, countLines("one\n"))
	assert.Equal(t, 3, countLines("a\nb\nc"))
	assert.Equal(t, 3, countLines("a\nb\nc\n"))
}
