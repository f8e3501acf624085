package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileImageKey(t *testing.T) {
	key, err := ProfileImageKey("abc", "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "profiles/abc/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.True(t, OwnsKey("abc", key))
	assert.False(t, OwnsKey("abd", key))

	key, err = ProfileImageKey("abc", "image/svg+xml")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, ".svg"))

	_, err = ProfileImageKey("abc", "video/mp4")
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
}

func TestProfileImageKeyNeedsSubtype(t *testing.T) {
	_, err := ProfileImageKey("abc", "image/")
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
}
