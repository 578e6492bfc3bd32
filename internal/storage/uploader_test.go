package storage

import (
	"context"
	"testing"

	"github.com/jacl-coder/EyeSurvival-Server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionFor(t *testing.T) {
	ext, err := ExtensionFor("image/png")
	require.NoError(t, err)
	assert.Equal(t, ".png", ext)

	_, err = ExtensionFor("application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestJoinPublicURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/avatars/u1.png", joinPublicURL("https://cdn.example.com", "avatars/u1.png"))
	assert.Equal(t, "https://cdn.example.com/media/avatars/u1.png", joinPublicURL("https://cdn.example.com/media/", "/avatars/u1.png"))
	assert.Empty(t, joinPublicURL("", "k"))
}

func TestNewR2UploaderRequiresConfig(t *testing.T) {
	_, err := NewR2Uploader(context.Background(), config.StorageConfig{Bucket: "b"})
	assert.Error(t, err)
}

func TestNewR2UploaderBuildsPublicURLs(t *testing.T) {
	u, err := NewR2Uploader(context.Background(), config.StorageConfig{
		AccountID:       "acct",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "avatars",
		PublicBaseURL:   "https://pub.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pub.example.com/avatars/u1.jpg", u.PublicURL(AvatarKey("u1", ".jpg")))
}
