package storage

import (
	"alcyxob/fitmate/internal/config"
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestS3(t *testing.T) FileStorage {
	t.Helper()
	fs, err := NewS3Storage(config.S3Config{
		Endpoint:        "localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio-secret",
		BucketName:      "avatars",
	})
	require.NoError(t, err)
	return fs
}

func TestS3PresignedUploadIsPathStyle(t *testing.T) {
	fs := newTestS3(t)
	key, err := ProfileImageKey("abc", "image/png")
	require.NoError(t, err)

	raw, err := fs.GeneratePresignedUploadURL(context.Background(), key, "image/png", 5*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/avatars/"+key, u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("X-Amz-SignedHeaders"), "content-type")
}

func TestS3RejectsNonImagesAndForeignKeys(t *testing.T) {
	ctx := context.Background()
	fs := newTestS3(t)

	_, err := fs.GeneratePresignedUploadURL(ctx, "profiles/abc/x.mp4", "video/mp4", 0)
	assert.ErrorIs(t, err, ErrUnsupportedContentType)

	_, err = fs.GeneratePresignedUploadURL(ctx, "backups/db.tar", "image/png", 0)
	assert.ErrorIs(t, err, ErrInvalidObjectKey)

	_, err = fs.GeneratePresignedDownloadURL(ctx, "profiles/../secrets.png", 0)
	assert.ErrorIs(t, err, ErrInvalidObjectKey)

	assert.ErrorIs(t, fs.DeleteObject(ctx, "other/abc.png"), ErrInvalidObjectKey)

	raw, err := fs.GeneratePresignedDownloadURL(ctx, "profiles/abc/x.png", 0)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
}

func TestNewS3StorageNeedsBucket(t *testing.T) {
	_, err := NewS3Storage(config.S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "", endpointURL("", true))
	assert.Equal(t, "https://minio:9000", endpointURL("minio:9000", true))
	assert.Equal(t, "http://minio:9000", endpointURL("minio:9000", false))
	assert.Equal(t, "https://s3.example.com", endpointURL("https://s3.example.com", false))
}
