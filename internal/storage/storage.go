package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

const profilePrefix = "profiles"

var (
	ErrUnsupportedContentType = errors.New("content type must be an image")
	ErrInvalidObjectKey       = errors.New("object key is outside the profile image prefix")
)

// FileStorage defines the interface for object storage operations.
type FileStorage interface {
	// GeneratePresignedUploadURL creates a temporary URL that allows a PUT of
	// objectKey directly to the storage provider.
	GeneratePresignedUploadURL(ctx context.Context, objectKey string, contentType string, expires time.Duration) (string, error)

	// GeneratePresignedDownloadURL creates a temporary URL that allows a GET of objectKey.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)

	DeleteObject(ctx context.Context, objectKey string) error
}

// ProfileImageKey builds a fresh object key for a user's profile image,
// e.g. "profiles/<userID>/<uuid>.png".
func ProfileImageKey(userID, contentType string) (string, error) {
	if !isImageType(contentType) {
		return "", ErrUnsupportedContentType
	}
	ext := strings.TrimPrefix(strings.ToLower(contentType), "image/")
	if i := strings.IndexAny(ext, "+;"); i >= 0 {
		ext = ext[:i]
	}
	return path.Join(profilePrefix, userID, fmt.Sprintf("%s.%s", uuid.NewString(), ext)), nil
}

func isImageType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "image/") && len(ct) > len("image/")
}

// OwnsKey reports whether objectKey lives under the user's profile prefix.
func OwnsKey(userID, objectKey string) bool {
	return strings.HasPrefix(objectKey, path.Join(profilePrefix, userID)+"/")
}
