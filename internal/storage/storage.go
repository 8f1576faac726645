// Package storage defines the Provider interface for object storage backends
// and the path policy shared by every provider.
package storage

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProviderTag identifies a storage backend. The tag is persisted with every
// asset so reads go back to the backend that wrote the bytes.
type ProviderTag string

const (
	ProviderFilesystem ProviderTag = "FILESYSTEM"
	ProviderAWSS3      ProviderTag = "AWS_S3"
	ProviderFirebase   ProviderTag = "FIREBASE"
	ProviderSupabase   ProviderTag = "SUPABASE"
)

// ParseProviderTag normalizes a configured provider name.
func ParseProviderTag(raw string) (ProviderTag, error) {
	tag := ProviderTag(strings.ToUpper(strings.TrimSpace(raw)))
	switch tag {
	case ProviderFilesystem, ProviderAWSS3, ProviderFirebase, ProviderSupabase:
		return tag, nil
	case "":
		return ProviderFilesystem, nil
	default:
		return "", errors.New("unknown storage provider: " + raw)
	}
}

var (
	// ErrPathOutsideRoot is returned for paths that resolve outside the
	// provider's root.
	ErrPathOutsideRoot = errors.New("path outside storage root")
	// ErrObjectNotFound is returned when nothing is stored at a path.
	ErrObjectNotFound = errors.New("object not found")
)

// Provider abstracts object storage operations. Paths are produced by Upload
// and are write-once addresses; callers never construct them.
type Provider interface {
	// Tag returns the fixed provider tag.
	Tag() ProviderTag
	// Upload stores data at a freshly generated path and returns it.
	Upload(ctx context.Context, data []byte) (string, error)
	// Replace overwrites the object at an existing path.
	Replace(ctx context.Context, path string, data []byte) error
	// Download returns the bytes stored at path.
	Download(ctx context.Context, path string) ([]byte, error)
	// Delete removes the object at path. Deleting a missing object succeeds.
	Delete(ctx context.Context, path string) error
}

// BucketPath returns the calendar bucket (year/month/day) for t.
func BucketPath(t time.Time) string {
	return path.Join(
		strconv.Itoa(t.Year()),
		strconv.Itoa(int(t.Month())),
		strconv.Itoa(t.Day()),
	)
}

// NewFileName returns a random unique object name.
func NewFileName() string {
	return uuid.NewString()
}

// NewObjectPath combines the bucket for t with a fresh file name.
func NewObjectPath(t time.Time) string {
	return path.Join(BucketPath(t), NewFileName())
}
