package imagestore

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound        = errors.New("image not found")
	ErrUnsupportedType = errors.New("unsupported image type")
)

// ImageStore holds item images outside the database. Items keep only the
// returned key.
type ImageStore interface {
	Save(ctx context.Context, mimeType string, r io.Reader) (key string, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// MimeTypeExt returns the file extension for a supported image MIME type.
func MimeTypeExt(mimeType string) (string, bool) {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	case "image/gif":
		return ".gif", true
	case "image/webp":
		return ".webp", true
	}
	return "", false
}
