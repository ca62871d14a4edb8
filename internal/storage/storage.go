// Package storage persists uploaded images. Two backends exist: the local
// filesystem (served by the app under /media/) and S3-compatible object
// storage. Both name objects the same way, so switching backends does not
// change the keys stored in the database.
package storage

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/foodgram/internal/imagedata"
)

// ImageStore saves, deletes and addresses images by key.
type ImageStore interface {
	// Save stores img under prefix and returns its key,
	// e.g. "recipes/pic_1a2b3c4d.png".
	Save(ctx context.Context, prefix string, img *imagedata.Image) (string, error)
	// Delete removes the object. A missing object is not an error.
	Delete(ctx context.Context, key string) error
	// URL returns the public URL of key, or "" for an empty key.
	URL(key string) string
}

// newKey returns "<prefix>/pic_<8 hex>.<ext>".
func newKey(prefix, ext string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strings.Trim(prefix, "/") + "/pic_" + id + "." + ext
}

func joinURL(base, key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + key
}
