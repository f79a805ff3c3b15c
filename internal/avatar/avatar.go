// Package avatar stores creator profile images.
//
// Two backends implement Store:
//   - LocalStore writes files under a directory that the server exposes at /media/.
//   - S3Store writes objects to any S3-compatible bucket (AWS S3, Cloudflare R2, MinIO).
//
// Profiles keep only the object key. The store turns a key into a URL when a
// page is rendered, so moving from local disk to a bucket never rewrites rows.
package avatar

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Store persists avatar bytes under a key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// URL returns where a browser can fetch key. Empty key gives "".
	URL(key string) string
}

// NewKey returns a fresh, unguessable object key such as
// "avatars/5f0c...-....png". ext must include the leading dot.
func NewKey(ext string) string {
	return "avatars/" + uuid.NewString() + ext
}

func joinURL(base, key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
