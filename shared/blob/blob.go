// Package blob stores image bytes outside the database. Keys are
// slash-separated paths such as "vehicles/12/<uuid>.jpg".
package blob

import (
	"context"
	"io"

	"github.com/dealerhub/platform/shared/utils"
)

type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Delete succeeds when the key is already absent.
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// publicURL derives retrieval URLs from a configured public root.
type publicURL string

func (p publicURL) URL(key string) string {
	return utils.JoinURL(string(p), key)
}
