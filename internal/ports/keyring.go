package ports

import "context"

// KeyringPort lists and imports trusted signing keys.
type KeyringPort interface {
	// ListKeys returns the machine-readable (--with-colons) key listing.
	ListKeys(ctx context.Context) (string, error)
	// ImportKey fetches key from keyserver, falling back to url when set.
	ImportKey(ctx context.Context, key string, keyserver string, url string) error
}
