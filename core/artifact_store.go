package core

import "context"

// MediaStore re-hosts an attachment given by an external (transport) reference
// and returns a durable reference. Implementations should be thread-safe.
// Callers bound every call with a timeout and keep the original reference on
// failure.
type MediaStore interface {
	Persist(ctx context.Context, identity string, att Attachment) (string, error)
}
