// Package artifact contains implementations of core.MediaStore.
//
// The MediaStore interface lives in the core package to avoid dependency
// cycles. Implementation packages like this one (in-memory) and s3 re-host
// attachments delivered by the transport so records keep a durable reference
// even after the transport's media URLs expire.
package artifact
