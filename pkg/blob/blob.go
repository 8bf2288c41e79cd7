// Package blob abstracts where the serialized reference-fingerprint blob
// lives. The engine only ever reads the blob as a single unit at startup
// and the enroll tool writes it as a single unit, so the interface is a
// minimal file-oriented one with local-disk and S3-compatible backends.
package blob

import (
	"context"
	"io"
)

// FileStore reads and writes whole files addressed by forward-slash paths
// relative to the store root.
//
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading. The caller must close the
	// returned ReadCloser. If the file does not exist, an error wrapping
	// os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating any existing
	// content. Parent directories (or key prefixes) are created as needed.
	// The caller must close the returned WriteCloser to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}
