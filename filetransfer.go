package elink

import (
	"context"
	"io"
)

// FileTransfer is the file-transfer port (C3): an opaque, HTTP-based
// upload channel whose lifecycle is tied to the owning session. The core
// never introspects or mediates the bytes moved through it — it is
// constructed by the variant's factory hook, stored on the session, and
// handed back to callers on demand via Session.FileTransfer.
type FileTransfer interface {
	Upload(ctx context.Context, remoteName string, r io.Reader, size int64) error
	Close() error
}
