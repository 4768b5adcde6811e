package playback

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// BlobHandlePrefix marks registry-backed source handles.
const BlobHandlePrefix = "blob:"

// Blob is one registered in-memory media object.
type Blob struct {
	Data     []byte
	MIMEType string
}

// BlobRegistry hands out opaque handles for in-memory media blobs so a
// sink can be pointed at remux output the same way it is pointed at a
// URL. Handles must be revoked when the owning session tears down or the
// blob's memory lives for the process lifetime.
type BlobRegistry struct {
	mu    sync.Mutex
	blobs map[string]Blob
}

// NewBlobRegistry creates an empty registry.
func NewBlobRegistry() *BlobRegistry {
	return &BlobRegistry{blobs: make(map[string]Blob)}
}

// Create registers a blob and returns its handle.
func (r *BlobRegistry) Create(data []byte, mimeType string) string {
	handle := BlobHandlePrefix + uuid.NewString()
	r.mu.Lock()
	r.blobs[handle] = Blob{Data: data, MIMEType: mimeType}
	r.mu.Unlock()
	return handle
}

// Get resolves a handle. The returned data is shared, not copied.
func (r *BlobRegistry) Get(handle string) (Blob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blobs[handle]
	return b, ok
}

// Revoke drops a handle. Revoking an unknown or already-revoked handle is
// a no-op, which keeps teardown idempotent.
func (r *BlobRegistry) Revoke(handle string) {
	r.mu.Lock()
	delete(r.blobs, handle)
	r.mu.Unlock()
}

// Len returns the number of live blobs.
func (r *BlobRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blobs)
}

// IsBlobHandle reports whether src is a registry handle rather than a URL.
func IsBlobHandle(src string) bool {
	return strings.HasPrefix(src, BlobHandlePrefix)
}
