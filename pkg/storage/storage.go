// Package storage defines the object storage contracts the gateway depends on
// and provides a Google Cloud Storage JSON API client plus an in-memory
// implementation for tests and local runs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/citegate/citegate/pkg/domain"
)

// Storage errors. Anything not matched by these sentinels is treated as
// transient by callers.
var (
	ErrObjectNotFound   = errors.New("object not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("storage unavailable")
	ErrInvalidObjectURI = errors.New("invalid object URI")
)

// ObjectLocation names one object inside one bucket.
type ObjectLocation struct {
	Bucket string
	Object string
}

func (l ObjectLocation) String() string {
	return fmt.Sprintf("gs://%s/%s", l.Bucket, l.Object)
}

var gsURIPattern = regexp.MustCompile(`^gs://(?P<bucket>[^/]+)/(?P<name>.+)$`)

// ParseObjectURI parses a gs://bucket/object URI into an ObjectLocation. The
// transformation is deterministic: the same URI always yields the same
// location.
func ParseObjectURI(uri string) (ObjectLocation, error) {
	match := gsURIPattern.FindStringSubmatch(uri)
	if match == nil {
		return ObjectLocation{}, fmt.Errorf("%w: %q", ErrInvalidObjectURI, uri)
	}
	return ObjectLocation{Bucket: match[1], Object: match[2]}, nil
}

// MetadataResolver fetches descriptive metadata for a storage object. Results
// are always resolved fresh; implementations must not cache across calls.
type MetadataResolver interface {
	GetObjectMetadata(ctx context.Context, loc ObjectLocation) (domain.ObjectMetadata, error)
}

// AuditSink persists opaque byte payloads under a key. Writes for distinct
// keys are independent; no ordering is guaranteed.
type AuditSink interface {
	Put(ctx context.Context, loc ObjectLocation, data []byte) error
}
