package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	gcsstorage "cloud.google.com/go/storage"
)

// GCSSink stores backups in a Cloud Storage bucket.
type GCSSink struct {
	bucket *gcsstorage.BucketHandle
	prefix string
}

// NewGCSSink writes under prefix in bucket. An empty prefix writes at the
// bucket root.
func NewGCSSink(bucket *gcsstorage.BucketHandle, prefix string) *GCSSink {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &GCSSink{bucket: bucket, prefix: prefix}
}

// OpenGCSSink creates a storage client for bucket. Close the returned client
// when done.
func OpenGCSSink(ctx context.Context, bucket, prefix string) (*GCSSink, *gcsstorage.Client, error) {
	if bucket == "" {
		return nil, nil, fmt.Errorf("export bucket is required")
	}
	client, err := gcsstorage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create storage client: %w", err)
	}
	return NewGCSSink(client.Bucket(bucket), prefix), client, nil
}

func (s *GCSSink) Create(ctx context.Context, name, contentType string) (io.WriteCloser, error) {
	w := s.bucket.Object(s.ObjectPath(name)).NewWriter(ctx)
	w.ContentType = contentType
	return w, nil
}

// ObjectPath is the full object path Create uses for name.
func (s *GCSSink) ObjectPath(name string) string {
	return s.prefix + name
}
