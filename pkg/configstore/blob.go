/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package configstore

import (
	"context"
	"errors"
	"fmt"

	"gocloud.dev/blob"
	// gs:// bucket URLs
	_ "gocloud.dev/blob/gcsblob"
	// file:// bucket URLs, used for local development
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

// ErrNotFound is returned by a Getter when key does not exist.
var ErrNotFound = errors.New("config key not found")

// Getter fetches raw configuration documents by key.
type Getter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// BlobGetter reads keys as objects of a blob bucket.
type BlobGetter struct {
	bucket *blob.Bucket
}

var _ Getter = (*BlobGetter)(nil)

// NewBlobGetter wraps an open bucket.
func NewBlobGetter(bucket *blob.Bucket) *BlobGetter {
	return &BlobGetter{bucket: bucket}
}

// OpenBlobGetter opens the bucket at url, e.g. "gs://my-config".
// The caller must Close it.
func OpenBlobGetter(ctx context.Context, url string) (*BlobGetter, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opening bucket %q: %w", url, err)
	}
	return NewBlobGetter(b), nil
}

// Get reads the object named key.
func (g *BlobGetter) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := g.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Close closes the underlying bucket.
func (g *BlobGetter) Close() error {
	return g.bucket.Close()
}
