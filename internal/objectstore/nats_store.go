// Package objectstore stages voice reference recordings in a NATS JetStream object store
// so upstream services can hand the worker a key instead of a public URL.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Scheme prefixes a voice specification that names a key in the reference bucket.
const Scheme = "objectstore://"

// URI returns the voice specification for key.
func URI(key string) string {
	return Scheme + key
}

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// NatsObjectStore implements core.ObjectStore on a JetStream object store bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New binds to bucketName, creating it when it does not exist yet.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Voice reference recordings for the %s bucket.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// DownloadFile streams an object to dstPath.
func (n *NatsObjectStore) DownloadFile(ctx context.Context, key, dstPath string) error {
	_, err := n.store.GetInfo(key)
	if err != nil {
		return n.wrapGetErr(key, err)
	}

	err = n.store.GetFile(key, dstPath, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to write object '%s' to %s: %w", key, dstPath, err)
	}

	return nil
}

// Upload saves an object.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

func (n *NatsObjectStore) wrapGetErr(key string, err error) error {
	if errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("%w: '%s' in bucket '%s'", ErrObjectNotFound, key, n.bucket)
	}

	return fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
}
