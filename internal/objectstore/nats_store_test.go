// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voice-clone-worker/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-process JetStream-enabled NATS server for testing purposes.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func readObject(t *testing.T, store *objectstore.NatsObjectStore, key string) []byte {
	t.Helper()

	dst := filepath.Join(t.TempDir(), "object.bin")
	require.NoError(t, store.DownloadFile(context.Background(), key, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)

	return data
}

func newStore(t *testing.T, bucket string) (*objectstore.NatsObjectStore, nats.JetStreamContext) {
	t.Helper()

	natsServer, natsConnection := StartTestServer(t)
	t.Cleanup(natsServer.Shutdown)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, bucket)
	require.NoError(t, err)

	return store, jetstreamContext
}

func TestNatsObjectStore_UploadDownloadFile(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "voice-refs")
	ctx := context.Background()
	uploadData := []byte("RIFF....WAVEfmt reference recording")

	require.NoError(t, store.Upload(ctx, "speaker-1.wav", uploadData))

	assert.Equal(t, uploadData, readObject(t, store, "speaker-1.wav"))
}

func TestNatsObjectStore_MissingObject(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "voice-refs-missing")
	ctx := context.Background()

	err := store.DownloadFile(ctx, "nope.wav", filepath.Join(t.TempDir(), "nope.wav"))
	require.ErrorIs(t, err, objectstore.ErrObjectNotFound)
}

func TestNew_BindsToExistingBucket(t *testing.T) {
	t.Parallel()

	store, jetstreamContext := newStore(t, "shared-refs")
	require.NoError(t, store.Upload(context.Background(), "k", []byte("v")))

	again, err := objectstore.New(jetstreamContext, "shared-refs")
	require.NoError(t, err)

	assert.Equal(t, []byte("v"), readObject(t, again, "k"))
}
