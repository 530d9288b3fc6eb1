package handler_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-worker/internal/core"
	"github.com/book-expert/voice-clone-worker/internal/handler"
	"github.com/book-expert/voice-clone-worker/internal/observability"
	"github.com/book-expert/voice-clone-worker/internal/publish"
	"github.com/book-expert/voice-clone-worker/internal/reference"
	"github.com/book-expert/voice-clone-worker/internal/synth"
	"github.com/book-expert/voice-clone-worker/internal/voice"
	"github.com/book-expert/voice-clone-worker/internal/workspace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var convertedAudio = []byte("RIFF....WAVEfmt cloned voice")

// fakeModel stands in for the inference sidecar and writes audio where it is asked to.
type fakeModel struct {
	mu         sync.Mutex
	synthCalls int
}

func (m *fakeModel) HealthCheck(context.Context) error { return nil }

func (m *fakeModel) LoadConverter(context.Context, voice.ConverterSpec) error { return nil }

func (m *fakeModel) ExtractEmbedding(context.Context, string) (voice.Embedding, error) {
	return voice.Embedding{0.2, 0.8}, nil
}

func (m *fakeModel) LoadSpeakerEmbedding(context.Context, string, string) (voice.Embedding, error) {
	return voice.Embedding{0.5, 0.5}, nil
}

func (m *fakeModel) BaseSpeakers(context.Context, string, string) (map[string]int, error) {
	return map[string]int{"EN-US": 0, "EN-Default": 1}, nil
}

func (m *fakeModel) Synthesize(_ context.Context, req voice.SynthesisRequest) error {
	m.mu.Lock()
	m.synthCalls++
	m.mu.Unlock()

	return os.WriteFile(req.OutputPath, []byte("base speaker audio"), 0o600)
}

func (m *fakeModel) ConvertTone(_ context.Context, req voice.ConversionRequest) error {
	return os.WriteFile(req.OutputPath, convertedAudio, 0o600)
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.synthCalls
}

// newComposedHandler wires the real resolver, pipeline and inline publisher around model.
func newComposedHandler(t *testing.T, model voice.Model) *handler.Handler {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "handler-compose-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	layout := workspace.New(t.TempDir())
	require.NoError(t, layout.Ensure())
	require.NoError(t, os.WriteFile(layout.ConverterConfig(), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(layout.ConverterCheckpoint(), []byte("weights"), 0o600))

	resolver := reference.NewResolver(&http.Client{}, layout, nil, testLogger)
	pipeline := synth.NewPipeline(model, layout, testLogger,
		synth.WithDeviceProbe(func() string { return synth.DeviceCPU }),
	)

	return handler.New(
		core.Defaults{}, resolver, pipeline, publish.NewInlinePublisher(testLogger),
		observability.NewMetrics(prometheus.NewRegistry()), testLogger,
	)
}

func TestHandle_ComposedInlineSuccess(t *testing.T) {
	t.Parallel()

	model := &fakeModel{}
	jobHandler := newComposedHandler(t, model)

	referencePath := filepath.Join(t.TempDir(), "speaker.wav")
	require.NoError(t, os.WriteFile(referencePath, make([]byte, 4096), 0o600))

	result := jobHandler.Handle(context.Background(), jobWith(core.JobInput{
		Text:     strPtr("Hello from a cloned voice."),
		VoiceURL: strPtr(referencePath),
	}))

	require.Empty(t, result.Error)

	encoded, inline := strings.CutPrefix(result.OutputAudioPath, "data:audio/wav;base64,")
	require.True(t, inline, result.OutputAudioPath)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, convertedAudio, decoded)
	assert.Equal(t, 1, model.calls())
}

func TestHandle_ComposedMissingLocalReference(t *testing.T) {
	t.Parallel()

	model := &fakeModel{}
	jobHandler := newComposedHandler(t, model)

	result := jobHandler.Handle(context.Background(), jobWith(core.JobInput{
		Text:     strPtr("Hello"),
		VoiceURL: strPtr("/missing/file.wav"),
	}))

	assert.Equal(t, "Local voice file not found: /missing/file.wav", result.Error)
	assert.Empty(t, result.OutputAudioPath)
	assert.Zero(t, model.calls(), "synthesis must not run without a reference")
}
