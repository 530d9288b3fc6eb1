package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test constants.
const (
	testRefPath       = "/app/tmp/voice_1.wav"
	testDevice        = "cpu"
	testErrCode       = "CHECKPOINT_MISSING"
	testErrDetail     = "converter checkpoint could not be read"
	testClientTimeout = 5 * time.Second
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewHTTPClient(server.URL+"/", testClientTimeout)
}

func TestHTTPClient_ExtractEmbedding(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, apiExtractEmbedding, r.URL.Path)
		assert.Equal(t, contentTypeJSON, r.Header.Get(headerContentType))

		var req extractRequest

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testRefPath, req.AudioPath)
		assert.False(t, req.VAD)

		w.Header().Set(headerContentType, contentTypeJSON)
		_ = json.NewEncoder(w).Encode(embeddingResponse{Embedding: Embedding{0.1, 0.2, 0.3}})
	})

	embedding, err := client.ExtractEmbedding(context.Background(), testRefPath)
	require.NoError(t, err)
	assert.Equal(t, Embedding{0.1, 0.2, 0.3}, embedding)
}

func TestHTTPClient_ExtractEmbedding_Empty(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(embeddingResponse{})
	})

	_, err := client.ExtractEmbedding(context.Background(), testRefPath)
	require.ErrorIs(t, err, ErrEmptyEmbedding)

	_, err = client.ExtractEmbedding(context.Background(), "")
	require.ErrorIs(t, err, ErrAudioPathEmpty)
}

func TestHTTPClient_BaseSpeakers(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, apiSpeakers, r.URL.Path)
		assert.Equal(t, "EN", r.URL.Query().Get("language"))
		assert.Equal(t, testDevice, r.URL.Query().Get("device"))

		_ = json.NewEncoder(w).Encode(speakersResponse{Speakers: map[string]int{"EN-US": 0, "EN_INDIA": 2}})
	})

	speakers, err := client.BaseSpeakers(context.Background(), "EN", testDevice)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"EN-US": 0, "EN_INDIA": 2}, speakers)
}

func TestHTTPClient_BaseSpeakers_None(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(speakersResponse{})
	})

	_, err := client.BaseSpeakers(context.Background(), "FR", testDevice)
	require.ErrorIs(t, err, ErrNoSpeakers)
}

func TestHTTPClient_SynthesizeAndConvert(t *testing.T) {
	t.Parallel()

	var (
		synthesized SynthesisRequest
		converted   ConversionRequest
	)

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case apiSynthesize:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&synthesized))
		case apiConvert:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&converted))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		w.WriteHeader(http.StatusNoContent)
	})

	err := client.Synthesize(context.Background(), SynthesisRequest{
		Text: "Hello world", Language: "EN", SpeakerID: 2, Speed: 1.2, Device: testDevice, OutputPath: "/tmp/base.wav",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", synthesized.Text)
	assert.Equal(t, 2, synthesized.SpeakerID)
	assert.InEpsilon(t, 1.2, synthesized.Speed, 0.0001)

	err = client.ConvertTone(context.Background(), ConversionRequest{
		SourcePath: "/tmp/base.wav", Source: Embedding{1}, Target: Embedding{2}, OutputPath: "/out.wav", Watermark: "@MyShell",
	})
	require.NoError(t, err)
	assert.Equal(t, "/out.wav", converted.OutputPath)
	assert.Equal(t, Embedding{2}, converted.Target)
	assert.Equal(t, "@MyShell", converted.Watermark)

	err = client.Synthesize(context.Background(), SynthesisRequest{})
	require.ErrorIs(t, err, ErrTextEmpty)
}

func TestHTTPClient_StructuredError(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Detail: testErrDetail, ErrorCode: testErrCode})
	})

	err := client.LoadConverter(context.Background(), ConverterSpec{ConfigPath: "c.json", CheckpointPath: "c.pth", Device: testDevice})
	require.Error(t, err)
	assert.Contains(t, err.Error(), testErrDetail)
	assert.Contains(t, err.Error(), testErrCode)
}

func TestHTTPClient_RawError(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	})

	_, err := client.LoadSpeakerEmbedding(context.Background(), "/ses/en-us.pth", testDevice)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestHTTPClient_HealthCheck(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, apiHealth, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.HealthCheck(context.Background()))

	unreachable := NewHTTPClient("http://127.0.0.1:1", time.Second)
	require.Error(t, unreachable.HealthCheck(context.Background()))
}
