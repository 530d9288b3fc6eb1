package handler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-worker/internal/core"
	"github.com/book-expert/voice-clone-worker/internal/handler"
	"github.com/book-expert/voice-clone-worker/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testReference = "/app/tmp/voice_ref.wav"
	testOutput    = "/app/outputs_v2/OpenVoice_20260101_120000_abc123_0a1b2c.wav"
	testURL       = "https://s3.example.com/OpenVoice/OpenVoice_20260101_120000_abc123_0a1b2c.wav"
)

var (
	errModelCrashed = errors.New("model crashed")
	errAccessDenied = errors.New("access denied")
)

type mockResolver struct {
	path  string
	err   error
	calls int
	got   string
}

func (m *mockResolver) Resolve(_ context.Context, voiceSpec string) (string, error) {
	m.calls++
	m.got = voiceSpec

	return m.path, m.err
}

type mockSynthesizer struct {
	output   string
	err      error
	panicVal any
	calls    int
	language core.Language
	text     string
	speed    float64
}

func (m *mockSynthesizer) Synthesize(
	_ context.Context,
	language core.Language,
	text, _ string,
	speed float64,
) (string, error) {
	m.calls++
	m.language = language
	m.text = text
	m.speed = speed

	if m.panicVal != nil {
		panic(m.panicVal)
	}

	return m.output, m.err
}

type mockPublisher struct {
	location string
	err      error
	calls    int
}

func (m *mockPublisher) Publish(_ context.Context, _ string) (string, error) {
	m.calls++

	return m.location, m.err
}

type fixture struct {
	resolver    *mockResolver
	synthesizer *mockSynthesizer
	publisher   *mockPublisher
	handler     *handler.Handler
}

func newFixture(t *testing.T, defaults core.Defaults) *fixture {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "handler-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	f := &fixture{
		resolver:    &mockResolver{path: testReference},
		synthesizer: &mockSynthesizer{output: testOutput},
		publisher:   &mockPublisher{location: testURL},
	}
	f.handler = handler.New(
		defaults, f.resolver, f.synthesizer, f.publisher,
		observability.NewMetrics(prometheus.NewRegistry()), testLogger,
	)

	return f
}

func strPtr(s string) *string { return &s }

func jobWith(input core.JobInput) *core.Job {
	return &core.Job{ID: "job-1", Input: input}
}

func TestHandle_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t, core.Defaults{})

	result := f.handler.Handle(context.Background(), jobWith(core.JobInput{
		Text:     strPtr("Hello\n world"),
		VoiceURL: strPtr("https://example.com/voice.wav"),
		Language: strPtr("en-us"),
	}))

	assert.Equal(t, core.Result{OutputAudioPath: testURL}, result)
	assert.Equal(t, "https://example.com/voice.wav", f.resolver.got)
	assert.Equal(t, core.LanguageENUS, f.synthesizer.language)
	assert.Equal(t, "Hello world", f.synthesizer.text)
	assert.InEpsilon(t, 1.0, f.synthesizer.speed, 0.0001)
	assert.Equal(t, 1, f.publisher.calls)
}

func TestHandle_EnvironmentDefaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t, core.Defaults{
		Text: "Default text", VoiceURL: "/voices/default.wav", Language: "FR", Speed: "1.3",
	})

	result := f.handler.Handle(context.Background(), &core.Job{})

	assert.False(t, result.Failed())
	assert.Equal(t, "/voices/default.wav", f.resolver.got)
	assert.Equal(t, core.LanguageFR, f.synthesizer.language)
	assert.Equal(t, "Default text", f.synthesizer.text)
	assert.InEpsilon(t, 1.3, f.synthesizer.speed, 0.0001)
}

func TestHandle_InputErrorsSkipPipeline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input core.JobInput
		want  string
	}{
		{name: "missing text", input: core.JobInput{VoiceURL: strPtr("/a.wav")}, want: "Text is required"},
		{name: "missing voice", input: core.JobInput{Text: strPtr("hi")}, want: "Voice URL is required"},
		{
			name:  "bad language",
			input: core.JobInput{Text: strPtr("hi"), VoiceURL: strPtr("/a.wav"), Language: strPtr("xx")},
			want:  "Invalid language: xx",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, core.Defaults{})

			result := f.handler.Handle(context.Background(), jobWith(testCase.input))

			assert.Equal(t, core.Result{Error: testCase.want}, result)
			assert.Zero(t, f.resolver.calls)
			assert.Zero(t, f.synthesizer.calls)
			assert.Zero(t, f.publisher.calls)
		})
	}
}

func TestHandle_ReferenceErrorVerbatim(t *testing.T) {
	t.Parallel()

	f := newFixture(t, core.Defaults{})
	f.resolver.err = core.Fail(core.ErrReference, nil, "Local voice file not found: /missing/file.wav")

	result := f.handler.Handle(context.Background(), jobWith(core.JobInput{
		Text: strPtr("hi"), VoiceURL: strPtr("/missing/file.wav"),
	}))

	assert.Equal(t, core.Result{Error: "Local voice file not found: /missing/file.wav"}, result)
	assert.Zero(t, f.synthesizer.calls)
	assert.Zero(t, f.publisher.calls)
}

func TestHandle_SynthesisError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, core.Defaults{})
	f.synthesizer.err = errModelCrashed

	result := f.handler.Handle(context.Background(), jobWith(core.JobInput{
		Text: strPtr("hi"), VoiceURL: strPtr("/a.wav"),
	}))

	assert.Equal(t, core.Result{Error: "Failed to generate audio: model crashed"}, result)
	assert.Zero(t, f.publisher.calls)
}

func TestHandle_PublishError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, core.Defaults{})
	f.publisher.err = errAccessDenied

	result := f.handler.Handle(context.Background(), jobWith(core.JobInput{
		Text: strPtr("hi"), VoiceURL: strPtr("/a.wav"),
	}))

	assert.Equal(t, core.Result{Error: "Failed to publish audio: access denied"}, result)
}

func TestHandle_PanicBecomesUnexpectedError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, core.Defaults{})
	f.synthesizer.panicVal = "index out of range"

	var result core.Result

	require.NotPanics(t, func() {
		result = f.handler.Handle(context.Background(), jobWith(core.JobInput{
			Text: strPtr("hi"), VoiceURL: strPtr("/a.wav"),
		}))
	})

	assert.Equal(t, core.Result{Error: "Unexpected error: index out of range"}, result)
	assert.Zero(t, f.publisher.calls)
}

func TestHandle_NilMetrics(t *testing.T) {
	t.Parallel()

	testLogger, err := logger.New(t.TempDir(), "handler-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	h := handler.New(core.Defaults{}, &mockResolver{path: testReference},
		&mockSynthesizer{output: testOutput}, &mockPublisher{location: testURL}, nil, testLogger)

	result := h.Handle(context.Background(), jobWith(core.JobInput{Text: strPtr("hi"), VoiceURL: strPtr("/a.wav")}))
	assert.Equal(t, testURL, result.OutputAudioPath)
}
