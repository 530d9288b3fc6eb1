// Package voice defines the capability interface of the external voice cloning model and
// an HTTP client for the inference sidecar that hosts it.
package voice

import "context"

// Embedding is an opaque tone colour descriptor of a speaker.
type Embedding []float32

// SynthesisRequest defines the JSON payload for base speaker synthesis.
// The model speaks Text with one base speaker and writes a WAV file to OutputPath, which
// the tone converter later re-voices.
type SynthesisRequest struct {
	// Text contains the normalised text to speak. Must be non-empty.
	Text string `json:"text"`

	// Language is the model's language code (e.g. "EN", "ZH"), not the job's variant.
	Language string `json:"language"`

	// SpeakerID selects the base speaker, as reported by BaseSpeakers for Language.
	SpeakerID int `json:"speaker_id"`

	// Speed is the speech speed multiplier. Values above 1.0 speak faster.
	Speed float64 `json:"speed"`

	// Device is the compute device the model runs on ("cuda:0" or "cpu").
	Device string `json:"device"`

	// OutputPath is where the base waveform is written, on the filesystem shared with
	// the model.
	OutputPath string `json:"output_path"`
}

// ConversionRequest defines the JSON payload for tone colour conversion.
// The converter re-voices SourcePath from the Source embedding toward the Target
// embedding and writes the cloned voice to OutputPath.
type ConversionRequest struct {
	// SourcePath is the base speaker waveform produced by synthesis.
	SourcePath string `json:"source_path"`

	// Source is the embedding of the base speaker that spoke SourcePath.
	Source Embedding `json:"source_embedding"`

	// Target is the embedding extracted from the caller's reference recording.
	Target Embedding `json:"target_embedding"`

	// OutputPath is the reserved output file the converted audio is written to.
	OutputPath string `json:"output_path"`

	// Watermark optionally embeds a message in the output. Empty means no watermark.
	Watermark string `json:"watermark,omitempty"`
}

// ConverterSpec locates the tone converter checkpoint.
type ConverterSpec struct {
	ConfigPath     string `json:"config_path"`
	CheckpointPath string `json:"checkpoint_path"`
	Device         string `json:"device"`
}

// Model is the voice cloning capability the synthesis pipeline drives. Paths refer to
// a filesystem shared by the worker and the model.
type Model interface {
	HealthCheck(ctx context.Context) error
	LoadConverter(ctx context.Context, spec ConverterSpec) error
	ExtractEmbedding(ctx context.Context, audioPath string) (Embedding, error)
	LoadSpeakerEmbedding(ctx context.Context, path, device string) (Embedding, error)
	BaseSpeakers(ctx context.Context, language, device string) (map[string]int, error)
	Synthesize(ctx context.Context, req SynthesisRequest) error
	ConvertTone(ctx context.Context, req ConversionRequest) error
}
