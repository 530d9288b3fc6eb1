// Package synth drives the external voice model through one voice cloning pass: extract
// the reference speaker's tone, speak the text with a base speaker, and convert the base
// speaker's tone to the reference.
package synth

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-worker/internal/core"
	"github.com/book-expert/voice-clone-worker/internal/voice"
	"github.com/book-expert/voice-clone-worker/internal/workspace"
)

// Watermark is embedded by the tone converter into every output.
const Watermark = "@MyShell"

const (
	baseAudioPrefix    = "base"
	baseAudioExtension = ".wav"
)

// Caller-facing messages.
const (
	msgFmtCheckpointMissing = "Required checkpoint file not found: %s"
	msgFmtReferenceMissing  = "Reference speaker file not found: %s"
	msgFmtLoadConverter     = "failed to load tone converter: %v"
	msgFmtExtract           = "failed to extract reference tone embedding: %v"
	msgFmtLoadModel         = "failed to load text-to-speech model for %s: %v"
	msgFmtSelectSpeaker     = "failed to select base speaker: %v"
	msgFmtSpeakerEmbedding  = "failed to load base speaker embedding %s: %v"
	msgFmtReserveOutput     = "failed to reserve output file: %v"
	msgFmtSynthesize        = "failed to synthesize base speech: %v"
	msgFmtConvert           = "failed to convert tone colour: %v"
)

// Pipeline runs the synthesis steps against a voice.Model.
type Pipeline struct {
	model  voice.Model
	layout workspace.Layout
	log    *logger.Logger
	probe  DeviceProbe
	now    func() time.Time
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithDeviceProbe replaces the compute device probe.
func WithDeviceProbe(probe DeviceProbe) Option {
	return func(p *Pipeline) {
		p.probe = probe
	}
}

// WithClock replaces the clock used for output filenames.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// NewPipeline creates a Pipeline writing into layout.
func NewPipeline(model voice.Model, layout workspace.Layout, log *logger.Logger, opts ...Option) *Pipeline {
	pipeline := &Pipeline{
		model:  model,
		layout: layout,
		log:    log,
		probe:  ProbeDevice,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(pipeline)
	}

	return pipeline
}

// Synthesize speaks text in the voice of the recording at referencePath and returns the
// path of the single output file. Errors are core.Failures wrapping core.ErrCheckpoint or
// core.ErrSynthesis.
func (p *Pipeline) Synthesize(
	ctx context.Context,
	language core.Language,
	text, referencePath string,
	speed float64,
) (string, error) {
	device := p.probe()
	p.log.Info("Synthesizing on device %s", device)

	err := p.loadConverter(ctx, device)
	if err != nil {
		return "", err
	}

	_, statErr := os.Stat(referencePath)
	if statErr != nil {
		return "", core.Fail(core.ErrSynthesis, statErr, msgFmtReferenceMissing, referencePath)
	}

	target, err := p.model.ExtractEmbedding(ctx, referencePath)
	if err != nil {
		return "", core.Fail(core.ErrSynthesis, err, msgFmtExtract, err)
	}

	speakers, err := p.model.BaseSpeakers(ctx, language.ModelLanguage(), device)
	if err != nil {
		return "", core.Fail(core.ErrSynthesis, err, msgFmtLoadModel, language, err)
	}

	speaker, err := SelectSpeaker(speakers, language)
	if err != nil {
		return "", core.Fail(core.ErrSynthesis, err, msgFmtSelectSpeaker, err)
	}

	p.log.Info("Using base speaker %s (id %d) for %s", speaker.Key, speaker.ID, language)

	return p.revoice(ctx, device, language, text, speed, speaker, target)
}

func (p *Pipeline) loadConverter(ctx context.Context, device string) error {
	for _, path := range []string{p.layout.ConverterConfig(), p.layout.ConverterCheckpoint()} {
		_, statErr := os.Stat(path)
		if statErr != nil {
			return core.Fail(core.ErrCheckpoint, statErr, msgFmtCheckpointMissing, path)
		}
	}

	err := p.model.LoadConverter(ctx, voice.ConverterSpec{
		ConfigPath:     p.layout.ConverterConfig(),
		CheckpointPath: p.layout.ConverterCheckpoint(),
		Device:         device,
	})
	if err != nil {
		return core.Fail(core.ErrSynthesis, err, msgFmtLoadConverter, err)
	}

	return nil
}

func (p *Pipeline) revoice(
	ctx context.Context,
	device string,
	language core.Language,
	text string,
	speed float64,
	speaker BaseSpeaker,
	target voice.Embedding,
) (string, error) {
	embeddingPath := p.layout.SpeakerEmbedding(speaker.Key)

	source, err := p.model.LoadSpeakerEmbedding(ctx, embeddingPath, device)
	if err != nil {
		return "", core.Fail(core.ErrSynthesis, err, msgFmtSpeakerEmbedding, embeddingPath, err)
	}

	ensureErr := p.layout.Ensure()
	if ensureErr != nil {
		return "", core.Fail(core.ErrSynthesis, ensureErr, msgFmtSynthesize, ensureErr)
	}

	basePath := p.layout.ScratchFile(baseAudioPrefix, baseAudioExtension)
	defer p.discard(basePath)

	err = p.model.Synthesize(ctx, voice.SynthesisRequest{
		Text:       text,
		Language:   language.ModelLanguage(),
		SpeakerID:  speaker.ID,
		Speed:      speed,
		Device:     device,
		OutputPath: basePath,
	})
	if err != nil {
		return "", core.Fail(core.ErrSynthesis, err, msgFmtSynthesize, err)
	}

	outputPath, err := p.layout.ReserveOutputPath(p.now())
	if err != nil {
		return "", core.Fail(core.ErrSynthesis, err, msgFmtReserveOutput, err)
	}

	err = p.model.ConvertTone(ctx, voice.ConversionRequest{
		SourcePath: basePath,
		Source:     source,
		Target:     target,
		OutputPath: outputPath,
		Watermark:  Watermark,
	})
	if err != nil {
		p.discard(outputPath)

		return "", core.Fail(core.ErrSynthesis, err, msgFmtConvert, err)
	}

	return outputPath, nil
}

func (p *Pipeline) discard(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		p.log.Warn("Failed to remove '%s': %v", path, removeErr)
	}
}
