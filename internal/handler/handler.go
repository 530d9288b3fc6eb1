// Package handler runs one voice cloning job from validation to the caller-facing result.
package handler

import (
	"context"
	"errors"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-worker/internal/core"
	"github.com/book-expert/voice-clone-worker/internal/observability"
	"github.com/book-expert/voice-clone-worker/internal/text"
)

// Caller-facing messages for failures the handler itself names.
const (
	msgFmtGenerate   = "Failed to generate audio: %v"
	msgFmtPublish    = "Failed to publish audio: %v"
	msgFmtUnexpected = "Unexpected error: %v"
)

var errPanic = errors.New("job panicked")

// Handler turns a Job into exactly one Result. It never retries.
type Handler struct {
	defaults    core.Defaults
	normalizer  *text.Normalizer
	resolver    core.ReferenceResolver
	synthesizer core.Synthesizer
	publisher   core.Publisher
	metrics     *observability.Metrics
	log         *logger.Logger
}

// New creates a Handler. metrics may be nil.
func New(
	defaults core.Defaults,
	resolver core.ReferenceResolver,
	synthesizer core.Synthesizer,
	publisher core.Publisher,
	metrics *observability.Metrics,
	log *logger.Logger,
) *Handler {
	return &Handler{
		defaults:    defaults,
		normalizer:  text.NewNormalizer(),
		resolver:    resolver,
		synthesizer: synthesizer,
		publisher:   publisher,
		metrics:     metrics,
		log:         log,
	}
}

// Handle validates the job, resolves the voice reference, synthesizes, and publishes.
// Every failure, including a panic in a collaborator, becomes Result.Error.
func (h *Handler) Handle(ctx context.Context, job *core.Job) (result core.Result) {
	started := time.Now()
	jobID := job.JobID()

	var failure error

	defer func() {
		recovered := recover()
		if recovered != nil {
			failure = core.Fail(errPanic, nil, msgFmtUnexpected, recovered)
			result = core.Result{Error: failure.Error()}
		}

		h.metrics.ObserveJob(failure, time.Since(started))

		if failure != nil {
			h.log.Error("Job %s failed at %s stage: %v", jobID, core.Stage(failure), failure)

			return
		}

		h.log.Info("Job %s completed in %s", jobID, time.Since(started).Round(time.Millisecond))
	}()

	h.log.Info("Job %s started (workflow %s)", jobID, job.Header.WorkflowID)

	output, err := h.run(ctx, job)
	if err != nil {
		failure = err

		return core.Result{Error: err.Error()}
	}

	return core.Result{OutputAudioPath: output}
}

func (h *Handler) run(ctx context.Context, job *core.Job) (string, error) {
	request, err := job.Input.Resolve(h.defaults)
	if err != nil {
		return "", err
	}

	request.Text = h.normalizer.Normalize(request.Text)

	referencePath, err := h.resolveReference(ctx, request.VoiceURL)
	if err != nil {
		return "", err
	}

	outputPath, err := h.synthesize(ctx, request, referencePath)
	if err != nil {
		return "", err
	}

	return h.publish(ctx, outputPath)
}

func (h *Handler) resolveReference(ctx context.Context, voiceURL string) (string, error) {
	defer h.observe(core.StageReference, time.Now())

	referencePath, err := h.resolver.Resolve(ctx, voiceURL)
	if err != nil {
		if errors.Is(err, core.ErrReference) {
			return "", err
		}

		return "", core.Fail(core.ErrReference, err, "%v", err)
	}

	return referencePath, nil
}

func (h *Handler) synthesize(ctx context.Context, request core.JobRequest, referencePath string) (string, error) {
	defer h.observe(core.StageSynthesis, time.Now())

	h.log.Info("Synthesizing %d characters in %s at speed %g", len(request.Text), request.Language, request.Speed)

	outputPath, err := h.synthesizer.Synthesize(ctx, request.Language, request.Text, referencePath, request.Speed)
	if err != nil {
		return "", core.Fail(core.ErrSynthesis, err, msgFmtGenerate, err)
	}

	return outputPath, nil
}

func (h *Handler) publish(ctx context.Context, outputPath string) (string, error) {
	defer h.observe(core.StagePublish, time.Now())

	location, err := h.publisher.Publish(ctx, outputPath)
	if err != nil {
		return "", core.Fail(core.ErrPublish, err, msgFmtPublish, err)
	}

	return location, nil
}

func (h *Handler) observe(stage string, started time.Time) {
	h.metrics.ObserveStage(stage, time.Since(started))
}
