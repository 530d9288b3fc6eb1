package publish

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-worker/internal/core"
)

// DataURIPrefix starts every inline result.
const DataURIPrefix = "data:audio/wav;base64,"

// InlinePublisher returns the whole file as a data URI. It applies no size limit, so very
// long outputs produce equally large responses.
type InlinePublisher struct {
	log *logger.Logger
}

// NewInlinePublisher creates an InlinePublisher.
func NewInlinePublisher(log *logger.Logger) *InlinePublisher {
	return &InlinePublisher{log: log}
}

// Publish encodes localPath as a data URI.
func (p *InlinePublisher) Publish(_ context.Context, localPath string) (string, error) {
	audioData, err := os.ReadFile(localPath)
	if err != nil {
		return "", core.Fail(core.ErrPublish, err, "failed to encode audio file: %v", err)
	}

	p.log.Info("No S3 credentials found, returning base64 encoded audio (size: %d bytes)", len(audioData))

	return DataURIPrefix + base64.StdEncoding.EncodeToString(audioData), nil
}
