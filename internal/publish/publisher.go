// Package publish delivers synthesized audio to the job caller, either as a public
// object URL in an S3-compatible bucket or inline as a base64 data URI.
package publish

import (
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-worker/internal/core"
)

// DefaultBucketName is used when no bucket name is configured.
const DefaultBucketName = "OpenVoice"

// BucketConfig holds the object storage settings taken from the environment.
type BucketConfig struct {
	Name            string
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
}

// Complete reports whether endpoint, access key and secret key are all present.
func (b BucketConfig) Complete() bool {
	return b.EndpointURL != "" && b.AccessKeyID != "" && b.SecretAccessKey != ""
}

// New returns the S3 publisher when the bucket credentials are complete and the inline
// publisher otherwise.
func New(bucket BucketConfig, log *logger.Logger) (core.Publisher, error) {
	if !bucket.Complete() {
		log.Info("No bucket credentials configured; results will be returned inline")

		return NewInlinePublisher(log), nil
	}

	publisher, err := NewS3Publisher(bucket, log)
	if err != nil {
		return nil, err
	}

	return publisher, nil
}
