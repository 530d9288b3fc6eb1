// Package core defines the job model, error taxonomy and shared interfaces of the
// voice clone worker.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store. The
// worker fetches staged recordings with DownloadFile; the submission client stages them
// with Upload.
type ObjectStore interface {
	DownloadFile(ctx context.Context, key, dstPath string) error
	Upload(ctx context.Context, key string, data []byte) error
}

// ReferenceResolver turns a job's voice specification into a validated local audio file.
type ReferenceResolver interface {
	Resolve(ctx context.Context, voiceSpec string) (string, error)
}

// Synthesizer drives the external voice model for one job and returns the output file path.
type Synthesizer interface {
	Synthesize(ctx context.Context, language Language, text, referencePath string, speed float64) (string, error)
}

// Publisher delivers a synthesized file to the caller as a URL or data URI.
type Publisher interface {
	Publish(ctx context.Context, localPath string) (string, error)
}
