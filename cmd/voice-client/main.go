// voice-client submits one voice clone job over NATS and prints the result.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/voice-clone-worker/internal/config"
	"github.com/book-expert/voice-clone-worker/internal/core"
	"github.com/book-expert/voice-clone-worker/internal/objectstore"
	"github.com/book-expert/voice-clone-worker/internal/publish"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Flag names.
const (
	flagText     = "text"
	flagVoiceURL = "voice-url"
	flagLanguage = "language"
	flagSpeed    = "speed"
	flagNATSURL  = "nats-url"
	flagSubject  = "subject"
	flagTimeout  = "timeout"
	flagOutput   = "output"
	flagUserID   = "user"

	flagVoiceFile       = "voice-file"
	flagReferenceBucket = "reference-bucket"
)

// Flag descriptions.
const (
	flagTextDesc     = "Text to speak (falls back to the worker's DEFAULT_TEXT)"
	flagVoiceURLDesc = "Reference voice: http(s) URL, local path on the worker, or objectstore://<key>"
	flagLanguageDesc = "Language code, e.g. EN, EN-US, ES, ZH"
	flagSpeedDesc    = "Speech speed multiplier; 0 uses the worker default"
	flagNATSURLDesc  = "NATS server URL"
	flagSubjectDesc  = "Job subject the workers listen on"
	flagTimeoutDesc  = "How long to wait for the result"
	flagOutputDesc   = "Write inline audio results to this .wav file"
	flagUserIDDesc   = "User id recorded in the job header"

	flagVoiceFileDesc       = "Local recording to upload to the reference bucket and use as the voice"
	flagReferenceBucketDesc = "Object store bucket the worker reads objectstore:// voices from"
)

// Error and output messages.
const (
	errFmtConnect      = "failed to connect to NATS at %s: %w"
	errFmtRequest      = "job request on %s failed: %w"
	errFmtDecodeReply  = "failed to decode reply: %w"
	errFmtJobFailed    = "job %s failed: %s"
	errFmtWriteOutput  = "failed to write %s: %w"
	errFmtDecodeAudio  = "failed to decode inline audio: %w"
	msgFmtResult       = "Job %s: %s\n"
	msgFmtSavedOutput  = "Job %s: audio saved to %s\n"
	errOutputNotInline = "--output requires an inline result; the worker uploaded the audio instead"
	errFmtReadVoice    = "failed to read voice file %s: %w"
	errFmtStageVoice   = "failed to upload voice file %s: %w"
	errFmtOpenBucket   = "failed to open reference bucket %s: %w"
	msgFmtStagedVoice  = "Uploaded %s as %s\n"
)

const (
	outputFilePerm    = 0o600
	defaultJobTimeout = 5 * time.Minute
	natsClientName    = "voice-client"
	defaultVoiceExt   = ".wav"
)

var (
	// ErrOutputNotInline is returned when --output is set but the worker answered with a URL.
	ErrOutputNotInline = errors.New(errOutputNotInline)
	// ErrVoiceSourceConflict is returned when both --voice-url and --voice-file are set.
	ErrVoiceSourceConflict = errors.New("--voice-url and --voice-file are mutually exclusive")
	// ErrReferenceBucketRequired is returned when --voice-file is set without a bucket.
	ErrReferenceBucketRequired = errors.New("--voice-file requires --reference-bucket")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text     string
	voiceURL string
	language string
	speed    float64
	natsURL  string
	subject  string
	timeout  time.Duration
	output   string
	userID   string

	voiceFile       string
	referenceBucket string
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	natsConnection, err := nats.Connect(flags.natsURL, nats.Name(natsClientName))
	if err != nil {
		return fmt.Errorf(errFmtConnect, flags.natsURL, err)
	}
	defer natsConnection.Close()

	if flags.voiceFile != "" {
		flags.voiceURL, err = uploadVoiceFile(natsConnection, flags, stdout)
		if err != nil {
			return err
		}
	}

	return submit(natsConnection, flags, stdout)
}

// uploadVoiceFile stages --voice-file in the reference bucket and returns the voice
// specification the worker resolves it by.
func uploadVoiceFile(natsConnection *nats.Conn, flags appFlags, stdout io.Writer) (string, error) {
	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return "", fmt.Errorf(errFmtOpenBucket, flags.referenceBucket, err)
	}

	store, err := objectstore.New(jetstreamContext, flags.referenceBucket)
	if err != nil {
		return "", fmt.Errorf(errFmtOpenBucket, flags.referenceBucket, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	voiceURL, err := stageVoiceFile(ctx, store, flags.voiceFile)
	if err != nil {
		return "", err
	}

	_, _ = fmt.Fprintf(stdout, msgFmtStagedVoice, flags.voiceFile, voiceURL)

	return voiceURL, nil
}

// stageVoiceFile uploads a local recording under a fresh key, keeping its extension.
func stageVoiceFile(ctx context.Context, store core.ObjectStore, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf(errFmtReadVoice, path, err)
	}

	ext := filepath.Ext(path)
	if ext == "" {
		ext = defaultVoiceExt
	}

	key := uuid.NewString() + ext

	err = store.Upload(ctx, key, data)
	if err != nil {
		return "", fmt.Errorf(errFmtStageVoice, path, err)
	}

	return objectstore.URI(key), nil
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet(natsClientName, flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.voiceURL, flagVoiceURL, "", flagVoiceURLDesc)
	flagSet.StringVar(&flags.language, flagLanguage, "", flagLanguageDesc)
	flagSet.Float64Var(&flags.speed, flagSpeed, 0, flagSpeedDesc)
	flagSet.StringVar(&flags.natsURL, flagNATSURL, config.DefaultNATSURL, flagNATSURLDesc)
	flagSet.StringVar(&flags.subject, flagSubject, config.DefaultJobSubject, flagSubjectDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultJobTimeout, flagTimeoutDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.StringVar(&flags.userID, flagUserID, "", flagUserIDDesc)
	flagSet.StringVar(&flags.voiceFile, flagVoiceFile, "", flagVoiceFileDesc)
	flagSet.StringVar(&flags.referenceBucket, flagReferenceBucket, "", flagReferenceBucketDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	if flags.voiceFile != "" {
		if flags.voiceURL != "" {
			return appFlags{}, ErrVoiceSourceConflict
		}

		if flags.referenceBucket == "" {
			return appFlags{}, ErrReferenceBucketRequired
		}
	}

	return flags, nil
}

// buildJob turns the flags into a job envelope. Unset flags are left out of the payload so
// the worker's defaults apply.
func buildJob(flags appFlags, now time.Time) core.Job {
	jobID := uuid.NewString()

	job := core.Job{
		ID: jobID,
		Header: events.EventHeader{
			Timestamp:  now,
			WorkflowID: uuid.NewString(),
			EventID:    jobID,
			UserID:     flags.userID,
		},
	}

	if flags.text != "" {
		job.Input.Text = &flags.text
	}

	if flags.voiceURL != "" {
		job.Input.VoiceURL = &flags.voiceURL
	}

	if flags.language != "" {
		job.Input.Language = &flags.language
	}

	if flags.speed != 0 {
		job.Input.Speed = &flags.speed
	}

	return job
}

// submit sends the job and waits for its single reply.
func submit(natsConnection *nats.Conn, flags appFlags, stdout io.Writer) error {
	job := buildJob(flags, time.Now())

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	replyMsg, err := natsConnection.Request(flags.subject, payload, flags.timeout)
	if err != nil {
		return fmt.Errorf(errFmtRequest, flags.subject, err)
	}

	var reply core.Reply

	err = json.Unmarshal(replyMsg.Data, &reply)
	if err != nil {
		return fmt.Errorf(errFmtDecodeReply, err)
	}

	return handleReply(reply, flags.output, stdout)
}

// handleReply prints the result or, for inline audio with an output path, saves it.
func handleReply(reply core.Reply, outputPath string, stdout io.Writer) error {
	if reply.Failed() {
		return fmt.Errorf(errFmtJobFailed, reply.ID, reply.Error)
	}

	if outputPath == "" {
		_, _ = fmt.Fprintf(stdout, msgFmtResult, reply.ID, reply.OutputAudioPath)

		return nil
	}

	encoded, inline := strings.CutPrefix(reply.OutputAudioPath, publish.DataURIPrefix)
	if !inline {
		return fmt.Errorf("%w: %s", ErrOutputNotInline, reply.OutputAudioPath)
	}

	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf(errFmtDecodeAudio, err)
	}

	err = os.WriteFile(outputPath, audio, outputFilePerm)
	if err != nil {
		return fmt.Errorf(errFmtWriteOutput, outputPath, err)
	}

	_, _ = fmt.Fprintf(stdout, msgFmtSavedOutput, reply.ID, outputPath)

	return nil
}
