package config

import (
	"fmt"

	"github.com/book-expert/voice-clone-worker/internal/core"
	"github.com/book-expert/voice-clone-worker/internal/publish"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env holds the job defaults and bucket credentials taken from the process environment.
type Env struct {
	DefaultText     string `envconfig:"DEFAULT_TEXT"`
	DefaultLanguage string `envconfig:"DEFAULT_LANGUAGE" default:"EN"`
	DefaultVoiceURL string `envconfig:"DEFAULT_VOICE_URL"`
	DefaultSpeed    string `envconfig:"DEFAULT_SPEED" default:"1.0"`

	BucketName            string `envconfig:"BUCKET_NAME" default:"OpenVoice"`
	BucketEndpointURL     string `envconfig:"BUCKET_ENDPOINT_URL"`
	BucketAccessKeyID     string `envconfig:"BUCKET_ACCESS_KEY_ID"`
	BucketSecretAccessKey string `envconfig:"BUCKET_SECRET_ACCESS_KEY"`
}

// LoadEnv reads Env from the environment after loading a .env file, if present, from the
// working directory. Variables already set in the environment win over the file.
func LoadEnv() (*Env, error) {
	_ = godotenv.Load()

	var env Env

	err := envconfig.Process("", &env)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	return &env, nil
}

// JobDefaults are the values used for fields absent from a job payload.
func (e *Env) JobDefaults() core.Defaults {
	return core.Defaults{
		Text:     e.DefaultText,
		Language: e.DefaultLanguage,
		VoiceURL: e.DefaultVoiceURL,
		Speed:    e.DefaultSpeed,
	}
}

// Bucket is the result publisher's object storage configuration.
func (e *Env) Bucket() publish.BucketConfig {
	return publish.BucketConfig{
		Name:            e.BucketName,
		EndpointURL:     e.BucketEndpointURL,
		AccessKeyID:     e.BucketAccessKeyID,
		SecretAccessKey: e.BucketSecretAccessKey,
	}
}
