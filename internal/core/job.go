package core

import (
	"strconv"
	"strings"

	"github.com/book-expert/events"
	"github.com/google/uuid"
)

// Language is one of the locale codes the voice model accepts.
type Language string

// Supported languages. The English variants share one model and differ by base speaker.
const (
	LanguageEN        Language = "EN"
	LanguageENAU      Language = "EN-AU"
	LanguageENBR      Language = "EN-BR"
	LanguageENIndia   Language = "EN-INDIA"
	LanguageENUS      Language = "EN-US"
	LanguageENDefault Language = "EN-DEFAULT"
	LanguageES        Language = "ES"
	LanguageFR        Language = "FR"
	LanguageZH        Language = "ZH"
	LanguageJP        Language = "JP"
	LanguageKR        Language = "KR"
)

// Job defaults applied when neither the payload nor the environment supplies a value.
const (
	DefaultLanguage = LanguageEN
	DefaultSpeed    = 1.0
)

// SupportedLanguages lists every accepted language code.
var SupportedLanguages = []Language{
	LanguageEN, LanguageENAU, LanguageENBR, LanguageENIndia, LanguageENUS, LanguageENDefault,
	LanguageES, LanguageFR, LanguageZH, LanguageJP, LanguageKR,
}

// ParseLanguage normalises s to upper case and checks it against SupportedLanguages.
func ParseLanguage(s string) (Language, bool) {
	candidate := Language(strings.ToUpper(strings.TrimSpace(s)))
	for _, lang := range SupportedLanguages {
		if lang == candidate {
			return lang, true
		}
	}

	return "", false
}

// ModelLanguage is the language code the text-to-speech model is loaded with.
// All English variants load the English model.
func (l Language) ModelLanguage() string {
	base, _, _ := strings.Cut(string(l), "-")

	return base
}

// SpeakerKey is the normalised base speaker key preferred for this language.
func (l Language) SpeakerKey() string {
	if l == LanguageEN {
		return NormalizeSpeakerKey(string(LanguageENDefault))
	}

	return NormalizeSpeakerKey(string(l))
}

// NormalizeSpeakerKey lower-cases a model speaker key and replaces underscores with dashes,
// which is also the basename of the speaker's precomputed embedding file.
func NormalizeSpeakerKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "_", "-")
}

// JobInput is the caller-supplied job payload. Nil fields were absent from the payload.
type JobInput struct {
	Text     *string  `json:"text,omitempty"`
	Language *string  `json:"language,omitempty"`
	VoiceURL *string  `json:"voice_url,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
}

// Job is the envelope delivered by the job runtime.
type Job struct {
	ID     string             `json:"id,omitempty"`
	Header events.EventHeader `json:"header"`
	Input  JobInput           `json:"input"`
}

// JobID returns the job id, falling back to the header's event id and then a fresh UUID.
func (j *Job) JobID() string {
	if j.ID != "" {
		return j.ID
	}

	if j.Header.EventID != "" {
		return j.Header.EventID
	}

	j.ID = uuid.NewString()

	return j.ID
}

// Defaults are operator-level job defaults sourced from the environment.
type Defaults struct {
	Text     string
	Language string
	VoiceURL string
	Speed    string
}

// JobRequest is a validated job.
type JobRequest struct {
	Text     string
	Language Language
	VoiceURL string
	Speed    float64
}

// Resolve merges the payload with defaults and validates the result.
// Returned errors are Failures wrapping ErrInput.
func (in JobInput) Resolve(defaults Defaults) (JobRequest, error) {
	text := pick(in.Text, defaults.Text)
	if strings.TrimSpace(text) == "" {
		return JobRequest{}, Fail(ErrInput, nil, "Text is required")
	}

	voiceURL := pick(in.VoiceURL, defaults.VoiceURL)
	if strings.TrimSpace(voiceURL) == "" {
		return JobRequest{}, Fail(ErrInput, nil, "Voice URL is required")
	}

	rawLanguage := pick(in.Language, defaults.Language)
	if rawLanguage == "" {
		rawLanguage = string(DefaultLanguage)
	}

	language, ok := ParseLanguage(rawLanguage)
	if !ok {
		return JobRequest{}, Fail(ErrInput, nil, "Invalid language: %s", rawLanguage)
	}

	speed := DefaultSpeed

	switch {
	case in.Speed != nil:
		speed = *in.Speed
	case defaults.Speed != "":
		parsed, err := strconv.ParseFloat(strings.TrimSpace(defaults.Speed), 64)
		if err != nil {
			return JobRequest{}, Fail(ErrInput, err, "Invalid speed: %s", defaults.Speed)
		}

		speed = parsed
	}

	if speed <= 0 {
		return JobRequest{}, Fail(ErrInput, nil, "Invalid speed: %g", speed)
	}

	return JobRequest{
		Text:     text,
		Language: language,
		VoiceURL: strings.TrimSpace(voiceURL),
		Speed:    speed,
	}, nil
}

func pick(value *string, fallback string) string {
	if value != nil {
		return *value
	}

	return fallback
}

// Result is the single terminal response of a job.
type Result struct {
	OutputAudioPath string `json:"output_audio_path,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Reply is the message published back to the job runtime.
type Reply struct {
	ID string `json:"id,omitempty"`
	Result
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool {
	return r.Error != ""
}
