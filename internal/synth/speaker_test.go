package synth_test

import (
	"testing"

	"github.com/book-expert/voice-clone-worker/internal/core"
	"github.com/book-expert/voice-clone-worker/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectSpeaker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		speakers map[string]int
		language core.Language
		want     synth.BaseSpeaker
	}{
		{"plain EN uses default speaker", englishSpeakers(), core.LanguageEN, synth.BaseSpeaker{Key: "en-default", ID: 4}},
		{"variant match", englishSpeakers(), core.LanguageENUS, synth.BaseSpeaker{Key: "en-us", ID: 0}},
		{"underscore keys normalised", englishSpeakers(), core.LanguageENIndia, synth.BaseSpeaker{Key: "en-india", ID: 2}},
		{"single speaker language", map[string]int{"ZH": 1}, core.LanguageZH, synth.BaseSpeaker{Key: "zh", ID: 1}},
		{"fallback is lexicographically first", map[string]int{"b": 7, "a": 3}, core.LanguageKR, synth.BaseSpeaker{Key: "a", ID: 3}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			for range 20 {
				got, err := synth.SelectSpeaker(testCase.speakers, testCase.language)
				require.NoError(t, err)
				assert.Equal(t, testCase.want, got)
			}
		})
	}
}

func TestSelectSpeaker_Empty(t *testing.T) {
	t.Parallel()

	_, err := synth.SelectSpeaker(nil, core.LanguageEN)
	require.ErrorIs(t, err, synth.ErrNoBaseSpeaker)
}

func TestProbeDevice_HiddenCUDA(t *testing.T) {
	t.Setenv("CUDA_VISIBLE_DEVICES", "-1")

	assert.Equal(t, synth.DeviceCPU, synth.ProbeDevice())
}
