package synth

import (
	"errors"
	"fmt"
	"slices"

	"github.com/book-expert/voice-clone-worker/internal/core"
)

// ErrNoBaseSpeaker is returned when the model offers no base speaker at all.
var ErrNoBaseSpeaker = errors.New("no base speaker available")

// BaseSpeaker is the one base speaker a job is synthesized with.
type BaseSpeaker struct {
	// Key is the normalised speaker key, also the embedding file basename.
	Key string
	ID  int
}

// SelectSpeaker deterministically picks one base speaker for language: the speaker whose
// normalised key matches the language variant, else the lexicographically first key.
func SelectSpeaker(speakers map[string]int, language core.Language) (BaseSpeaker, error) {
	if len(speakers) == 0 {
		return BaseSpeaker{}, fmt.Errorf("%w for %s", ErrNoBaseSpeaker, language)
	}

	normalized := make(map[string]int, len(speakers))
	for key, id := range speakers {
		normalizedKey := core.NormalizeSpeakerKey(key)
		if existing, seen := normalized[normalizedKey]; seen && existing < id {
			continue
		}

		normalized[normalizedKey] = id
	}

	want := language.SpeakerKey()
	if id, ok := normalized[want]; ok {
		return BaseSpeaker{Key: want, ID: id}, nil
	}

	keys := make([]string, 0, len(normalized))
	for key := range normalized {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	return BaseSpeaker{Key: keys[0], ID: normalized[keys[0]]}, nil
}
