package text_test

import (
	"testing"

	"github.com/book-expert/voice-clone-worker/internal/text"
	"github.com/stretchr/testify/assert"
)

func TestNormalizer_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "plain text untouched", input: "Hello world", expected: "Hello world"},
		{name: "line breaks and tabs", input: "Hello\r\n\tworld\n\nagain", expected: "Hello world again"},
		{name: "surrounding space", input: "   padded  ", expected: "padded"},
		{name: "smart quotes", input: "“Quoted” and ‘single’", expected: `"Quoted" and 'single'`},
		{name: "dashes", input: "one—two–three‒four", expected: "one-two-three-four"},
		{name: "ellipsis", input: "Wait…", expected: "Wait..."},
		{name: "non-breaking space", input: "ten kilometres", expected: "ten kilometres"},
		{name: "non-latin text kept", input: "你好，世界", expected: "你好，世界"},
	}

	normalizer := text.NewNormalizer()

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, normalizer.Normalize(testCase.input))
		})
	}
}
