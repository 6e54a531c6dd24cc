package moderation

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

func TestModerator_Censor(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	dictionary := []string{"estafa", "idiota", "Ladrón"}
	mod, err := NewModerator(dictionary, replacementChar, log)
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "Matched word is reported in its dictionary form",
			input:    "Esto es una estafa",
			expected: "Esto es una ******",
			words:    []string{"estafa"},
		},
		{
			name:     "Every occurrence is reported in order",
			input:    "idiota, estafa, idiota",
			expected: "******, ******, ******",
			words:    []string{"idiota", "estafa", "idiota"},
		},
		{
			name:     "Leet speak is masked and reported normalized",
			input:    "Puro 3st@f4 aquí",
			expected: "Puro ****** aquí",
			words:    []string{"estafa"},
		},
		{
			name:     "Punctuated letters mask the whole span",
			input:    "¡Eres un I.D.I.O.T.A!",
			expected: "¡Eres un ***********!",
			words:    []string{"idiota"},
		},
		{
			name:     "Accented dictionary word is lowercased",
			input:    "Un LADRÓN se llevó la caja",
			expected: "Un ****** se llevó la caja",
			words:    []string{"ladrón"},
		},
		{
			name:     "Match inside a longer word is masked",
			input:    "Bidiota",
			expected: "B******",
			words:    []string{"idiota"},
		},
		{
			name:     "Nothing to censor",
			input:    "Gracias por la donación",
			expected: "Gracias por la donación",
			words:    nil,
		},
		{
			name:     "Only noise",
			input:    "¿...?",
			expected: "¿...?",
			words:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			content, words := mod.Censor(tt.input)
			req.Equal(tt.expected, content)
			req.Equal(tt.words, words)
		})
	}
}

func TestNewModerator_DropsNoiseOnlyPatterns(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Given patterns that normalise to nothing next to a real one
	mod, err := NewModerator([]string{"...", ",,,", "", "¿?", "estafa"}, replacementChar, log)
	req.NoError(err)

	// Then only the real pattern is built
	req.Contains(buf.String(), `"msg":"Moderator ready"`)
	req.Contains(buf.String(), `"patterns":1`)

	// And punctuation is never censored
	content, words := mod.Censor("Hola ... ¿qué tal?")
	req.Equal("Hola ... ¿qué tal?", content)
	req.Nil(words)

	content, words = mod.Censor("es una estafa")
	req.Equal("es una ******", content)
	req.Equal([]string{"estafa"}, words)
}

func TestModerator_CensorKeepsRuneLength(t *testing.T) {
	req := require.New(t)
	mod, err := NewModerator([]string{"idiota"}, '#', logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)

	input := "Ñandú idiota"
	content, _ := mod.Censor(input)
	req.Equal("Ñandú ######", content)
	req.Equal(len([]rune(input)), len([]rune(content)))
}
