package mimetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"track.wav", "audio/wav"},
		{"track.WAV", "audio/wav"},
		{"mixdown.mp3", "audio/mpeg"},
		{"stems.flac", "audio/flac"},
		{"cover.png", "image/png"},
		{"session.zip", "application/zip"},
		{"notes.txt", "text/plain"},
		{"unknown.xyz", Fallback},
		{"noextension", Fallback},
		{"", Fallback},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.filename))
		})
	}
}
