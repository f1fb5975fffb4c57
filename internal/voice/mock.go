package voice

import (
	"context"
	"strings"
	"time"

	"github.com/go-audio/audio"
)

type mockSynth struct {
	sampleRate int
	channels   int
}

// NewMockSynth produces silence with a duration proportional to the text
// length, for development and tests without a speech backend.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, text, _ string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}

	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	duration := time.Duration(words) * 80 * time.Millisecond
	frames := int(duration.Seconds() * float64(m.sampleRate))

	return encodeWAV(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: m.channels, SampleRate: m.sampleRate},
		Data:           make([]int, frames*m.channels),
		SourceBitDepth: pcmBitDepth,
	})
}
