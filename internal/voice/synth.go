// Package voice turns reply text into a single audio buffer: plain speech
// synthesis, or jukebox mode where synthesized speech is spliced around a
// pre-recorded track.
package voice

import "context"

// Synthesizer is the contract for producing a complete WAV buffer from text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}
