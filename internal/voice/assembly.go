package voice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-audio/audio"
)

// directivePattern matches the first embedded playback directive in a reply.
var directivePattern = regexp.MustCompile(`(?i)\[PLAY_SONG:\s*([^\]\r\n]+)\]`)

// stageDirections matches asterisk-delimited markup the model was told not
// to emit. Stripped before synthesis so the voice never reads it aloud.
var stageDirections = regexp.MustCompile(`\*[^*]*\*`)

// assetNamePattern is the only shape a resolved track name may take; anything
// else could escape the asset directory.
var assetNamePattern = regexp.MustCompile(`^[a-z0-9_\-]+$`)

// Assembly converts reply text into one audio buffer, splicing pre-recorded
// tracks around synthesized speech when a directive is present.
type Assembly struct {
	synth    Synthesizer
	assetDir string
	voice    string
	timeout  time.Duration
	log      *slog.Logger
}

func NewAssembly(synth Synthesizer, assetDir, voice string, timeout time.Duration, log *slog.Logger) *Assembly {
	return &Assembly{
		synth:    synth,
		assetDir: assetDir,
		voice:    voice,
		timeout:  timeout,
		log:      log.With(slog.String("component", "voice-assembly")),
	}
}

// synthesize bounds every backend call; a hung synthesizer fails the call
// instead of stalling the turn. timeout 0 means unbounded.
func (a *Assembly) synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.synth.Synthesize(ctx, text, voice)
}

// Render produces audio for a reply. The second return value reports whether
// audio was produced; synthesis failure is never fatal, the text reply
// stands on its own.
func (a *Assembly) Render(ctx context.Context, reply string) ([]byte, bool) {
	loc := directivePattern.FindStringSubmatchIndex(reply)
	if loc == nil {
		return a.Speak(ctx, reply, "")
	}

	name := reply[loc[2]:loc[3]]
	assetPath, ok := a.resolveAsset(name)
	if !ok {
		a.log.Warn("jukebox asset not found, falling back to speech", slog.String("track", name))
		return a.Speak(ctx, reply, "")
	}

	out, err := a.jukebox(ctx, reply[:loc[0]], assetPath, reply[loc[1]:])
	if err != nil {
		a.log.Warn("jukebox splice failed, falling back to speech", slog.String("error", err.Error()))
		return a.Speak(ctx, reply, "")
	}
	return out, true
}

// Speak is standard mode: synthesize the whole text, no splicing.
func (a *Assembly) Speak(ctx context.Context, text, voice string) ([]byte, bool) {
	clean := strings.TrimSpace(stageDirections.ReplaceAllString(text, ""))
	if clean == "" {
		return nil, false
	}
	if voice == "" {
		voice = a.voice
	}
	out, err := a.synthesize(ctx, clean, voice)
	if err != nil {
		a.log.Warn("speech synthesis failed", slog.String("error", err.Error()))
		return nil, false
	}
	return out, true
}

// resolveAsset maps a directive name to a file inside the asset directory.
// The normalized name must not be able to address anything outside it.
func (a *Assembly) resolveAsset(name string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	if !assetNamePattern.MatchString(normalized) {
		return "", false
	}

	path := filepath.Join(a.assetDir, normalized+".wav")
	if rel, err := filepath.Rel(a.assetDir, path); err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// jukebox synthesizes the intro and outro around the asset and splices the
// segments, in order, into one buffer.
func (a *Assembly) jukebox(ctx context.Context, intro, assetPath, outro string) ([]byte, error) {
	asset, err := os.ReadFile(assetPath)
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}

	var segments [][]byte
	if clean := strings.TrimSpace(stageDirections.ReplaceAllString(intro, "")); clean != "" {
		speech, err := a.synthesize(ctx, clean, a.voice)
		if err != nil {
			return nil, fmt.Errorf("synthesize intro: %w", err)
		}
		segments = append(segments, speech)
	}
	segments = append(segments, asset)
	if clean := strings.TrimSpace(stageDirections.ReplaceAllString(outro, "")); clean != "" {
		speech, err := a.synthesize(ctx, clean, a.voice)
		if err != nil {
			return nil, fmt.Errorf("synthesize outro: %w", err)
		}
		segments = append(segments, speech)
	}

	return splice(segments)
}

// splice concatenates WAV buffers into one. All segments must share a sample
// format; a partial or mixed-format result is never returned.
func splice(segments [][]byte) ([]byte, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("nothing to splice")
	}
	if len(segments) == 1 {
		return segments[0], nil
	}

	first, err := decodeWAV(segments[0])
	if err != nil {
		return nil, err
	}
	combined := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: first.Format.NumChannels, SampleRate: first.Format.SampleRate},
		Data:           append([]int(nil), first.Data...),
		SourceBitDepth: pcmBitDepth,
	}

	for _, seg := range segments[1:] {
		buf, err := decodeWAV(seg)
		if err != nil {
			return nil, err
		}
		if buf.Format.SampleRate != combined.Format.SampleRate || buf.Format.NumChannels != combined.Format.NumChannels {
			return nil, fmt.Errorf("sample format mismatch: %dHz/%dch vs %dHz/%dch",
				buf.Format.SampleRate, buf.Format.NumChannels,
				combined.Format.SampleRate, combined.Format.NumChannels)
		}
		combined.Data = append(combined.Data, buf.Data...)
	}

	return encodeWAV(combined)
}
