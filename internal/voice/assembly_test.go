package voice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
)

const testRate = 22050

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSynth produces one second of audio whose sample value is the text
// length, so outputs are deterministic and segments are tellable apart.
type fakeSynth struct {
	fail  bool
	calls []string
}

func (f *fakeSynth) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	f.calls = append(f.calls, text)
	if f.fail {
		return nil, errors.New("synth down")
	}
	data := make([]int, testRate)
	for i := range data {
		data[i] = len(text)
	}
	return encodeWAV(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testRate},
		Data:           data,
		SourceBitDepth: pcmBitDepth,
	})
}

func silenceWAV(t *testing.T, seconds float64, sampleRate int) []byte {
	t.Helper()
	out, err := encodeWAV(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, int(seconds*float64(sampleRate))),
		SourceBitDepth: pcmBitDepth,
	})
	if err != nil {
		t.Fatalf("encode test wav: %v", err)
	}
	return out
}

func writeAsset(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
}

func durationSeconds(t *testing.T, wavBytes []byte) float64 {
	t.Helper()
	buf, err := decodeWAV(wavBytes)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return float64(len(buf.Data)) / float64(buf.Format.NumChannels) / float64(buf.Format.SampleRate)
}

func TestStandardModeStripsStageDirections(t *testing.T) {
	synth := &fakeSynth{}
	a := NewAssembly(synth, t.TempDir(), "", 0, newLogger())

	out, ok := a.Render(context.Background(), "*sighs dramatically* Fine. You win.")
	if !ok || len(out) == 0 {
		t.Fatal("expected audio")
	}
	if len(synth.calls) != 1 || synth.calls[0] != "Fine. You win." {
		t.Fatalf("stage directions not stripped: %q", synth.calls)
	}
}

func TestStandardModeEmptyAfterStripping(t *testing.T) {
	synth := &fakeSynth{}
	a := NewAssembly(synth, t.TempDir(), "", 0, newLogger())

	out, ok := a.Render(context.Background(), "*just sighs*")
	if ok || out != nil {
		t.Fatal("expected no audio for empty cleaned text")
	}
	if len(synth.calls) != 0 {
		t.Fatal("synthesizer must not be called for empty text")
	}
}

func TestSynthesisFailureMeansNoAudio(t *testing.T) {
	a := NewAssembly(&fakeSynth{fail: true}, t.TempDir(), "", 0, newLogger())
	out, ok := a.Render(context.Background(), "Say something.")
	if ok || out != nil {
		t.Fatal("synthesis failure must yield an explicit no-audio result")
	}
}

func TestJukeboxSpliceOrderAndDuration(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "anthem.wav", silenceWAV(t, 2.0, testRate))

	synth := &fakeSynth{}
	a := NewAssembly(synth, dir, "", 0, newLogger())

	out, ok := a.Render(context.Background(), "Rise! [PLAY_SONG: Anthem] Now back to work.")
	if !ok {
		t.Fatal("expected spliced audio")
	}

	// 1s intro + 2s asset + 1s outro.
	if d := durationSeconds(t, out); math.Abs(d-4.0) > 0.01 {
		t.Fatalf("expected ~4.0s output, got %.3fs", d)
	}

	buf, err := decodeWAV(out)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	intro, asset, outro := buf.Data[0], buf.Data[testRate+testRate/2], buf.Data[len(buf.Data)-1]
	if intro != len("Rise!") {
		t.Fatalf("intro segment not first: sample %d", intro)
	}
	if asset != 0 {
		t.Fatalf("asset segment not in the middle: sample %d", asset)
	}
	if outro != len("Now back to work.") {
		t.Fatalf("outro segment not last: sample %d", outro)
	}
}

func TestJukeboxSkipsEmptyIntro(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "anthem.wav", silenceWAV(t, 2.0, testRate))

	synth := &fakeSynth{}
	a := NewAssembly(synth, dir, "", 0, newLogger())

	out, ok := a.Render(context.Background(), "[PLAY_SONG: anthem] Dance!")
	if !ok {
		t.Fatal("expected audio")
	}
	if d := durationSeconds(t, out); math.Abs(d-3.0) > 0.01 {
		t.Fatalf("expected ~3.0s (asset + outro), got %.3fs", d)
	}
	if len(synth.calls) != 1 || synth.calls[0] != "Dance!" {
		t.Fatalf("expected only the outro synthesized, got %q", synth.calls)
	}
}

func TestJukeboxFallbackOnMissingAsset(t *testing.T) {
	reply := "Sure! [PLAY_SONG: missing_track] Enjoy."

	synth := &fakeSynth{}
	a := NewAssembly(synth, t.TempDir(), "", 0, newLogger())
	got, ok := a.Render(context.Background(), reply)
	if !ok {
		t.Fatal("fallback must still produce audio")
	}

	// Fallback is standard synthesis of the full original reply, directive
	// included.
	want, err := (&fakeSynth{}).Synthesize(context.Background(), reply, "")
	if err != nil {
		t.Fatalf("reference synthesis: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("fallback output must match standard synthesis of the original reply")
	}
	if len(synth.calls) != 1 || synth.calls[0] != reply {
		t.Fatalf("expected one full-reply synthesis, got %q", synth.calls)
	}
}

func TestJukeboxFallbackOnFormatMismatch(t *testing.T) {
	dir := t.TempDir()
	// Asset at a different sample rate than the synthesized speech.
	writeAsset(t, dir, "anthem.wav", silenceWAV(t, 2.0, 8000))

	synth := &fakeSynth{}
	a := NewAssembly(synth, dir, "", 0, newLogger())

	reply := "Rise! [PLAY_SONG: anthem] Onward."
	got, ok := a.Render(context.Background(), reply)
	if !ok {
		t.Fatal("fallback must still produce audio")
	}
	want, err := (&fakeSynth{}).Synthesize(context.Background(), reply, "")
	if err != nil {
		t.Fatalf("reference synthesis: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("format mismatch must fall back to standard synthesis of the full reply")
	}
}

func TestResolveAssetRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembly(&fakeSynth{}, dir, "", 0, newLogger())

	for _, name := range []string{
		"../secrets",
		"..",
		"a/b",
		"a\\b",
		"track.wav../..",
		"",
	} {
		if _, ok := a.resolveAsset(name); ok {
			t.Fatalf("name %q must not resolve", name)
		}
	}
}

func TestResolveAssetNormalizesName(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "regime_anthem.wav", silenceWAV(t, 0.1, testRate))
	a := NewAssembly(&fakeSynth{}, dir, "", 0, newLogger())

	path, ok := a.resolveAsset("  Regime Anthem ")
	if !ok {
		t.Fatal("expected normalized name to resolve")
	}
	if filepath.Base(path) != "regime_anthem.wav" {
		t.Fatalf("unexpected asset path %q", path)
	}
}

func TestOnlyFirstDirectiveRecognized(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "anthem.wav", silenceWAV(t, 1.0, testRate))
	writeAsset(t, dir, "ballad.wav", silenceWAV(t, 1.0, testRate))

	synth := &fakeSynth{}
	a := NewAssembly(synth, dir, "", 0, newLogger())

	_, ok := a.Render(context.Background(), "[PLAY_SONG: anthem] and then [PLAY_SONG: ballad] done")
	if !ok {
		t.Fatal("expected audio")
	}
	// The second directive stays inside the outro text.
	if len(synth.calls) != 1 || synth.calls[0] != "and then [PLAY_SONG: ballad] done" {
		t.Fatalf("unexpected synth calls: %q", synth.calls)
	}
}

func TestPCMRoundTrip(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80, 0x01, 0x00}
	wavBytes, err := pcmToWAV(pcm, testRate, 1)
	if err != nil {
		t.Fatalf("pcm to wav: %v", err)
	}
	buf, err := decodeWAV(wavBytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []int{0, 32767, -32768, 1}
	if len(buf.Data) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(buf.Data))
	}
	for i, v := range want {
		if buf.Data[i] != v {
			t.Fatalf("sample %d: expected %d, got %d", i, v, buf.Data[i])
		}
	}
}

// deadlineSynth records whether the synthesis context carried a deadline.
type deadlineSynth struct {
	fakeSynth
	hadDeadline bool
	deadline    time.Time
}

func (d *deadlineSynth) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	d.deadline, d.hadDeadline = ctx.Deadline()
	return d.fakeSynth.Synthesize(ctx, text, voice)
}

func TestSynthesisCallCarriesTimeout(t *testing.T) {
	synth := &deadlineSynth{}
	a := NewAssembly(synth, t.TempDir(), "", 45*time.Second, newLogger())

	if _, ok := a.Render(context.Background(), "obey"); !ok {
		t.Fatal("expected audio")
	}
	if !synth.hadDeadline {
		t.Fatal("synthesis context carries no deadline")
	}
	if remaining := time.Until(synth.deadline); remaining > 45*time.Second {
		t.Fatalf("deadline %v exceeds the configured timeout", remaining)
	}
}

func TestHungSynthesizerFailsTheCall(t *testing.T) {
	a := NewAssembly(blockingSynth{}, t.TempDir(), "", 20*time.Millisecond, newLogger())

	start := time.Now()
	out, ok := a.Speak(context.Background(), "still there?", "")
	if ok || out != nil {
		t.Fatal("expected no audio from a hung backend")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("hung backend stalled the call for %v", elapsed)
	}
}

// blockingSynth never returns until the context does.
type blockingSynth struct{}

func (blockingSynth) Synthesize(ctx context.Context, _, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
