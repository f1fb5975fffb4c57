package voice

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// seekableBuffer is an in-memory io.WriteSeeker for the wav encoder, which
// needs to rewind and patch the RIFF header after writing samples.
type seekableBuffer struct {
	data []byte
	pos  int
}

func (b *seekableBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	b.pos = int(next)
	return next, nil
}

func (b *seekableBuffer) Bytes() []byte { return b.data }

const pcmBitDepth = 16

// encodeWAV serializes a PCM buffer into a complete WAV container.
func encodeWAV(buf *audio.IntBuffer) ([]byte, error) {
	out := &seekableBuffer{}
	enc := wav.NewEncoder(out, buf.Format.SampleRate, pcmBitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return out.Bytes(), nil
}

// decodeWAV parses a WAV container into its full PCM buffer.
func decodeWAV(data []byte) (*audio.IntBuffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, errors.New("decode wav: missing format")
	}
	return buf, nil
}

// pcmToWAV wraps raw little-endian 16-bit PCM into a WAV container.
func pcmToWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("pcm byte stream not 16-bit aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return encodeWAV(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: pcmBitDepth,
	})
}
