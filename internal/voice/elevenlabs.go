package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// defaultVoiceID is the stock voice used when neither the request nor the
// config names one.
const defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

const elevenLabsEndpoint = "https://api.elevenlabs.io/v1/text-to-speech"

type elevenLabsSynth struct {
	apiKey     string
	voice      string
	sampleRate int
	channels   int
	client     *http.Client
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// NewElevenLabsSynth builds a backend over the ElevenLabs TTS API, requesting
// raw PCM and wrapping it into a WAV container. A missing API key is a
// configuration error surfaced at construction.
func NewElevenLabsSynth(apiKey, voice string, sampleRate, channels int) (Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs api key not configured")
	}
	return &elevenLabsSynth{
		apiKey:     apiKey,
		voice:      voice,
		sampleRate: sampleRate,
		channels:   channels,
		client:     http.DefaultClient,
	}, nil
}

func (e *elevenLabsSynth) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = e.voice
	}
	if voice == "" {
		voice = defaultVoiceID
	}

	body, err := json.Marshal(elevenLabsRequest{Text: text, ModelID: "eleven_monolingual_v1"})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s?output_format=pcm_%d", elevenLabsEndpoint, voice, e.sampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("elevenlabs returned status %s", resp.Status)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read elevenlabs response: %w", err)
	}
	return pcmToWAV(pcm, e.sampleRate, e.channels)
}
