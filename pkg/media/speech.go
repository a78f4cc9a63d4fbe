package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultElevenLabsBaseURL = "https://api.elevenlabs.io"

// ElevenLabs converts text to mp3 speech.
type ElevenLabs struct {
	APIKey  string
	BaseURL string
	Model   string
	Format  string
	Client  *http.Client
}

func NewElevenLabs(apiKey string) *ElevenLabs {
	return &ElevenLabs{
		APIKey:  apiKey,
		BaseURL: DefaultElevenLabsBaseURL,
		Model:   "eleven_multilingual_v2",
		Format:  "mp3_22050_32",
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed"`
}

// Speak returns the synthesised audio bytes.
func (e *ElevenLabs) Speak(ctx context.Context, voiceID, text string) ([]byte, error) {
	if e.APIKey == "" {
		return nil, errors.New("elevenlabs api key is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("nothing to speak")
	}
	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": e.Model,
		"voice_settings": voiceSettings{
			Stability:       0,
			SimilarityBoost: 1,
			Style:           0,
			UseSpeakerBoost: true,
			Speed:           1,
		},
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		strings.TrimRight(e.BaseURL, "/"), url.PathEscape(voiceID), url.QueryEscape(e.Format))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := httpClient(e.Client, 90*time.Second).Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevenlabs: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) > MaxUploadBytes {
		return nil, ErrTooLarge
	}
	return audio, nil
}
