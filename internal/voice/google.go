package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSynthesis is returned when the speech API produces no audio.
var ErrSynthesis = errors.New("failed to generate speech")

// Synthesizer turns text into MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, languageCode, voiceName string) ([]byte, error)
}

// GoogleOptions configures the Text-to-Speech REST client.
type GoogleOptions struct {
	APIKey  string
	BaseURL string
	// Timeout bounds each HTTP call when Client is nil.
	Timeout time.Duration
	Client  *http.Client
}

// GoogleSynthesizer calls Google Cloud Text-to-Speech with an API key.
type GoogleSynthesizer struct {
	opts GoogleOptions
}

func NewGoogleSynthesizer(opts GoogleOptions) (*GoogleSynthesizer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://texttospeech.googleapis.com/v1"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	return &GoogleSynthesizer{opts: opts}, nil
}

// DefaultVoice picks the voice for a language code.
func DefaultVoice(languageCode string) string {
	if strings.HasPrefix(strings.ToLower(languageCode), "hi") {
		return "hi-IN-Wavenet-A"
	}
	return "en-US-Wavenet-D"
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate"`
		Pitch         float64 `json:"pitch"`
	} `json:"audioConfig"`
}

func (g *GoogleSynthesizer) Synthesize(ctx context.Context, text, languageCode, voiceName string) ([]byte, error) {
	if languageCode == "" {
		languageCode = "en-US"
	}
	if voiceName == "" {
		voiceName = DefaultVoice(languageCode)
	}

	var payload synthesizeRequest
	payload.Input.Text = text
	payload.Voice.LanguageCode = languageCode
	payload.Voice.Name = voiceName
	payload.AudioConfig.AudioEncoding = "MP3"
	payload.AudioConfig.SpeakingRate = 1.0

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := g.opts.BaseURL + "/text:synthesize?key=" + url.QueryEscape(g.opts.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSynthesis, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSynthesis, err)
	}
	if out.AudioContent == "" {
		return nil, fmt.Errorf("%w: empty audio content", ErrSynthesis)
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("%w: decode audio: %v", ErrSynthesis, err)
	}
	return audio, nil
}
