package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrNotConfigured        = errors.New("voice provider is not configured")
	ErrUpload               = errors.New("failed to upload audio file")
	ErrTranscriptionFailed  = errors.New("failed to transcribe audio")
	ErrTranscriptionTimeout = errors.New("transcription timed out")
	ErrNoSpeech             = errors.New("no speech detected in audio")
)

// Transcript is the completed result of a transcription job.
type Transcript struct {
	Text          string  `json:"transcript"`
	Confidence    float64 `json:"confidence"`
	LanguageCode  string  `json:"language_code"`
	AudioDuration float64 `json:"audio_duration"`
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, language string) (Transcript, error)
}

const defaultRequestTimeout = 30 * time.Second

// AssemblyAIOptions configures the AssemblyAI client.
type AssemblyAIOptions struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	MaxAttempts  int
	// Timeout bounds each HTTP call when Client is nil.
	Timeout time.Duration
	Client  *http.Client
}

// AssemblyAITranscriber uploads audio, submits a transcription job and polls
// it until it completes, fails or runs out of attempts.
type AssemblyAITranscriber struct {
	opts AssemblyAIOptions
}

func NewAssemblyAITranscriber(opts AssemblyAIOptions) (*AssemblyAITranscriber, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.assemblyai.com/v2"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 60
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	return &AssemblyAITranscriber{opts: opts}, nil
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL       string `json:"audio_url"`
	LanguageCode   string `json:"language_code"`
	Punctuate      bool   `json:"punctuate"`
	FormatText     bool   `json:"format_text"`
	AutoHighlights bool   `json:"auto_highlights"`
}

type transcriptJob struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	Text          string  `json:"text"`
	Error         string  `json:"error"`
	Confidence    float64 `json:"confidence"`
	LanguageCode  string  `json:"language_code"`
	AudioDuration float64 `json:"audio_duration"`
}

func (t *AssemblyAITranscriber) Transcribe(ctx context.Context, audio io.Reader, language string) (Transcript, error) {
	if language == "" {
		language = "en"
	}

	var up uploadResponse
	if err := t.do(ctx, http.MethodPost, "/upload", "application/octet-stream", audio, &up); err != nil {
		return Transcript{}, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	if up.UploadURL == "" {
		return Transcript{}, fmt.Errorf("%w: response carried no upload_url", ErrUpload)
	}

	body, err := json.Marshal(transcriptRequest{
		AudioURL:       up.UploadURL,
		LanguageCode:   language,
		Punctuate:      true,
		FormatText:     true,
		AutoHighlights: true,
	})
	if err != nil {
		return Transcript{}, err
	}
	var job transcriptJob
	if err := t.do(ctx, http.MethodPost, "/transcript", "application/json", bytes.NewReader(body), &job); err != nil {
		return Transcript{}, fmt.Errorf("%w: submit job: %v", ErrTranscriptionFailed, err)
	}
	if job.ID == "" {
		return Transcript{}, fmt.Errorf("%w: job id missing", ErrTranscriptionFailed)
	}

	return t.poll(ctx, job.ID, language)
}

func (t *AssemblyAITranscriber) poll(ctx context.Context, id, language string) (Transcript, error) {
	for attempt := 0; attempt < t.opts.MaxAttempts; attempt++ {
		var job transcriptJob
		if err := t.do(ctx, http.MethodGet, "/transcript/"+id, "", nil, &job); err != nil {
			return Transcript{}, fmt.Errorf("%w: poll job %s: %v", ErrTranscriptionFailed, id, err)
		}
		switch job.Status {
		case "completed":
			lang := job.LanguageCode
			if lang == "" {
				lang = language
			}
			return Transcript{
				Text:          job.Text,
				Confidence:    job.Confidence,
				LanguageCode:  lang,
				AudioDuration: job.AudioDuration,
			}, nil
		case "error":
			msg := job.Error
			if msg == "" {
				msg = "unknown error"
			}
			return Transcript{}, fmt.Errorf("%w: %s", ErrTranscriptionFailed, msg)
		}

		if attempt == t.opts.MaxAttempts-1 {
			break
		}
		timer := time.NewTimer(t.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Transcript{}, ctx.Err()
		case <-timer.C:
		}
	}
	return Transcript{}, ErrTranscriptionTimeout
}

func (t *AssemblyAITranscriber) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, t.opts.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", t.opts.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := t.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
