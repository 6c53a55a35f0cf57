package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vanshika/upidiag/backend/internal/metrics"
)

// AudioRoute is the URL prefix generated audio is served under.
const AudioRoute = "/static/audio/"

// DefaultMaxAge is how long generated audio is kept by Cleanup.
const DefaultMaxAge = 24 * time.Hour

// Service chains transcription and speech synthesis and manages the files
// it writes.
type Service struct {
	transcriber Transcriber
	synthesizer Synthesizer
	audioDir    string
	logger      *slog.Logger
	nowFn       func() time.Time
}

// NewService creates the audio directory when missing. Either provider may be
// nil, in which case the matching operations return ErrNotConfigured.
func NewService(transcriber Transcriber, synthesizer Synthesizer, audioDir string, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if audioDir == "" {
		audioDir = filepath.Join("static", "audio")
	}
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &Service{
		transcriber: transcriber,
		synthesizer: synthesizer,
		audioDir:    audioDir,
		logger:      logger.With("component", "voice"),
		nowFn:       time.Now,
	}, nil
}

// WithClock overrides the clock used by Cleanup.
func (s *Service) WithClock(nowFn func() time.Time) *Service {
	s.nowFn = nowFn
	return s
}

func (s *Service) AudioDir() string { return s.audioDir }

// Transcribe returns the transcript of audio. An empty transcript is
// reported as ErrNoSpeech.
func (s *Service) Transcribe(ctx context.Context, audio io.Reader, language string) (Transcript, error) {
	if s.transcriber == nil {
		return Transcript{}, ErrNotConfigured
	}
	tr, err := s.transcriber.Transcribe(ctx, audio, language)
	if err != nil {
		metrics.TranscriptionOutcomes.WithLabelValues(outcomeOf(err)).Inc()
		s.logger.Error("transcription failed", "error", err)
		return Transcript{}, err
	}
	if strings.TrimSpace(tr.Text) == "" {
		metrics.TranscriptionOutcomes.WithLabelValues("no_speech").Inc()
		return Transcript{}, ErrNoSpeech
	}
	metrics.TranscriptionOutcomes.WithLabelValues("completed").Inc()
	s.logger.Info("transcription completed", "confidence", tr.Confidence, "language", tr.LanguageCode)
	return tr, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrUpload):
		return "upload_failed"
	case errors.Is(err, ErrTranscriptionTimeout):
		return "timeout"
	default:
		return "failed"
	}
}

// TextToSpeech synthesizes text as-is and returns the written file name.
func (s *Service) TextToSpeech(ctx context.Context, text, languageCode, voiceName string) (string, error) {
	if s.synthesizer == nil {
		return "", ErrNotConfigured
	}
	audio, err := s.synthesizer.Synthesize(ctx, text, languageCode, voiceName)
	if err != nil {
		s.logger.Error("speech synthesis failed", "error", err)
		return "", err
	}

	name := "tts_" + strings.ReplaceAll(uuid.NewString(), "-", "") + ".mp3"
	if err := os.WriteFile(filepath.Join(s.audioDir, name), audio, 0o644); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	s.logger.Info("speech generated", "file", name, "bytes", len(audio))
	return name, nil
}

// Synthesize cleans text for speech before synthesizing it.
func (s *Service) Synthesize(ctx context.Context, text, languageCode string) (string, error) {
	return s.TextToSpeech(ctx, CleanForSpeech(text), languageCode, "")
}

// AudioURL is the public path of a generated file.
func (s *Service) AudioURL(filename string) string {
	return AudioRoute + filename
}

// Cleanup removes regular files in the audio directory last modified more
// than maxAge ago and returns how many were removed.
func (s *Service) Cleanup(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	entries, err := os.ReadDir(s.audioDir)
	if err != nil {
		return 0, fmt.Errorf("read audio dir: %w", err)
	}

	now := s.nowFn()
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(s.audioDir, entry.Name())); err != nil {
			s.logger.Warn("remove audio file", "file", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("audio cleanup", "removed", removed)
	}
	return removed, nil
}

var (
	headerPattern = regexp.MustCompile(`#{1,6}\s*`)
	boldPattern   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern = regexp.MustCompile(`\*(.*?)\*`)
	listPattern   = regexp.MustCompile(`(?m)^\s*[-*+]\s*`)
	spacePattern  = regexp.MustCompile(`\s+`)
	pauseReplacer = strings.NewReplacer(".", ". ", ",", ", ", ":", ": ")
)

// CleanForSpeech strips markdown and pads punctuation so the synthesized
// voice pauses naturally.
func CleanForSpeech(text string) string {
	text = headerPattern.ReplaceAllString(text, "")
	text = boldPattern.ReplaceAllString(text, "$1")
	text = italicPattern.ReplaceAllString(text, "$1")
	text = listPattern.ReplaceAllString(text, "")
	text = pauseReplacer.Replace(text)
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}

// SpeechLanguage maps a transcription language to a synthesis locale.
func SpeechLanguage(language string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(language)), "hi") {
		return "hi-IN"
	}
	return "en-US"
}

type Language struct {
	Code    string   `json:"code"`
	Name    string   `json:"name"`
	Display string   `json:"display,omitempty"`
	Voices  []string `json:"voices,omitempty"`
}

type Languages struct {
	SpeechToText []Language `json:"speech_to_text"`
	TextToSpeech []Language `json:"text_to_speech"`
}

func SupportedLanguages() Languages {
	return Languages{
		SpeechToText: []Language{
			{Code: "en", Name: "English", Display: "English"},
			{Code: "hi", Name: "Hindi", Display: "हिंदी"},
		},
		TextToSpeech: []Language{
			{Code: "en-US", Name: "English (US)", Voices: []string{"en-US-Wavenet-D", "en-US-Wavenet-A"}},
			{Code: "hi-IN", Name: "Hindi (India)", Voices: []string{"hi-IN-Wavenet-A", "hi-IN-Wavenet-B"}},
		},
	}
}
