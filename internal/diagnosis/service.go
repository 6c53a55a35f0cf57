package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vanshika/upidiag/backend/internal/domain"
	"github.com/vanshika/upidiag/backend/internal/metrics"
)

// Confidence scores of the two degraded paths.
const (
	ParseFallbackConfidence = 0.5
	CallFallbackConfidence  = 0.3
)

// Outcome labels.
const (
	OutcomeModel         = "llm"
	OutcomeParseFallback = "parse_fallback"
	OutcomeCallFallback  = "call_fallback"
)

var errNotConfigured = errors.New("diagnosis model is not configured")

// reply is the JSON contract the model is asked to follow.
type reply struct {
	Diagnosis               string   `json:"diagnosis" validate:"required"`
	UserGuidance            string   `json:"user_guidance" validate:"required"`
	TechnicalDetails        string   `json:"technical_details" validate:"required"`
	ResolutionSteps         []string `json:"resolution_steps" validate:"required,min=1"`
	EstimatedResolutionTime string   `json:"estimated_resolution_time" validate:"required"`
	ContactSupport          *bool    `json:"contact_support" validate:"required"`
	RetryRecommended        *bool    `json:"retry_recommended" validate:"required"`
	ConfidenceScore         *float64 `json:"confidence_score" validate:"required,gte=0,lte=1"`
}

// Service produces a diagnosis for every transaction it is given. Model
// failures never surface as errors; they yield one of two fixed fallbacks.
type Service struct {
	completer Completer
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService constructs the diagnosis service. A nil completer always yields
// the call-failure fallback.
func NewService(completer Completer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		completer: completer,
		validate:  validator.New(),
		logger:    logger.With("component", "diagnosis"),
	}
}

// Ready reports whether a model is configured.
func (s *Service) Ready() bool { return s.completer != nil }

func (s *Service) Diagnose(ctx context.Context, tx domain.Transaction) domain.Diagnosis {
	ft := Classify(tx)

	if s.completer == nil {
		return s.callFallback(tx, errNotConfigured)
	}

	prompt, err := BuildPrompt(tx, ft)
	if err != nil {
		return s.callFallback(tx, err)
	}

	text, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return s.callFallback(tx, err)
	}

	raw, ok := extractJSON(text)
	if !ok {
		return s.parseFallback(tx, ft)
	}
	var r reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		s.logger.Warn("model reply is not valid json", "transaction_id", tx.TransactionID, "error", err)
		return s.parseFallback(tx, ft)
	}
	if err := s.validate.Struct(r); err != nil {
		return s.callFallback(tx, fmt.Errorf("incomplete model reply: %w", err))
	}

	metrics.DiagnosisOutcomes.WithLabelValues(OutcomeModel).Inc()
	return withResolution(domain.Diagnosis{
		TransactionID:           tx.TransactionID,
		FailureType:             ft,
		Diagnosis:               r.Diagnosis,
		UserGuidance:            r.UserGuidance,
		TechnicalDetails:        r.TechnicalDetails,
		ResolutionSteps:         r.ResolutionSteps,
		EstimatedResolutionTime: r.EstimatedResolutionTime,
		ContactSupport:          *r.ContactSupport,
		RetryRecommended:        *r.RetryRecommended,
		ConfidenceScore:         *r.ConfidenceScore,
	}, tx)
}

// extractJSON returns the text between the first '{' and the last '}'.
func extractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

func (s *Service) parseFallback(tx domain.Transaction, ft domain.FailureType) domain.Diagnosis {
	metrics.DiagnosisOutcomes.WithLabelValues(OutcomeParseFallback).Inc()
	return withResolution(domain.Diagnosis{
		TransactionID:           tx.TransactionID,
		FailureType:             ft,
		Diagnosis:               "Transaction failed due to system error",
		UserGuidance:            "Please try again in a few minutes",
		TechnicalDetails:        "LLM response parsing failed",
		ResolutionSteps:         []string{"Wait 5 minutes", "Retry transaction", "Contact support if issue persists"},
		EstimatedResolutionTime: "5-10 minutes",
		ContactSupport:          false,
		RetryRecommended:        true,
		ConfidenceScore:         ParseFallbackConfidence,
	}, tx)
}

func (s *Service) callFallback(tx domain.Transaction, err error) domain.Diagnosis {
	metrics.DiagnosisOutcomes.WithLabelValues(OutcomeCallFallback).Inc()
	s.logger.Error("diagnosis failed", "transaction_id", tx.TransactionID, "error", err)
	return domain.Diagnosis{
		TransactionID:    tx.TransactionID,
		FailureType:      domain.FailureNetworkIssue,
		Diagnosis:        fmt.Sprintf("Unable to analyze transaction failure: %v", err),
		UserGuidance:     "Please try your transaction again. If the problem continues, contact your bank.",
		TechnicalDetails: fmt.Sprintf("Diagnosis service error: %v", err),
		ResolutionSteps: []string{
			"Wait 2-3 minutes",
			"Check your internet connection",
			"Retry the transaction",
			"Contact support if issue persists",
		},
		EstimatedResolutionTime: "2-5 minutes",
		ContactSupport:          false,
		RetryRecommended:        true,
		ConfidenceScore:         CallFallbackConfidence,
	}
}

// withResolution appends the dataset's original resolution to the technical
// details when one was recorded.
func withResolution(d domain.Diagnosis, tx domain.Transaction) domain.Diagnosis {
	v, ok := tx.Metadata["original_resolution"]
	if !ok || v == nil {
		return d
	}
	resolution := strings.TrimSpace(fmt.Sprint(v))
	switch strings.ToLower(resolution) {
	case "", "nan", "none":
		return d
	}
	d.TechnicalDetails += "\n\nOriginal Resolution Status: " + resolution
	return d
}
