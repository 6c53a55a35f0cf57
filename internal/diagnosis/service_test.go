package diagnosis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

type stubCompleter struct {
	reply  string
	err    error
	prompt string
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.reply, s.err
}

func newTestService(c Completer) *Service {
	return NewService(c, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func failedTx() domain.Transaction {
	return domain.Transaction{
		TransactionID: "UPI20240101000001",
		Timestamp:     time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Amount:        1500,
		SenderVPA:     "asha@paytm",
		ReceiverVPA:   "kirana@ybl",
		SenderBank:    "PAYTM",
		ReceiverBank:  "YES",
		Status:        domain.StatusFailed,
		FailureReason: "Insufficient balance in account",
		ErrorCode:     "U30",
		RetryCount:    1,
	}
}

const goodReply = `Here is the analysis:
{
  "diagnosis": "The account balance was too low.",
  "user_guidance": "Add funds and retry.",
  "technical_details": "U30 returned by issuer.",
  "resolution_steps": ["Check balance", "Add money", "Retry"],
  "estimated_resolution_time": "Immediate",
  "contact_support": false,
  "retry_recommended": true,
  "confidence_score": 0.92
}
Thanks.`

func TestDiagnose_ModelReply(t *testing.T) {
	stub := &stubCompleter{reply: goodReply}
	tx := failedTx()
	tx.Metadata = map[string]any{"original_resolution": "Refunded", "dataset_source": "hf"}

	d := newTestService(stub).Diagnose(context.Background(), tx)

	assert.Equal(t, tx.TransactionID, d.TransactionID)
	assert.Equal(t, domain.FailureInsufficientFunds, d.FailureType)
	assert.Equal(t, 0.92, d.ConfidenceScore)
	assert.Equal(t, []string{"Check balance", "Add money", "Retry"}, d.ResolutionSteps)
	assert.Equal(t, "U30 returned by issuer.\n\nOriginal Resolution Status: Refunded", d.TechnicalDetails)
	assert.True(t, d.RetryRecommended)

	assert.Contains(t, stub.prompt, "Failure Type: insufficient_funds")
	assert.Contains(t, stub.prompt, "Banks Involved: PAYTM → YES")
	assert.Contains(t, stub.prompt, "Data Source: Real-world UPI transaction dataset")
	assert.Contains(t, stub.prompt, Knowledge(domain.FailureInsufficientFunds))
	assert.Contains(t, stub.prompt, `"id": "UPI20240101000001"`)
}

func TestDiagnose_CallFailure(t *testing.T) {
	d := newTestService(&stubCompleter{err: errors.New("connection reset")}).Diagnose(context.Background(), failedTx())

	assert.Equal(t, CallFallbackConfidence, d.ConfidenceScore)
	assert.Equal(t, domain.FailureNetworkIssue, d.FailureType)
	assert.True(t, d.RetryRecommended)
	assert.False(t, d.ContactSupport)
	assert.Equal(t, "Unable to analyze transaction failure: connection reset", d.Diagnosis)
	assert.Len(t, d.ResolutionSteps, 4)
	assert.Equal(t, "2-5 minutes", d.EstimatedResolutionTime)
}

func TestDiagnose_UnparseableReply(t *testing.T) {
	for name, text := range map[string]string{
		"no braces":   "I could not determine the cause.",
		"broken json": `{"diagnosis": "x", "contact_support": maybe}`,
		"reversed":    "} nothing here {",
	} {
		t.Run(name, func(t *testing.T) {
			d := newTestService(&stubCompleter{reply: text}).Diagnose(context.Background(), failedTx())
			assert.Equal(t, ParseFallbackConfidence, d.ConfidenceScore)
			assert.Equal(t, domain.FailureInsufficientFunds, d.FailureType)
			assert.Equal(t, "LLM response parsing failed", d.TechnicalDetails)
			assert.True(t, d.RetryRecommended)
		})
	}
}

func TestDiagnose_IncompleteReplyIsCallFailure(t *testing.T) {
	reply := `{"diagnosis": "Low balance", "user_guidance": "Add funds"}`
	d := newTestService(&stubCompleter{reply: reply}).Diagnose(context.Background(), failedTx())
	assert.Equal(t, CallFallbackConfidence, d.ConfidenceScore)
	assert.True(t, strings.HasPrefix(d.Diagnosis, "Unable to analyze transaction failure:"))
}

func TestDiagnose_NoCompleter(t *testing.T) {
	svc := newTestService(nil)
	require.False(t, svc.Ready())
	d := svc.Diagnose(context.Background(), failedTx())
	assert.Equal(t, CallFallbackConfidence, d.ConfidenceScore)
}

func TestClassify(t *testing.T) {
	cases := map[string]domain.FailureType{
		"Insufficient balance":     domain.FailureInsufficientFunds,
		"Invalid VPA":              domain.FailureInvalidVPA,
		"Network timeout occurred": domain.FailureNetworkIssue,
		"Bank server down":         domain.FailureBankServerError,
		"Daily limit reached":      domain.FailureDailyLimitExceeded,
		"Wrong PIN entered":        domain.FailureAuthenticationFailed,
		"":                         domain.FailureNetworkIssue,
	}
	for reason, want := range cases {
		assert.Equal(t, want, Classify(domain.Transaction{FailureReason: reason}), reason)
	}

	recorded := domain.Transaction{FailureType: domain.FailureTimeout, FailureReason: "insufficient"}
	assert.Equal(t, domain.FailureTimeout, Classify(recorded))
}

func TestKnowledge_General(t *testing.T) {
	assert.Equal(t, generalKnowledge, Knowledge(domain.FailureTimeout))
	assert.Equal(t, generalKnowledge, Knowledge(domain.FailureIncorrectDetails))
}

func TestBuildPrompt_OmitsProvenanceWithoutMetadata(t *testing.T) {
	prompt, err := BuildPrompt(failedTx(), domain.FailureInsufficientFunds)
	require.NoError(t, err)
	assert.NotContains(t, prompt, "Original Issue Type")
	assert.Contains(t, prompt, "Retry Attempts: 1\n\nRelevant Knowledge:")
}
