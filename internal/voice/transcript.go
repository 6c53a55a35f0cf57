package voice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

var (
	amountPattern = regexp.MustCompile(`(?:amount|rupees?|rs\.?)\s*(\d+(?:\.\d{2})?)`)
	vpaPattern    = regexp.MustCompile(`(\w+@\w+)`)
)

// Checked in order; the first keyword found in the transcript wins.
var spokenFailures = []struct {
	keyword     string
	failureType domain.FailureType
}{
	{"insufficient", domain.FailureInsufficientFunds},
	{"balance", domain.FailureInsufficientFunds},
	{"network", domain.FailureNetworkIssue},
	{"timeout", domain.FailureNetworkIssue},
	{"invalid", domain.FailureInvalidVPA},
	{"wrong", domain.FailureInvalidVPA},
	{"server", domain.FailureBankServerError},
	{"limit", domain.FailureDailyLimitExceeded},
	{"pin", domain.FailureAuthenticationFailed},
	{"password", domain.FailureAuthenticationFailed},
}

// TransactionFromTranscript builds the failed record a spoken complaint
// describes. Unmentioned fields get fixed placeholder values.
func TransactionFromTranscript(transcript string, now time.Time) domain.Transaction {
	lower := strings.ToLower(transcript)

	amount := 100.0
	if m := amountPattern.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			amount = v
		}
	}

	sender := "user@paytm"
	if m := vpaPattern.FindStringSubmatch(lower); m != nil {
		sender = m[1]
	}

	reason := "Transaction failed"
	var failureType domain.FailureType
	for _, f := range spokenFailures {
		if strings.Contains(lower, f.keyword) {
			failureType = f.failureType
			reason = fmt.Sprintf("Transaction failed due to %s issue", f.keyword)
			break
		}
	}

	return domain.Transaction{
		TransactionID: "VOICE_" + now.Format("20060102_150405"),
		Timestamp:     now.UTC(),
		Amount:        amount,
		SenderVPA:     sender,
		ReceiverVPA:   "merchant@phonepe",
		SenderBank:    "HDFC",
		ReceiverBank:  "ICICI",
		Status:        domain.StatusFailed,
		FailureReason: reason,
		FailureType:   failureType,
		ErrorCode:     "E999",
		Metadata: map[string]any{
			"source":     "voice_input",
			"transcript": transcript,
		},
	}
}
