package diagnosis

import (
	"strings"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

type keywordRule struct {
	keywords    []string
	failureType domain.FailureType
}

// Checked in order against the failure reason.
var classifyRules = []keywordRule{
	{[]string{"insufficient", "balance"}, domain.FailureInsufficientFunds},
	{[]string{"invalid", "vpa"}, domain.FailureInvalidVPA},
	{[]string{"network", "timeout"}, domain.FailureNetworkIssue},
	{[]string{"server", "bank"}, domain.FailureBankServerError},
	{[]string{"limit"}, domain.FailureDailyLimitExceeded},
	{[]string{"auth", "pin"}, domain.FailureAuthenticationFailed},
}

// Classify returns the recorded failure type, or infers one from the failure
// reason. Unknown reasons default to a network issue.
func Classify(tx domain.Transaction) domain.FailureType {
	if tx.FailureType != "" {
		return tx.FailureType
	}
	reason := strings.ToLower(tx.FailureReason)
	for _, rule := range classifyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(reason, kw) {
				return rule.failureType
			}
		}
	}
	return domain.FailureNetworkIssue
}

const generalKnowledge = "General UPI failure: Transaction could not be completed due to system issues. Please retry after some time."

var knowledgeBase = map[domain.FailureType]string{
	domain.FailureInsufficientFunds:    "Insufficient funds: User's bank account doesn't have enough balance. Solution: Check account balance, add funds, or use different payment method.",
	domain.FailureInvalidVPA:           "Incorrect VPA: Virtual Payment Address is invalid or doesn't exist. Solution: Verify recipient's UPI ID, check for typos, confirm with recipient.",
	domain.FailureNetworkIssue:         "Network timeout: Transaction failed due to poor network connectivity. Solution: Check internet connection, retry in better network area, use mobile data if on WiFi.",
	domain.FailureBankServerError:      "Bank server error: Recipient or sender bank server is temporarily unavailable. Solution: Wait 5-10 minutes and retry, contact bank if issue persists.",
	domain.FailureDailyLimitExceeded:   "Daily limit exceeded: Transaction amount exceeds daily UPI transaction limit. Solution: Check daily limits, split transaction, or use different payment method.",
	domain.FailureAuthenticationFailed: "Authentication failed: UPI PIN verification failed or expired. Solution: Re-enter correct UPI PIN, reset PIN if forgotten, ensure device security.",
}

// Knowledge returns the reference text for a failure type.
func Knowledge(ft domain.FailureType) string {
	if text, ok := knowledgeBase[ft]; ok {
		return text
	}
	return generalKnowledge
}
