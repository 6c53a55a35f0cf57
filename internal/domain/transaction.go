package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the settlement state of a UPI transaction.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
)

// ParseStatus accepts any casing of a known status.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusPending:
		return true
	}
	return false
}

// FailureType classifies why a transaction did not complete.
type FailureType string

const (
	FailureInsufficientFunds    FailureType = "insufficient_funds"
	FailureIncorrectDetails     FailureType = "incorrect_details"
	FailureNetworkIssue         FailureType = "network_issue"
	FailureBankServerError      FailureType = "bank_server_error"
	FailureDailyLimitExceeded   FailureType = "daily_limit_exceeded"
	FailureInvalidVPA           FailureType = "invalid_vpa"
	FailureTimeout              FailureType = "timeout"
	FailureAuthenticationFailed FailureType = "authentication_failed"
)

// FailureTypes lists every failure category in declaration order.
var FailureTypes = []FailureType{
	FailureInsufficientFunds,
	FailureIncorrectDetails,
	FailureNetworkIssue,
	FailureBankServerError,
	FailureDailyLimitExceeded,
	FailureInvalidVPA,
	FailureTimeout,
	FailureAuthenticationFailed,
}

// ParseFailureType accepts any casing of a known failure type.
func ParseFailureType(s string) (FailureType, bool) {
	ft := FailureType(strings.ToLower(strings.TrimSpace(s)))
	return ft, ft.Valid()
}

// Valid reports whether f is one of the known failure types.
func (f FailureType) Valid() bool {
	for _, known := range FailureTypes {
		if f == known {
			return true
		}
	}
	return false
}

// ErrInvalidTransaction is returned by Validate.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Transaction is the single record type stored by the service.
//
// Metadata is provenance only (original dataset fields, source tags) and is
// never consulted by analytics or classification rules.
type Transaction struct {
	TransactionID string         `bson:"transaction_id" json:"transaction_id"`
	Timestamp     time.Time      `bson:"timestamp" json:"timestamp"`
	Amount        float64        `bson:"amount" json:"amount"`
	SenderVPA     string         `bson:"sender_vpa" json:"sender_vpa"`
	ReceiverVPA   string         `bson:"receiver_vpa" json:"receiver_vpa"`
	SenderBank    string         `bson:"sender_bank" json:"sender_bank"`
	ReceiverBank  string         `bson:"receiver_bank" json:"receiver_bank"`
	Status        Status         `bson:"status" json:"status"`
	FailureReason string         `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	FailureType   FailureType    `bson:"failure_type,omitempty" json:"failure_type,omitempty"`
	ErrorCode     string         `bson:"error_code,omitempty" json:"error_code,omitempty"`
	RetryCount    int            `bson:"retry_count" json:"retry_count"`
	Metadata      map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Diagnosis     *Diagnosis     `bson:"diagnosis,omitempty" json:"diagnosis,omitempty"`
	CreatedAt     *time.Time     `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Normalize returns a copy where failure details only survive on failed
// transactions and counters are non-negative.
func (t Transaction) Normalize() Transaction {
	t.Status = Status(strings.ToLower(strings.TrimSpace(string(t.Status))))
	if t.Status != StatusFailed {
		t.FailureReason = ""
		t.FailureType = ""
		t.ErrorCode = ""
	}
	if t.RetryCount < 0 {
		t.RetryCount = 0
	}
	if !t.Timestamp.IsZero() {
		t.Timestamp = t.Timestamp.UTC()
	}
	return t
}

// Validate reports missing or malformed required fields.
func (t Transaction) Validate() error {
	switch {
	case strings.TrimSpace(t.TransactionID) == "":
		return fmt.Errorf("%w: transaction_id is required", ErrInvalidTransaction)
	case strings.TrimSpace(t.SenderVPA) == "":
		return fmt.Errorf("%w: sender_vpa is required", ErrInvalidTransaction)
	case strings.TrimSpace(t.ReceiverVPA) == "":
		return fmt.Errorf("%w: receiver_vpa is required", ErrInvalidTransaction)
	case !t.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransaction, t.Status)
	case t.Amount < 0:
		return fmt.Errorf("%w: amount must be non-negative", ErrInvalidTransaction)
	case t.FailureType != "" && !t.FailureType.Valid():
		return fmt.Errorf("%w: unknown failure_type %q", ErrInvalidTransaction, t.FailureType)
	}
	return nil
}

// VPADomain returns the handle part after '@', or "" when absent.
func VPADomain(vpa string) string {
	_, domain, ok := strings.Cut(vpa, "@")
	if !ok {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(domain))
}
