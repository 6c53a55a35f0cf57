package server

import (
	"strings"
	"time"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

type transactionRequest struct {
	TransactionID string         `json:"transaction_id" validate:"required"`
	Timestamp     *time.Time     `json:"timestamp"`
	Amount        float64        `json:"amount" validate:"gte=0"`
	SenderVPA     string         `json:"sender_vpa" validate:"required"`
	ReceiverVPA   string         `json:"receiver_vpa" validate:"required"`
	SenderBank    string         `json:"sender_bank"`
	ReceiverBank  string         `json:"receiver_bank"`
	Status        string         `json:"status" validate:"required,txn_status"`
	FailureReason string         `json:"failure_reason"`
	FailureType   string         `json:"failure_type" validate:"omitempty,failure_type"`
	ErrorCode     string         `json:"error_code"`
	RetryCount    int            `json:"retry_count" validate:"gte=0"`
	Metadata      map[string]any `json:"metadata"`
}

func (req transactionRequest) toDomain() domain.Transaction {
	tx := domain.Transaction{
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		SenderVPA:     req.SenderVPA,
		ReceiverVPA:   req.ReceiverVPA,
		SenderBank:    req.SenderBank,
		ReceiverBank:  req.ReceiverBank,
		Status:        domain.Status(req.Status),
		FailureReason: req.FailureReason,
		FailureType:   domain.FailureType(strings.ToLower(strings.TrimSpace(req.FailureType))),
		ErrorCode:     req.ErrorCode,
		RetryCount:    req.RetryCount,
		Metadata:      req.Metadata,
	}
	if req.Timestamp != nil {
		tx.Timestamp = *req.Timestamp
	}
	return tx.Normalize()
}

type statusUpdateRequest struct {
	Status    string            `json:"status" validate:"required"`
	Diagnosis *domain.Diagnosis `json:"diagnosis"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	ID      string `json:"id,omitempty"`
}

type dataResponse struct {
	Status  string `json:"status"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

type searchResponse struct {
	Status  string             `json:"status"`
	Data    []domain.SearchHit `json:"data"`
	Query   string             `json:"query"`
	Filters map[string]any     `json:"filters"`
	Count   int                `json:"count"`
	Message string             `json:"message"`
}

type transcriptResponse struct {
	Status        string  `json:"status"`
	Transcript    string  `json:"transcript"`
	Confidence    float64 `json:"confidence"`
	LanguageCode  string  `json:"language_code"`
	AudioDuration float64 `json:"audio_duration"`
	Message       string  `json:"message"`
}

type voiceDiagnosisResponse struct {
	Status           string           `json:"status"`
	Transcript       string           `json:"transcript"`
	Confidence       float64          `json:"confidence"`
	Diagnosis        domain.Diagnosis `json:"diagnosis"`
	VoiceResponseURL *string          `json:"voice_response_url"`
	Message          string           `json:"message"`
}

type speechResponse struct {
	Status   string `json:"status"`
	AudioURL string `json:"audio_url"`
	Filename string `json:"filename"`
	Message  string `json:"message"`
}

type datasetInfo struct {
	DatasetName string            `json:"dataset_name"`
	Description string            `json:"description"`
	Source      string            `json:"source"`
	Fields      map[string]string `json:"fields"`
	Mapping     map[string]any    `json:"mapping"`
	Status      string            `json:"status"`
}

var datasetFields = map[string]string{
	"Transaction ID":  "Unique identifier for each transaction",
	"Date":            "Transaction date",
	"Time":            "Transaction time",
	"Issue Type":      "Type of failure/issue encountered",
	"Description":     "Detailed description of the issue",
	"Amount":          "Transaction amount",
	"Sender":          "Sender information",
	"Receiver":        "Receiver information",
	"Sender UPI ID":   "Sender's UPI identifier",
	"Receiver UPI ID": "Receiver's UPI identifier",
	"Sender Bank":     "Sender's bank",
	"Receiver Bank":   "Receiver's bank",
	"Resolution":      "Resolution status/description",
}

var issueTypeMapping = map[string]domain.FailureType{
	"insufficient funds":    domain.FailureInsufficientFunds,
	"invalid vpa":           domain.FailureInvalidVPA,
	"network issues":        domain.FailureNetworkIssue,
	"bank server error":     domain.FailureBankServerError,
	"daily limit exceeded":  domain.FailureDailyLimitExceeded,
	"authentication failed": domain.FailureAuthenticationFailed,
}
