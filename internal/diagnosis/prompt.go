package diagnosis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

var promptTemplate = template.Must(template.New("diagnosis").Parse(`
You are an expert UPI payment system analyst. Analyze the failed transaction and provide clear, actionable guidance.

Transaction Details:
{{.TransactionJSON}}

Failure Context:
Failure Type: {{.FailureType}}
Transaction Status: {{.Status}}
Banks Involved: {{.SenderBank}} → {{.ReceiverBank}}
Retry Attempts: {{.RetryCount}}
{{- if .Provenance}}
{{range .Provenance}}
{{.}}{{end}}
{{- end}}

Relevant Knowledge:
{{.Knowledge}}

Provide a comprehensive diagnosis with:
1. Clear explanation of what went wrong
2. Specific steps the user should take
3. Technical details for support teams
4. Estimated resolution time
5. Whether to contact support or retry

Be empathetic, clear, and actionable. Avoid technical jargon for user guidance.

Response format (JSON):
{
    "diagnosis": "Clear explanation of the failure",
    "user_guidance": "Simple steps for the user",
    "technical_details": "Technical explanation for support",
    "resolution_steps": ["Step 1", "Step 2", "Step 3"],
    "estimated_resolution_time": "Time estimate",
    "contact_support": true/false,
    "retry_recommended": true/false,
    "confidence_score": 0.95
}
`))

type promptData struct {
	TransactionJSON string
	FailureType     domain.FailureType
	Status          domain.Status
	SenderBank      string
	ReceiverBank    string
	RetryCount      int
	Provenance      []string
	Knowledge       string
}

// transactionDetails is the record view sent to the model.
type transactionDetails struct {
	ID            string  `json:"id"`
	Timestamp     *string `json:"timestamp"`
	Amount        float64 `json:"amount"`
	SenderVPA     string  `json:"sender_vpa"`
	ReceiverVPA   string  `json:"receiver_vpa"`
	SenderBank    string  `json:"sender_bank"`
	ReceiverBank  string  `json:"receiver_bank"`
	ErrorCode     *string `json:"error_code"`
	FailureReason *string `json:"failure_reason"`
	RetryCount    int     `json:"retry_count"`
	Status        string  `json:"status"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// BuildPrompt renders the model prompt for tx classified as ft.
func BuildPrompt(tx domain.Transaction, ft domain.FailureType) (string, error) {
	details := transactionDetails{
		ID:            tx.TransactionID,
		Amount:        tx.Amount,
		SenderVPA:     tx.SenderVPA,
		ReceiverVPA:   tx.ReceiverVPA,
		SenderBank:    tx.SenderBank,
		ReceiverBank:  tx.ReceiverBank,
		ErrorCode:     optional(tx.ErrorCode),
		FailureReason: optional(tx.FailureReason),
		RetryCount:    tx.RetryCount,
		Status:        string(tx.Status),
	}
	if !tx.Timestamp.IsZero() {
		details.Timestamp = optional(tx.Timestamp.UTC().Format(time.RFC3339))
	}
	raw, err := json.MarshalIndent(details, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode transaction details: %w", err)
	}

	data := promptData{
		TransactionJSON: string(raw),
		FailureType:     ft,
		Status:          tx.Status,
		SenderBank:      tx.SenderBank,
		ReceiverBank:    tx.ReceiverBank,
		RetryCount:      tx.RetryCount,
		Provenance:      provenanceLines(tx.Metadata),
		Knowledge:       Knowledge(ft),
	}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func provenanceLines(meta map[string]any) []string {
	if len(meta) == 0 {
		return nil
	}
	var lines []string
	for _, field := range []struct{ key, label string }{
		{"original_issue_type", "Original Issue Type"},
		{"original_description", "Original Description"},
		{"original_resolution", "Original Resolution"},
	} {
		if v, ok := meta[field.key]; ok {
			lines = append(lines, fmt.Sprintf("%s: %v", field.label, v))
		}
	}
	if _, ok := meta["dataset_source"]; ok {
		lines = append(lines, "Data Source: Real-world UPI transaction dataset")
	}
	return lines
}
