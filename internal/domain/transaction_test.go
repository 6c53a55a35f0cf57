package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_DropsFailureDetailsUnlessFailed(t *testing.T) {
	base := Transaction{
		TransactionID: "TXN000001",
		Timestamp:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Amount:        250,
		SenderVPA:     "asha@paytm",
		ReceiverVPA:   "store@ybl",
		FailureReason: "Insufficient balance in account",
		FailureType:   FailureInsufficientFunds,
		ErrorCode:     "E001",
	}

	for _, status := range []Status{StatusSuccess, StatusPending, "SUCCESS"} {
		tx := base
		tx.Status = status
		out := tx.Normalize()

		raw, err := json.Marshal(out)
		require.NoError(t, err)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(raw, &fields))
		assert.NotContains(t, fields, "failure_type", "status %s", status)
		assert.NotContains(t, fields, "failure_reason", "status %s", status)
		assert.NotContains(t, fields, "error_code", "status %s", status)
	}

	failed := base
	failed.Status = StatusFailed
	out := failed.Normalize()
	assert.Equal(t, FailureInsufficientFunds, out.FailureType)
	assert.Equal(t, "E001", out.ErrorCode)
}

func TestNormalize_ClampsRetryCount(t *testing.T) {
	tx := Transaction{Status: StatusFailed, RetryCount: -2}
	assert.Equal(t, 0, tx.Normalize().RetryCount)
}

func TestValidate(t *testing.T) {
	valid := Transaction{
		TransactionID: "TXN1",
		SenderVPA:     "a@paytm",
		ReceiverVPA:   "b@ybl",
		Status:        StatusFailed,
		FailureType:   FailureTimeout,
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Transaction){
		"missing id":       func(tx *Transaction) { tx.TransactionID = " " },
		"missing sender":   func(tx *Transaction) { tx.SenderVPA = "" },
		"missing receiver": func(tx *Transaction) { tx.ReceiverVPA = "" },
		"bad status":       func(tx *Transaction) { tx.Status = "settled" },
		"negative amount":  func(tx *Transaction) { tx.Amount = -1 },
		"bad failure type": func(tx *Transaction) { tx.FailureType = "cosmic_rays" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tx := valid
			mutate(&tx)
			err := tx.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTransaction))
		})
	}
}

func TestParseHelpers(t *testing.T) {
	ft, ok := ParseFailureType(" Network_Issue ")
	assert.True(t, ok)
	assert.Equal(t, FailureNetworkIssue, ft)

	_, ok = ParseFailureType("unknown")
	assert.False(t, ok)

	st, ok := ParseStatus("FAILED")
	assert.True(t, ok)
	assert.Equal(t, StatusFailed, st)

	assert.Len(t, FailureTypes, 8)
}

func TestVPADomain(t *testing.T) {
	assert.Equal(t, "okaxis", VPADomain("ravi@OkAxis"))
	assert.Equal(t, "", VPADomain("no-handle"))
}

func TestSuccessRatePercent(t *testing.T) {
	assert.Equal(t, 0.0, SuccessRatePercent(0, 0))
	assert.InDelta(t, 75.0, SuccessRatePercent(3, 4), 1e-9)
}
