package loader

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

// DatasetSource tags records mapped from the Hugging Face dataset.
const DatasetSource = "huggingface_deepakjoshi1606"

// Row is one raw dataset record keyed by column header.
type Row map[string]any

var dateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006", "01/02/2006"}

var vpaDomains = []string{"paytm", "phonepe", "gpay", "amazonpay", "mobikwik", "ybl", "ibl", "axl"}

var domainBanks = map[string]string{
	"paytm":     "PAYTM",
	"phonepe":   "YESBANK",
	"gpay":      "AXIS",
	"amazonpay": "AXIS",
	"mobikwik":  "YESBANK",
	"ybl":       "YES",
	"ibl":       "IDBI",
	"axl":       "AXIS",
}

var majorBanks = []string{"HDFC", "ICICI", "SBI", "AXIS", "KOTAK"}

type issueRule struct {
	keywords    []string
	failureType domain.FailureType
}

// Checked in order; the first group with a matching keyword wins.
var issueRules = []issueRule{
	{[]string{"insufficient", "balance", "fund"}, domain.FailureInsufficientFunds},
	{[]string{"invalid", "vpa", "id", "account"}, domain.FailureInvalidVPA},
	{[]string{"network", "timeout", "connection", "connectivity"}, domain.FailureNetworkIssue},
	{[]string{"server", "bank", "downtime", "maintenance"}, domain.FailureBankServerError},
	{[]string{"limit", "exceeded", "maximum"}, domain.FailureDailyLimitExceeded},
	{[]string{"pin", "auth", "verification", "otp"}, domain.FailureAuthenticationFailed},
}

var errorCodes = map[domain.FailureType][]string{
	domain.FailureInsufficientFunds:    {"U30", "E001", "BAL_LOW"},
	domain.FailureInvalidVPA:           {"U16", "E002", "VPA_INVALID"},
	domain.FailureNetworkIssue:         {"U69", "E003", "NET_TIMEOUT"},
	domain.FailureBankServerError:      {"U28", "E004", "BANK_DOWN"},
	domain.FailureDailyLimitExceeded:   {"U53", "E005", "LIMIT_EXCEED"},
	domain.FailureAuthenticationFailed: {"U17", "E008", "AUTH_FAIL"},
}

var fallbackErrorCodes = []string{"U99", "E999"}

var (
	nonAmountChars = regexp.MustCompile(`[^\d.]`)
	nonNameChars   = regexp.MustCompile(`[^a-z0-9]`)
)

// Mapper turns raw dataset rows into transactions. Randomised fallbacks draw
// from a seeded source, so a mapper is deterministic for a given seed and clock.
// Map is safe for concurrent use.
type Mapper struct {
	mu    sync.Mutex
	rand  *rand.Rand
	nowFn func() time.Time
}

// NewMapper returns a mapper seeded with seed; a zero seed uses the clock.
func NewMapper(seed int64, nowFn func() time.Time) *Mapper {
	if nowFn == nil {
		nowFn = time.Now
	}
	if seed == 0 {
		seed = nowFn().UnixNano()
	}
	return &Mapper{rand: rand.New(rand.NewSource(seed)), nowFn: nowFn}
}

// Map converts the row at index into a normalized transaction.
func (m *Mapper) Map(index int, row Row) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn().UTC()

	issueType := stringField(row, "Issue Type")
	description := stringField(row, "Description")
	resolution := stringField(row, "Resolution")

	failureType := MapIssueType(issueType)
	status := StatusFromResolution(resolution)

	senderVPA := m.vpa(stringField(row, "Sender"))
	receiverVPA := m.vpa(stringField(row, "Receiver"))

	tx := domain.Transaction{
		TransactionID: fmt.Sprintf("UPI%s%06d", now.Format("20060102"), index),
		Timestamp:     m.timestamp(row["Date"], row["Time"], now),
		Amount:        m.amount(row["Amount"]),
		SenderVPA:     senderVPA,
		ReceiverVPA:   receiverVPA,
		SenderBank:    m.bank(senderVPA),
		ReceiverBank:  m.bank(receiverVPA),
		Status:        status,
		Metadata: map[string]any{
			"original_issue_type":  issueType,
			"original_description": description,
			"original_resolution":  resolution,
			"dataset_source":       DatasetSource,
			"processed_at":         now.Format(time.RFC3339),
		},
	}

	if status == domain.StatusFailed {
		tx.FailureType = failureType
		tx.FailureReason = description
		if _, ok := row["Description"]; !ok {
			tx.FailureReason = issueType
		}
		tx.ErrorCode = m.errorCode(failureType)
		tx.RetryCount = m.rand.Intn(4)
	}

	tx = tx.Normalize()
	if err := tx.Validate(); err != nil {
		return domain.Transaction{}, fmt.Errorf("row %d: %w", index, err)
	}
	return tx, nil
}

// MapIssueType classifies a free-text issue type. Unknown issues are network issues.
func MapIssueType(issue string) domain.FailureType {
	lower := strings.ToLower(issue)
	for _, rule := range issueRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.failureType
			}
		}
	}
	return domain.FailureNetworkIssue
}

// StatusFromResolution derives the record status from a resolution note.
func StatusFromResolution(resolution string) domain.Status {
	lower := strings.ToLower(resolution)
	switch {
	case containsAny(lower, "success", "completed", "resolved", "fixed"):
		return domain.StatusSuccess
	case containsAny(lower, "pending", "processing", "in progress"):
		return domain.StatusPending
	default:
		return domain.StatusFailed
	}
}

func (m *Mapper) timestamp(dateValue, timeValue any, now time.Time) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := today
	if s, ok := dateValue.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				day = parsed
				break
			}
		}
	}

	if s, ok := timeValue.(string); ok {
		if h, mi, sec, ok := parseClock(s); ok {
			return time.Date(day.Year(), day.Month(), day.Day(), h, mi, sec, 0, time.UTC)
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), m.rand.Intn(24), m.rand.Intn(60), m.rand.Intn(60), 0, time.UTC)
}

func parseClock(s string) (hour, minute, second int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0, 0, 0, false
	}
	values := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0, 0, false
		}
		values[i] = n
	}
	if values[0] > 23 || values[1] > 59 || values[2] > 59 || values[0] < 0 || values[1] < 0 || values[2] < 0 {
		return 0, 0, 0, false
	}
	return values[0], values[1], values[2], true
}

func (m *Mapper) amount(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		clean := nonAmountChars.ReplaceAllString(v, "")
		if clean != "" {
			if d, err := decimal.NewFromString(clean); err == nil {
				f, _ := d.Round(2).Float64()
				return f
			}
		}
	}
	return m.randomAmount()
}

func (m *Mapper) randomAmount() float64 {
	f, _ := decimal.NewFromFloat(100 + m.rand.Float64()*49900).Round(2).Float64()
	return f
}

func (m *Mapper) vpa(nameHint string) string {
	domainName := vpaDomains[m.rand.Intn(len(vpaDomains))]
	clean := nonNameChars.ReplaceAllString(strings.ToLower(nameHint), "")
	if clean == "" {
		return fmt.Sprintf("user%d@%s", 1000+m.rand.Intn(9000), domainName)
	}
	if len(clean) > 10 {
		clean = clean[:10]
	}
	return clean + "@" + domainName
}

func (m *Mapper) bank(vpa string) string {
	handle := domain.VPADomain(vpa)
	if handle == "" {
		handle = "paytm"
	}
	if bank, ok := domainBanks[handle]; ok {
		return bank
	}
	return majorBanks[m.rand.Intn(len(majorBanks))]
}

func (m *Mapper) errorCode(ft domain.FailureType) string {
	codes, ok := errorCodes[ft]
	if !ok {
		codes = fallbackErrorCodes
	}
	return codes[m.rand.Intn(len(codes))]
}

func stringField(row Row, key string) string {
	switch v := row[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
