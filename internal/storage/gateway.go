package storage

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

// Gateway is the sole writer of transaction records and the executor of the
// fixed analytics plans.
type Gateway interface {
	EnsureIndexes(ctx context.Context) error
	InsertOne(ctx context.Context, tx domain.Transaction) error
	BulkInsert(ctx context.Context, txs []domain.Transaction) (BulkResult, error)
	Find(ctx context.Context, filter Filter) ([]domain.Transaction, error)
	FindByID(ctx context.Context, id string) (domain.Transaction, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status, diagnosis *domain.Diagnosis) error
	Count(ctx context.Context) (int64, error)
	Aggregate(ctx context.Context, plan Plan, out any) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	Mode() string
}

// Options configures a Mongo-backed gateway.
type Options struct {
	URI                    string
	Database               string
	Collection             string
	ServerSelectionTimeout time.Duration
	OperationTimeout       time.Duration
	MaxPoolSize            uint64
	MinPoolSize            uint64
}

var (
	// ErrMissingURI indicates the Mongo connection string is not provided.
	ErrMissingURI = errors.New("mongodb URI is required")
	// ErrNotFound is returned when no record matches the given id.
	ErrNotFound = errors.New("transaction not found")
	// ErrDuplicate is returned when a transaction_id already exists.
	ErrDuplicate = errors.New("duplicate transaction_id")
)

// BulkResult counts the outcome of an unordered bulk insert.
type BulkResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Add accumulates other into r.
func (r *BulkResult) Add(other BulkResult) {
	r.Inserted += other.Inserted
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

const (
	defaultFindLimit = 100
	maxFindLimit     = 1000
)

// Filter narrows Find results.
type Filter struct {
	Status      domain.Status
	FailureType domain.FailureType
	Search      string
	Start       *time.Time
	End         *time.Time
	Skip        int
	Limit       int
}

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = defaultFindLimit
	}
	if f.Limit > maxFindLimit {
		f.Limit = maxFindLimit
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

var findSearchFields = []string{"transaction_id", "sender_vpa", "receiver_vpa", "failure_reason"}

func (f Filter) document() bson.M {
	doc := bson.M{}
	if f.Status != "" {
		doc["status"] = f.Status
	}
	if f.FailureType != "" {
		doc["failure_type"] = f.FailureType
	}
	if tr := timeRange(f.Start, f.End); tr != nil {
		doc["timestamp"] = tr
	}
	if f.Search != "" {
		doc["$or"] = regexClauses(f.Search, findSearchFields)
	}
	return doc
}

func (f Filter) matches(tx domain.Transaction) bool {
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.FailureType != "" && tx.FailureType != f.FailureType {
		return false
	}
	if f.Start != nil && tx.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && tx.Timestamp.After(*f.End) {
		return false
	}
	if f.Search != "" {
		return containsFold(tx.TransactionID, f.Search) ||
			containsFold(tx.SenderVPA, f.Search) ||
			containsFold(tx.ReceiverVPA, f.Search) ||
			containsFold(tx.FailureReason, f.Search)
	}
	return true
}

// stamped sets created_at and updated_at when the caller left them empty.
func stamped(tx domain.Transaction, now time.Time) domain.Transaction {
	now = now.UTC()
	if tx.CreatedAt == nil {
		tx.CreatedAt = &now
	}
	if tx.UpdatedAt == nil {
		tx.UpdatedAt = &now
	}
	return tx
}

func timeRange(start, end *time.Time) bson.M {
	if start == nil && end == nil {
		return nil
	}
	tr := bson.M{}
	if start != nil {
		tr["$gte"] = start.UTC()
	}
	if end != nil {
		tr["$lte"] = end.UTC()
	}
	return tr
}

// substringRegex matches term literally and case-insensitively.
func substringRegex(term string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
}

func regexClauses(term string, fields []string) bson.A {
	clauses := make(bson.A, 0, len(fields))
	for _, field := range fields {
		clauses = append(clauses, bson.M{field: substringRegex(term)})
	}
	return clauses
}

func containsFold(value, term string) bool {
	if value == "" {
		return false
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(term))
}
