package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

const duplicateKeyCode = 11000

// NewMongoGateway connects to MongoDB and verifies the primary is reachable.
func NewMongoGateway(ctx context.Context, opts Options) (*MongoGateway, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}

	clientOpts := options.Client().ApplyURI(opts.URI)
	if opts.ServerSelectionTimeout > 0 {
		clientOpts.SetServerSelectionTimeout(opts.ServerSelectionTimeout)
	}
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(opts.MinPoolSize)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("verify mongodb connectivity: %w", err)
	}

	timeout := opts.OperationTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &MongoGateway{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		timeout:    timeout,
	}, nil
}

// MongoGateway stores transactions in a single MongoDB collection.
type MongoGateway struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

func (g *MongoGateway) Mode() string { return "mongodb" }

func (g *MongoGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

// EnsureIndexes creates the unique id index plus the query indexes. It is
// idempotent.
func (g *MongoGateway) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	single := func(field string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}}
	}
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "transaction_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		single("timestamp"),
		single("status"),
		single("failure_type"),
		single("sender_vpa"),
		single("receiver_vpa"),
		{Keys: bson.D{{Key: "timestamp", Value: -1}, {Key: "status", Value: 1}}},
	}
	if _, err := g.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (g *MongoGateway) InsertOne(ctx context.Context, tx domain.Transaction) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	tx = stamped(tx, time.Now())
	if _, err := g.collection.InsertOne(ctx, tx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, tx.TransactionID)
		}
		return fmt.Errorf("insert transaction %s: %w", tx.TransactionID, err)
	}
	return nil
}

// BulkInsert writes txs unordered. Duplicate ids are counted as skipped and
// never abort the remaining writes.
func (g *MongoGateway) BulkInsert(ctx context.Context, txs []domain.Transaction) (BulkResult, error) {
	if len(txs) == 0 {
		return BulkResult{}, nil
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	now := time.Now()
	docs := make([]any, len(txs))
	for i := range txs {
		docs[i] = stamped(txs[i], now)
	}

	_, err := g.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return BulkResult{Inserted: len(docs)}, nil
	}

	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) || len(bulkErr.WriteErrors) == 0 {
		return BulkResult{Failed: len(docs)}, fmt.Errorf("bulk insert: %w", err)
	}

	res := BulkResult{Inserted: len(docs) - len(bulkErr.WriteErrors)}
	for _, we := range bulkErr.WriteErrors {
		if we.Code == duplicateKeyCode {
			res.Skipped++
		} else {
			res.Failed++
		}
	}
	if bulkErr.WriteConcernError != nil {
		return res, fmt.Errorf("bulk insert write concern: %w", bulkErr.WriteConcernError)
	}
	return res, nil
}

func (g *MongoGateway) Find(ctx context.Context, filter Filter) ([]domain.Transaction, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	filter = filter.normalized()
	findOpts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(filter.Skip)).
		SetLimit(int64(filter.Limit)).
		SetProjection(bson.M{"_id": 0})

	cur, err := g.collection.Find(ctx, filter.document(), findOpts)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	defer cur.Close(ctx)

	txs := make([]domain.Transaction, 0)
	if err := cur.All(ctx, &txs); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return txs, nil
}

func (g *MongoGateway) FindByID(ctx context.Context, id string) (domain.Transaction, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	var tx domain.Transaction
	err := g.collection.FindOne(ctx, bson.M{"transaction_id": id},
		options.FindOne().SetProjection(bson.M{"_id": 0})).Decode(&tx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Transaction{}, ErrNotFound
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("find transaction %s: %w", id, err)
	}
	return tx, nil
}

// UpdateStatus sets status and updated_at, and the diagnosis when given.
// Matching an unchanged record is still a success.
func (g *MongoGateway) UpdateStatus(ctx context.Context, id string, status domain.Status, diagnosis *domain.Diagnosis) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	set := bson.M{"status": status, "updated_at": time.Now().UTC()}
	if diagnosis != nil {
		set["diagnosis"] = diagnosis
	}

	res, err := g.collection.UpdateOne(ctx, bson.M{"transaction_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *MongoGateway) Count(ctx context.Context) (int64, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	n, err := g.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// Aggregate runs plan on the server and decodes the rows into out, which
// must be a pointer to a slice.
func (g *MongoGateway) Aggregate(ctx context.Context, plan Plan, out any) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	cur, err := g.collection.Aggregate(ctx, plan.pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return fmt.Errorf("aggregate %s: %w", plan.name, err)
	}
	defer cur.Close(ctx)

	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", plan.name, err)
	}
	return nil
}

func (g *MongoGateway) Ping(ctx context.Context) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	return g.client.Ping(ctx, readpref.Primary())
}

func (g *MongoGateway) Close(ctx context.Context) error {
	return g.client.Disconnect(ctx)
}
