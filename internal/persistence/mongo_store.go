package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mhersta/conveyor/pkg/api"
)

// MongoStore implements ExecutionStore and DeadLetterSink on top of MongoDB.
//
// Each execution is stored as one document: the fields the store filters on
// (workflow, tenant, status, next retry time) are lifted to top-level keys,
// and the full execution is kept as a JSON payload so the document layout
// never has to chase the Go struct.
type MongoStore struct {
	executions  *mongo.Collection
	deadLetters *mongo.Collection
}

var _ ExecutionStore = (*MongoStore)(nil)

var _ DeadLetterSink = (*MongoStore)(nil)

type mongoExecutionDoc struct {
	ID          string `bson:"_id"`
	WorkflowID  string `bson:"workflow_id"`
	TenantID    string `bson:"tenant_id"`
	Status      string `bson:"status"`
	NextRetryAt int64  `bson:"next_retry_at"` // unix nanos; 0 when unset
	Payload     []byte `bson:"payload"`
}

type mongoDeadLetterDoc struct {
	ExecutionID string `bson:"_id"`
	CreatedAt   int64  `bson:"created_at"`
}

// NewMongoStore creates a MongoStore using the given database. Collections
// "executions" and "dead_letters" are used; an index supporting due-retry
// scans is created best-effort.
func NewMongoStore(db *mongo.Database) *MongoStore {
	s := &MongoStore{
		executions:  db.Collection("executions"),
		deadLetters: db.Collection("dead_letters"),
	}

	// Index creation failures are not fatal; queries still work unindexed.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = s.executions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_retry_at", Value: 1}},
	})

	return s
}

func mongoDoc(exec *api.Execution) (*mongoExecutionDoc, error) {
	payload, err := EncodeJSON(exec)
	if err != nil {
		return nil, err
	}

	var nextRetry int64
	if exec.NextRetryAt != nil {
		nextRetry = exec.NextRetryAt.UnixNano()
	}

	return &mongoExecutionDoc{
		ID:          exec.ID,
		WorkflowID:  exec.WorkflowID,
		TenantID:    exec.TenantID,
		Status:      string(exec.Status),
		NextRetryAt: nextRetry,
		Payload:     payload,
	}, nil
}

func (s *MongoStore) CreateExecution(ctx context.Context, exec *api.Execution) error {
	doc, err := mongoDoc(exec)
	if err != nil {
		return err
	}
	_, err = s.executions.InsertOne(ctx, doc)
	return err
}

func (s *MongoStore) UpdateExecution(ctx context.Context, exec *api.Execution) error {
	doc, err := mongoDoc(exec)
	if err != nil {
		return err
	}

	res, err := s.executions.ReplaceOne(ctx, bson.M{"_id": exec.ID}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return api.ErrExecutionNotFound
	}
	return nil
}

func (s *MongoStore) GetExecution(ctx context.Context, id string) (*api.Execution, error) {
	var doc mongoExecutionDoc
	err := s.executions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, api.ErrExecutionNotFound
		}
		return nil, err
	}
	return DecodeJSON[*api.Execution](doc.Payload)
}

func (s *MongoStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*api.Execution, error) {
	query := bson.M{}
	if filter.WorkflowID != "" {
		query["workflow_id"] = filter.WorkflowID
	}
	if filter.TenantID != "" {
		query["tenant_id"] = filter.TenantID
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	return s.find(ctx, query, opts)
}

func (s *MongoStore) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*api.Execution, error) {
	query := bson.M{
		"status":        string(api.StatusFailedPendingRetry),
		"next_retry_at": bson.M{"$gt": 0, "$lte": now.UnixNano()},
	}

	opts := options.Find().SetSort(bson.D{{Key: "next_retry_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, query, opts)
}

func (s *MongoStore) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]*api.Execution, error) {
	cur, err := s.executions.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*api.Execution
	for cur.Next(ctx) {
		var doc mongoExecutionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		exec, err := DecodeJSON[*api.Execution](doc.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, cur.Err()
}

func (s *MongoStore) DeadLetter(ctx context.Context, executionID string) error {
	_, err := s.deadLetters.InsertOne(ctx, mongoDeadLetterDoc{
		ExecutionID: executionID,
		CreatedAt:   time.Now().UnixNano(),
	})
	if mongo.IsDuplicateKeyError(err) {
		// Idempotent: a second hand-off for the same execution is a no-op.
		return nil
	}
	return err
}

// DeadLetteredIDs returns the execution IDs handed to the sink, oldest first.
func (s *MongoStore) DeadLetteredIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := s.deadLetters.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc mongoDeadLetterDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ExecutionID)
	}
	return ids, cur.Err()
}
