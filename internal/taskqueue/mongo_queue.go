package taskqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoQueue implements Queue on top of MongoDB.
//
// Collection schema:
//
//	{
//	  _id:         string,    // task ID
//	  payload:     []byte,    // JSON-encoded Task
//	  not_before:  int64,     // unix nanoseconds
//	  enqueued_at: int64,
//	}
type MongoQueue struct {
	coll         *mongo.Collection
	pollInterval time.Duration
}

// NewMongoQueue creates a Mongo-backed queue.
// dbName defaults to "retrofit", collName to "outbox_tasks".
func NewMongoQueue(client *mongo.Client, dbName, collName string) *MongoQueue {
	if dbName == "" {
		dbName = "retrofit"
	}
	if collName == "" {
		collName = "outbox_tasks"
	}
	return &MongoQueue{
		coll:         client.Database(dbName).Collection(collName),
		pollInterval: 100 * time.Millisecond,
	}
}

// Ensure MongoQueue implements Queue.
var _ Queue = (*MongoQueue)(nil)

type mongoQueueDoc struct {
	ID         string `bson:"_id"`
	Payload    []byte `bson:"payload"`
	NotBefore  int64  `bson:"not_before"`
	EnqueuedAt int64  `bson:"enqueued_at"`
}

// Enqueue inserts a document for the given Task. Tasks need a unique ID.
func (q *MongoQueue) Enqueue(ctx context.Context, t Task) error {
	if t.ID == "" {
		return errors.New("mongo queue: task ID is required")
	}
	t = stamp(t, time.Now())

	data, err := EncodeTask(t)
	if err != nil {
		return err
	}

	due := t.EnqueuedAt
	if !t.NotBefore.IsZero() {
		due = t.NotBefore
	}

	_, err = q.coll.InsertOne(ctx, mongoQueueDoc{
		ID:         t.ID,
		Payload:    data,
		NotBefore:  due.UnixNano(),
		EnqueuedAt: t.EnqueuedAt.UnixNano(),
	})
	return err
}

// Dequeue blocks (via polling) until a due task is available or ctx is cancelled.
func (q *MongoQueue) Dequeue(ctx context.Context) (*Task, error) {
	// Use a reusable timer to avoid allocating a new timer on every idle poll.
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		select {
		case <-tmr.C:
		default:
		}
	}
	defer tmr.Stop()

	for {
		var doc mongoQueueDoc
		err := q.coll.FindOneAndDelete(
			ctx,
			bson.M{"not_before": bson.M{"$lte": time.Now().UnixNano()}},
			options.FindOneAndDelete().SetSort(bson.D{{Key: "not_before", Value: 1}, {Key: "enqueued_at", Value: 1}}),
		).Decode(&doc)
		if err == nil {
			return DecodeTask(doc.Payload)
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}

		tmr.Reset(q.pollInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tmr.C:
		}
	}
}

// Len returns an approximate number of queued tasks.
func (q *MongoQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := q.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		slog.Warn("mongo queue length failed", "error", err)
		return 0
	}
	return int(n)
}
