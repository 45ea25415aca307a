package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/acentrix/quotefunnel/internal/core"
)

const sessionsCollection = "funnel_sessions"

// SessionsRepo persists session records in MongoDB, keyed by
// (sessionId, productLine).
type SessionsRepo struct {
	col       *mongo.Collection
	opTimeout time.Duration
}

func NewSessionsRepo(client *MongoClient) *SessionsRepo {
	return &SessionsRepo{
		col:       client.DB.Collection(sessionsCollection),
		opTimeout: client.opTimeout,
	}
}

// EnsureIndexes creates the unique compound key and a TTL on updatedAt so
// abandoned sessions age out on their own.
func (r *SessionsRepo) EnsureIndexes(ctx context.Context, ttl time.Duration) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sessionId", Value: 1}, {Key: "productLine", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updatedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
		},
	})
	if err != nil {
		return fmt.Errorf("create session indexes: %w", err)
	}
	return nil
}

func (r *SessionsRepo) Get(ctx context.Context, sessionID string, line core.LineCode) (core.SessionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	var rec core.SessionRecord
	err := r.col.FindOne(ctx, bson.M{"sessionId": sessionID, "productLine": line}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.SessionRecord{}, fmt.Errorf("%w: session record %s/%s", core.ErrNotFound, sessionID, line)
	}
	if err != nil {
		return core.SessionRecord{}, fmt.Errorf("get session record: %w", err)
	}
	return rec, nil
}

func (r *SessionsRepo) Put(ctx context.Context, rec core.SessionRecord) error {
	if rec.SessionID == "" || rec.ProductLine == "" {
		return fmt.Errorf("%w: session record needs session id and product line", core.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	filter := bson.M{"sessionId": rec.SessionID, "productLine": rec.ProductLine}
	_, err := r.col.ReplaceOne(ctx, filter, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put session record: %w", err)
	}
	return nil
}

func (r *SessionsRepo) Delete(ctx context.Context, sessionID string, line core.LineCode) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	_, err := r.col.DeleteOne(ctx, bson.M{"sessionId": sessionID, "productLine": line})
	if err != nil {
		return fmt.Errorf("delete session record: %w", err)
	}
	return nil
}
