// Package mongodb stores users, messages and block relations in MongoDB.
// Bulk deletes use update pipelines so each document's flags are computed
// from its own fields.
package mongodb

import (
	"context"
	"fmt"
	"time"

	b "go.mongodb.org/mongo-driver/bson"
	mdb "go.mongodb.org/mongo-driver/mongo"
	mdbopts "go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
	blocksCollection   = "block_relations"
)

// Open connects to uri and returns the named database.
func Open(uri, database string) (*mdb.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mdb.Connect(ctx, mdbopts.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client.Database(database), nil
}

// Migrate creates the indexes the repositories rely on. It is idempotent.
func Migrate(ctx context.Context, db *mdb.Database) error {
	indexes := map[string][]mdb.IndexModel{
		usersCollection: {
			{Keys: b.D{{Key: "username", Value: 1}}, Options: mdbopts.Index().SetUnique(true)},
			{Keys: b.D{{Key: "email", Value: 1}}, Options: mdbopts.Index().SetUnique(true).SetSparse(true)},
			{Keys: b.D{{Key: "channel_id", Value: 1}}},
		},
		messagesCollection: {
			{Keys: b.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}}},
			{Keys: b.D{{Key: "receiver_id", Value: 1}}},
		},
		blocksCollection: {
			{Keys: b.D{{Key: "blocker_id", Value: 1}, {Key: "blocked_id", Value: 1}}, Options: mdbopts.Index().SetUnique(true)},
			{Keys: b.D{{Key: "blocked_id", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
