package mongo

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Default connection timeout
const defaultTimeout = 10 * time.Second

// ConnectDB establishes a connection to MongoDB using the provided URI.
// It returns the mongo.Client which can be used to access databases and collections.
func ConnectDB(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	// Connect succeeds lazily; ping the primary to make sure the server answers.
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	if err = client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, err
	}

	return client, nil
}

// DisconnectDB gracefully disconnects the MongoDB client.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes every collection relies on.
// The unique indexes back the user, chat room and participation invariants,
// so failures are logged loudly.
func EnsureIndexes(ctx context.Context, db *mongo.Database) {
	ensure := map[string]func(context.Context, *mongo.Collection) error{
		userCollectionName:         EnsureUserIndexes,
		planCollectionName:         EnsurePlanIndexes,
		chatRoomCollectionName:     EnsureChatRoomIndexes,
		messageCollectionName:      EnsureMessageIndexes,
		notificationCollectionName: EnsureNotificationIndexes,
	}
	for name, fn := range ensure {
		if err := fn(ctx, db.Collection(name)); err != nil {
			log.Printf("WARN: Failed to create indexes for collection %s: %v", name, err)
		}
	}
}

// duplicateKeyField extracts the field name of the violated unique index from
// a duplicate key error, e.g. "index: phoneNumber_1 dup key" -> "phoneNumber".
func duplicateKeyField(err error) string {
	msg := err.Error()
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				msg = e.Message
				break
			}
		}
	}
	i := strings.Index(msg, "index: ")
	if i < 0 {
		return ""
	}
	name := msg[i+len("index: "):]
	if j := strings.IndexByte(name, ' '); j >= 0 {
		name = name[:j]
	}
	if j := strings.LastIndexByte(name, '_'); j > 0 {
		name = name[:j]
	}
	return name
}
