package mongo

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const notificationCollectionName = "notifications"

type mongoNotificationRepository struct {
	collection *mongo.Collection
}

// NewMongoNotificationRepository creates a new notification repository.
func NewMongoNotificationRepository(db *mongo.Database) repository.NotificationRepository {
	return &mongoNotificationRepository{
		collection: db.Collection(notificationCollectionName),
	}
}

func (r *mongoNotificationRepository) Create(ctx context.Context, userID primitive.ObjectID, message string) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Message:   message,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		IsRead:    false,
	}
	if _, err := r.collection.InsertOne(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// ListForUser returns every notification of the user, newest first.
func (r *mongoNotificationRepository) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Notification, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	notifications := []domain.Notification{}
	if err = cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// EnsureNotificationIndexes creates the per-user lookup index.
func EnsureNotificationIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
		Options: options.Index(),
	})
	return err
}
