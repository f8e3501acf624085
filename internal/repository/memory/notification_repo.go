package memory

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type notificationRepository struct {
	mu     sync.RWMutex
	byUser map[primitive.ObjectID][]domain.Notification
}

// NewNotificationRepository returns an empty in-memory notification store.
func NewNotificationRepository() repository.NotificationRepository {
	return &notificationRepository{byUser: make(map[primitive.ObjectID][]domain.Notification)}
}

func (r *notificationRepository) Create(_ context.Context, userID primitive.ObjectID, message string) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := domain.Notification{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Message:   message,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	r.byUser[userID] = append(r.byUser[userID], n)
	return &n, nil
}

// ListForUser returns newest first, like the MongoDB driver.
func (r *notificationRepository) ListForUser(_ context.Context, userID primitive.ObjectID) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.byUser[userID]
	out := make([]domain.Notification, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}
