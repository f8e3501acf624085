package repository

import (
	"alcyxob/fitmate/internal/domain"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound      = RepositoryError("not found")
	ErrConflict      = RepositoryError("conflict")
	ErrAlreadyMember = RepositoryError("user already participates in plan")
	ErrOwnerMember   = RepositoryError("plan owner cannot participate")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// DuplicateKeyError reports a unique index violation on Field.
// errors.Is(err, ErrConflict) holds for it.
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	if e.Field == "" {
		return "duplicate key"
	}
	return fmt.Sprintf("duplicate %s", e.Field)
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrConflict
}

// ProfileUpdate carries the mutable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	Name        *string
	Nickname    *string
	PhoneNumber *string
	Birthdate   *time.Time
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	SearchByNickname(ctx context.Context, fragment string, limit int) ([]domain.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, update ProfileUpdate) (*domain.User, error)
	SetImage(ctx context.Context, id primitive.ObjectID, objectKey string) error
	// AddFollowEdge returns ErrConflict when follower already follows followee.
	AddFollowEdge(ctx context.Context, follower, followee primitive.ObjectID) error
	// RemoveFollowEdge returns ErrConflict when follower does not follow followee.
	RemoveFollowEdge(ctx context.Context, follower, followee primitive.ObjectID) error
}

// PlanRepository defines the interface for interacting with exercise plans.
type PlanRepository interface {
	Create(ctx context.Context, plan *domain.Plan) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Plan, error)
	FindAll(ctx context.Context) ([]domain.Plan, error)
	// FindVisible returns public plans plus the private plans viewerID owns or joined.
	FindVisible(ctx context.Context, viewerID primitive.ObjectID) ([]domain.Plan, error)
	// AddParticipant appends userID in a single conditional write.
	// It returns ErrNotFound, ErrOwnerMember or ErrAlreadyMember without writing,
	// or ErrConflict when the plan keeps changing under concurrent updates.
	AddParticipant(ctx context.Context, planID, userID primitive.ObjectID) (*domain.Plan, error)
	// RemoveParticipant is a no-op when userID is absent; ErrNotFound if the plan is missing.
	RemoveParticipant(ctx context.Context, planID, userID primitive.ObjectID) (*domain.Plan, error)
	// DeleteForOwner returns ErrNotFound unless a plan with id and ownerID exists.
	DeleteForOwner(ctx context.Context, id, ownerID primitive.ObjectID) error
}

// ChatRepository defines the interface for chat rooms and their messages.
type ChatRepository interface {
	FindRoomByParticipants(ctx context.Context, a, b primitive.ObjectID) (*domain.ChatRoom, error)
	// CreateRoom returns ErrConflict if a room for the pair already exists.
	CreateRoom(ctx context.Context, a, b primitive.ObjectID) (*domain.ChatRoom, error)
	GetRoom(ctx context.Context, id primitive.ObjectID) (*domain.ChatRoom, error)
	// ListMessages returns the room history ordered by timestamp ascending.
	ListMessages(ctx context.Context, roomID primitive.ObjectID) ([]domain.Message, error)
	AppendMessage(ctx context.Context, roomID, senderID, receiverID primitive.ObjectID, body string) (*domain.Message, error)
}

// NotificationRepository defines the interface for per-user notifications.
type NotificationRepository interface {
	Create(ctx context.Context, userID primitive.ObjectID, message string) (*domain.Notification, error)
	ListForUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Notification, error)
}
