package mongo

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	chatRoomCollectionName = "chatrooms"
	messageCollectionName  = "messages"
)

// mongoChatRepository implements repository.ChatRepository over two collections.
type mongoChatRepository struct {
	rooms    *mongo.Collection
	messages *mongo.Collection
}

// NewMongoChatRepository creates a new chat repository backed by MongoDB.
func NewMongoChatRepository(db *mongo.Database) repository.ChatRepository {
	return &mongoChatRepository{
		rooms:    db.Collection(chatRoomCollectionName),
		messages: db.Collection(messageCollectionName),
	}
}

// FindRoomByParticipants looks a room up by its unordered pair key.
func (r *mongoChatRepository) FindRoomByParticipants(ctx context.Context, a, b primitive.ObjectID) (*domain.ChatRoom, error) {
	return r.findRoom(ctx, bson.M{"pairKey": domain.PairKey(a, b)})
}

// GetRoom retrieves a room by ID.
func (r *mongoChatRepository) GetRoom(ctx context.Context, id primitive.ObjectID) (*domain.ChatRoom, error) {
	return r.findRoom(ctx, bson.M{"_id": id})
}

func (r *mongoChatRepository) findRoom(ctx context.Context, filter bson.M) (*domain.ChatRoom, error) {
	var room domain.ChatRoom
	err := r.rooms.FindOne(ctx, filter).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// CreateRoom inserts a room for the pair. The unique pairKey index makes a
// second insert for the same pair fail with ErrConflict.
func (r *mongoChatRepository) CreateRoom(ctx context.Context, a, b primitive.ObjectID) (*domain.ChatRoom, error) {
	if a == primitive.NilObjectID || b == primitive.NilObjectID {
		return nil, errors.New("chat room requires two participants")
	}
	room := &domain.ChatRoom{
		ID:           primitive.NewObjectID(),
		Participants: []primitive.ObjectID{a, b},
		PairKey:      domain.PairKey(a, b),
		CreatedAt:    time.Now().UTC(),
	}

	if _, err := r.rooms.InsertOne(ctx, room); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &repository.DuplicateKeyError{Field: "pairKey"}
		}
		return nil, err
	}
	return room, nil
}

// ListMessages returns the room history, oldest first.
func (r *mongoChatRepository) ListMessages(ctx context.Context, roomID primitive.ObjectID) ([]domain.Message, error) {
	// _id breaks ties between messages stored within the same millisecond.
	findOptions := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.messages.Find(ctx, bson.M{"chatRoomId": roomID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := []domain.Message{}
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// AppendMessage stores a message with a server-assigned timestamp.
func (r *mongoChatRepository) AppendMessage(ctx context.Context, roomID, senderID, receiverID primitive.ObjectID, body string) (*domain.Message, error) {
	msg := &domain.Message{
		ID:         primitive.NewObjectID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Message:    body,
		ChatRoomID: roomID,
		// BSON dates keep milliseconds; truncate so the echo matches the stored value.
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := r.messages.InsertOne(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// EnsureChatRoomIndexes creates the unique pair index.
func EnsureChatRoomIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pairKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// EnsureMessageIndexes creates the history index.
func EnsureMessageIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chatRoomId", Value: 1}, {Key: "timestamp", Value: 1}},
		Options: options.Index(),
	})
	return err
}
