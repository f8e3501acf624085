package memory

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type chatRepository struct {
	mu       sync.RWMutex
	rooms    map[primitive.ObjectID]*domain.ChatRoom
	byPair   map[string]primitive.ObjectID
	messages map[primitive.ObjectID][]domain.Message // appended in timestamp order
}

// NewChatRepository returns an empty in-memory chat store.
func NewChatRepository() repository.ChatRepository {
	return &chatRepository{
		rooms:    make(map[primitive.ObjectID]*domain.ChatRoom),
		byPair:   make(map[string]primitive.ObjectID),
		messages: make(map[primitive.ObjectID][]domain.Message),
	}
}

func copyRoom(room *domain.ChatRoom) *domain.ChatRoom {
	c := *room
	c.Participants = append([]primitive.ObjectID{}, room.Participants...)
	return &c
}

func (r *chatRepository) FindRoomByParticipants(_ context.Context, a, b primitive.ObjectID) (*domain.ChatRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPair[domain.PairKey(a, b)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyRoom(r.rooms[id]), nil
}

func (r *chatRepository) CreateRoom(_ context.Context, a, b primitive.ObjectID) (*domain.ChatRoom, error) {
	if a == primitive.NilObjectID || b == primitive.NilObjectID {
		return nil, errors.New("chat room requires two participants")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := domain.PairKey(a, b)
	if _, exists := r.byPair[key]; exists {
		return nil, &repository.DuplicateKeyError{Field: "pairKey"}
	}
	room := &domain.ChatRoom{
		ID:           primitive.NewObjectID(),
		Participants: []primitive.ObjectID{a, b},
		PairKey:      key,
		CreatedAt:    time.Now().UTC(),
	}
	r.rooms[room.ID] = room
	r.byPair[key] = room.ID
	return copyRoom(room), nil
}

func (r *chatRepository) GetRoom(_ context.Context, id primitive.ObjectID) (*domain.ChatRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyRoom(room), nil
}

func (r *chatRepository) ListMessages(_ context.Context, roomID primitive.ObjectID) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.Message{}, r.messages[roomID]...), nil
}

func (r *chatRepository) AppendMessage(_ context.Context, roomID, senderID, receiverID primitive.ObjectID, body string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := domain.Message{
		ID:         primitive.NewObjectID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Message:    body,
		ChatRoomID: roomID,
		Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
	}
	r.messages[roomID] = append(r.messages[roomID], msg)
	return &msg, nil
}
