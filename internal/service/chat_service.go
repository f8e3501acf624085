package service

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageSender is the resolved identity attached to a message.
type MessageSender struct {
	ID       string `json:"_id"`
	Nickname string `json:"nickname"`
}

// MessageView is a persisted message with its sender resolved.
type MessageView struct {
	ID         string        `json:"_id"`
	ChatRoomID string        `json:"chatRoomId"`
	Sender     MessageSender `json:"senderId"`
	ReceiverID string        `json:"receiverId"`
	Message    string        `json:"message"`
	Timestamp  time.Time     `json:"timestamp"`
}

type ChatService interface {
	// OpenRoom returns the room for the unordered pair, creating it on first use.
	OpenRoom(ctx context.Context, a, b primitive.ObjectID) (*domain.ChatRoom, error)
	GetRoom(ctx context.Context, roomID primitive.ObjectID) (*domain.ChatRoom, error)
	History(ctx context.Context, roomID primitive.ObjectID) ([]MessageView, error)
	Send(ctx context.Context, roomID, senderID, receiverID primitive.ObjectID, body string) (*MessageView, error)
}

type chatService struct {
	chatRepo repository.ChatRepository
	userRepo repository.UserRepository
}

func NewChatService(chatRepo repository.ChatRepository, userRepo repository.UserRepository) ChatService {
	return &chatService{chatRepo: chatRepo, userRepo: userRepo}
}

func (s *chatService) OpenRoom(ctx context.Context, a, b primitive.ObjectID) (*domain.ChatRoom, error) {
	if a == primitive.NilObjectID || b == primitive.NilObjectID {
		return nil, validationError("senderId and receiverId are required")
	}
	if a == b {
		return nil, validationError("cannot open a chat room with yourself")
	}
	if _, err := s.userRepo.GetByID(ctx, b); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	room, err := s.chatRepo.FindRoomByParticipants(ctx, a, b)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	room, err = s.chatRepo.CreateRoom(ctx, a, b)
	if errors.Is(err, repository.ErrConflict) {
		// The other participant created it first.
		return s.chatRepo.FindRoomByParticipants(ctx, a, b)
	}
	return room, err
}

func (s *chatService) GetRoom(ctx context.Context, roomID primitive.ObjectID) (*domain.ChatRoom, error) {
	room, err := s.chatRepo.GetRoom(ctx, roomID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrChatRoomNotFound
	}
	return room, err
}

func (s *chatService) History(ctx context.Context, roomID primitive.ObjectID) ([]MessageView, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	messages, err := s.chatRepo.ListMessages(ctx, roomID)
	if err != nil {
		return nil, err
	}

	senders := make(map[primitive.ObjectID]MessageSender)
	views := make([]MessageView, 0, len(messages))
	for i := range messages {
		sender, ok := senders[messages[i].SenderID]
		if !ok {
			sender, err = s.resolveSender(ctx, messages[i].SenderID)
			if err != nil {
				return nil, err
			}
			senders[messages[i].SenderID] = sender
		}
		views = append(views, toMessageView(&messages[i], sender))
	}
	return views, nil
}

func (s *chatService) Send(ctx context.Context, roomID, senderID, receiverID primitive.ObjectID, body string) (*MessageView, error) {
	if strings.TrimSpace(body) == "" {
		return nil, validationError("message is required")
	}
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !roomHas(room, senderID) || !roomHas(room, receiverID) || senderID == receiverID {
		return nil, ErrNotRoomMember
	}

	sender, err := s.resolveSender(ctx, senderID)
	if err != nil {
		return nil, err
	}
	msg, err := s.chatRepo.AppendMessage(ctx, roomID, senderID, receiverID, body)
	if err != nil {
		return nil, err
	}
	view := toMessageView(msg, sender)
	return &view, nil
}

// resolveSender tolerates senders that no longer exist; history stays readable.
func (s *chatService) resolveSender(ctx context.Context, id primitive.ObjectID) (MessageSender, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return MessageSender{ID: id.Hex()}, nil
	}
	if err != nil {
		return MessageSender{}, err
	}
	return MessageSender{ID: id.Hex(), Nickname: user.Nickname}, nil
}

func roomHas(room *domain.ChatRoom, id primitive.ObjectID) bool {
	for _, p := range room.Participants {
		if p == id {
			return true
		}
	}
	return false
}

func toMessageView(m *domain.Message, sender MessageSender) MessageView {
	return MessageView{
		ID:         m.ID.Hex(),
		ChatRoomID: m.ChatRoomID.Hex(),
		Sender:     sender,
		ReceiverID: m.ReceiverID.Hex(),
		Message:    m.Message,
		Timestamp:  m.Timestamp,
	}
}
