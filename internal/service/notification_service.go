package service

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationService interface {
	Notify(ctx context.Context, userID primitive.ObjectID, message string) (*domain.Notification, error)
	List(ctx context.Context, userID primitive.ObjectID) ([]domain.Notification, error)
}

type notificationService struct {
	notificationRepo repository.NotificationRepository
}

func NewNotificationService(notificationRepo repository.NotificationRepository) NotificationService {
	return &notificationService{notificationRepo: notificationRepo}
}

func (s *notificationService) Notify(ctx context.Context, userID primitive.ObjectID, message string) (*domain.Notification, error) {
	if userID == primitive.NilObjectID || message == "" {
		return nil, validationError("notification requires userId and message")
	}
	return s.notificationRepo.Create(ctx, userID, message)
}

func (s *notificationService) List(ctx context.Context, userID primitive.ObjectID) ([]domain.Notification, error) {
	return s.notificationRepo.ListForUser(ctx, userID)
}
