package service

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"alcyxob/fitmate/internal/storage"
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxSearchResults = 20

// ProfileInput carries a partial profile edit. Nil fields are left unchanged.
type ProfileInput struct {
	Name        *string
	Nickname    *string
	PhoneNumber *string
	Birthdate   *time.Time
}

// ImageUpload is returned when a client asks to upload a profile image.
type ImageUpload struct {
	UploadURL string `json:"uploadUrl"`
	ObjectKey string `json:"objectKey"` // Sent back on confirm
}

// UserService is the identity directory: lookups, profile edits and the follow graph.
type UserService interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	SearchByNickname(ctx context.Context, fragment string) ([]domain.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, input ProfileInput) (*domain.User, error)
	Follow(ctx context.Context, follower, followee primitive.ObjectID) error
	Unfollow(ctx context.Context, follower, followee primitive.ObjectID) error

	RequestImageUpload(ctx context.Context, id primitive.ObjectID, contentType string) (*ImageUpload, error)
	ConfirmImage(ctx context.Context, id primitive.ObjectID, objectKey string) error
	// ImageURL returns a temporary download URL, or "" if the user has no image.
	ImageURL(ctx context.Context, user *domain.User) string
}

type userService struct {
	userRepo    repository.UserRepository
	fileStorage storage.FileStorage // nil when S3 is not configured
}

// NewUserService creates a new instance of userService. fileStorage may be nil.
func NewUserService(userRepo repository.UserRepository, fileStorage storage.FileStorage) UserService {
	return &userService{userRepo: userRepo, fileStorage: fileStorage}
}

func (s *userService) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) SearchByNickname(ctx context.Context, fragment string) ([]domain.User, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, validationError("nickname query is required")
	}
	return s.userRepo.SearchByNickname(ctx, fragment, maxSearchResults)
}

func (s *userService) UpdateProfile(ctx context.Context, id primitive.ObjectID, input ProfileInput) (*domain.User, error) {
	update := repository.ProfileUpdate{Name: input.Name, Birthdate: input.Birthdate}
	if input.Name != nil && utf8.RuneCountInString(*input.Name) > maxNameLength {
		return nil, validationError("name must be at most %d characters", maxNameLength)
	}
	if input.Nickname != nil {
		nick := strings.TrimSpace(*input.Nickname)
		if nick == "" || utf8.RuneCountInString(nick) > maxNicknameLength {
			return nil, validationError("nickname must be 1 to %d characters", maxNicknameLength)
		}
		update.Nickname = &nick
	}
	if input.PhoneNumber != nil {
		phone := strings.TrimSpace(*input.PhoneNumber)
		if phone == "" || len(phone) > maxPhoneLength {
			return nil, validationError("phoneNumber must be 1 to %d characters", maxPhoneLength)
		}
		update.PhoneNumber = &phone
	}

	user, err := s.userRepo.UpdateProfile(ctx, id, update)
	if err != nil {
		var dup *repository.DuplicateKeyError
		switch {
		case errors.As(err, &dup):
			return nil, &FieldConflictError{Field: dup.Field}
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Follow adds the follower -> followee edge.
func (s *userService) Follow(ctx context.Context, follower, followee primitive.ObjectID) error {
	if follower == followee {
		return ErrSelfFollow
	}
	err := s.userRepo.AddFollowEdge(ctx, follower, followee)
	switch {
	case errors.Is(err, repository.ErrConflict):
		return ErrAlreadyFollowing
	case errors.Is(err, repository.ErrNotFound):
		return ErrUserNotFound
	}
	return err
}

// Unfollow removes the follower -> followee edge.
func (s *userService) Unfollow(ctx context.Context, follower, followee primitive.ObjectID) error {
	if follower == followee {
		return ErrSelfFollow
	}
	err := s.userRepo.RemoveFollowEdge(ctx, follower, followee)
	switch {
	case errors.Is(err, repository.ErrConflict):
		return ErrNotFollowing
	case errors.Is(err, repository.ErrNotFound):
		return ErrUserNotFound
	}
	return err
}

func (s *userService) RequestImageUpload(ctx context.Context, id primitive.ObjectID, contentType string) (*ImageUpload, error) {
	if s.fileStorage == nil {
		return nil, ErrStorageUnavailable
	}
	key, err := storage.ProfileImageKey(id.Hex(), contentType)
	if err != nil {
		return nil, validationError("%v", err)
	}
	url, err := s.fileStorage.GeneratePresignedUploadURL(ctx, key, contentType, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return nil, err
	}
	return &ImageUpload{UploadURL: url, ObjectKey: key}, nil
}

// ConfirmImage records an uploaded image and removes the previous one.
func (s *userService) ConfirmImage(ctx context.Context, id primitive.ObjectID, objectKey string) error {
	if s.fileStorage == nil {
		return ErrStorageUnavailable
	}
	if !storage.OwnsKey(id.Hex(), objectKey) {
		return ErrImageKeyMismatch
	}
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.userRepo.SetImage(ctx, id, objectKey); err != nil {
		return err
	}
	if user.Image != "" && user.Image != objectKey {
		if err := s.fileStorage.DeleteObject(ctx, user.Image); err != nil {
			log.Printf("WARN: Failed to delete previous profile image %s: %v", user.Image, err)
		}
	}
	return nil
}

func (s *userService) ImageURL(ctx context.Context, user *domain.User) string {
	if s.fileStorage == nil || user == nil || user.Image == "" {
		return ""
	}
	url, err := s.fileStorage.GeneratePresignedDownloadURL(ctx, user.Image, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return ""
	}
	return url
}
