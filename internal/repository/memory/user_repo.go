package memory

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type userRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]*domain.User
}

// NewUserRepository returns an empty in-memory user directory.
func NewUserRepository() repository.UserRepository {
	return &userRepository{users: make(map[primitive.ObjectID]*domain.User)}
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	c.Followers = append([]primitive.ObjectID{}, u.Followers...)
	c.Following = append([]primitive.ObjectID{}, u.Following...)
	if u.Birthdate != nil {
		b := *u.Birthdate
		c.Birthdate = &b
	}
	return &c
}

// uniqueViolation mirrors the unique indexes on username, nickname and phoneNumber.
func (r *userRepository) uniqueViolation(candidate *domain.User) string {
	for id, u := range r.users {
		if id == candidate.ID {
			continue
		}
		switch {
		case u.Username == candidate.Username:
			return "username"
		case u.Nickname == candidate.Nickname:
			return "nickname"
		case u.PhoneNumber == candidate.PhoneNumber:
			return "phoneNumber"
		}
	}
	return ""
}

func (r *userRepository) Create(_ context.Context, user *domain.User) (primitive.ObjectID, error) {
	if user.Username == "" || user.Nickname == "" || user.PasswordHash == "" || user.PhoneNumber == "" {
		return primitive.NilObjectID, errors.New("user username, nickname, password hash, and phone number are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user.ID = primitive.NewObjectID()
	if field := r.uniqueViolation(user); field != "" {
		user.ID = primitive.NilObjectID
		return primitive.NilObjectID, &repository.DuplicateKeyError{Field: field}
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Followers == nil {
		user.Followers = []primitive.ObjectID{}
	}
	if user.Following == nil {
		user.Following = []primitive.ObjectID{}
	}
	r.users[user.ID] = copyUser(user)
	return user.ID, nil
}

func (r *userRepository) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyUser(u), nil
}

func (r *userRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepository) SearchByNickname(_ context.Context, fragment string, limit int) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(fragment)
	found := []domain.User{}
	for _, u := range r.users {
		if strings.Contains(strings.ToLower(u.Nickname), needle) {
			found = append(found, *copyUser(u))
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Nickname < found[j].Nickname })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (r *userRepository) UpdateProfile(_ context.Context, id primitive.ObjectID, update repository.ProfileUpdate) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	next := copyUser(u)
	if update.Name != nil {
		next.Name = *update.Name
	}
	if update.Nickname != nil {
		next.Nickname = *update.Nickname
	}
	if update.PhoneNumber != nil {
		next.PhoneNumber = *update.PhoneNumber
	}
	if update.Birthdate != nil {
		b := update.Birthdate.UTC()
		next.Birthdate = &b
	}
	if field := r.uniqueViolation(next); field != "" {
		return nil, &repository.DuplicateKeyError{Field: field}
	}
	next.UpdatedAt = time.Now().UTC()
	r.users[id] = next
	return copyUser(next), nil
}

func (r *userRepository) SetImage(_ context.Context, id primitive.ObjectID, objectKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Image = objectKey
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *userRepository) AddFollowEdge(_ context.Context, follower, followee primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, okA := r.users[follower]
	b, okB := r.users[followee]
	if !okA || !okB {
		return repository.ErrNotFound
	}
	if a.IsFollowing(followee) {
		return repository.ErrConflict
	}
	a.Following = append(a.Following, followee)
	b.Followers = appendUnique(b.Followers, follower)
	return nil
}

func (r *userRepository) RemoveFollowEdge(_ context.Context, follower, followee primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, okA := r.users[follower]
	b, okB := r.users[followee]
	if !okA || !okB {
		return repository.ErrNotFound
	}
	if !a.IsFollowing(followee) {
		return repository.ErrConflict
	}
	a.Following = removeID(a.Following, followee)
	b.Followers = removeID(b.Followers, follower)
	return nil
}

func appendUnique(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeID(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
