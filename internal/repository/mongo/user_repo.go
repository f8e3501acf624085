package mongo

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const userCollectionName = "users"

// mongoUserRepository implements the repository.UserRepository interface using MongoDB.
type mongoUserRepository struct {
	collection *mongo.Collection
}

// NewMongoUserRepository creates a new instance of mongoUserRepository.
// It expects a connected *mongo.Database instance.
func NewMongoUserRepository(db *mongo.Database) repository.UserRepository {
	return &mongoUserRepository{
		collection: db.Collection(userCollectionName),
	}
}

// Create inserts a new user into the database.
func (r *mongoUserRepository) Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error) {
	if user.Username == "" || user.Nickname == "" || user.PasswordHash == "" || user.PhoneNumber == "" {
		return primitive.NilObjectID, errors.New("user username, nickname, password hash, and phone number are required")
	}

	user.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Followers == nil {
		user.Followers = []primitive.ObjectID{}
	}
	if user.Following == nil {
		user.Following = []primitive.ObjectID{}
	}

	result, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, &repository.DuplicateKeyError{Field: duplicateKeyField(err)}
		}
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted ID")
	}
	return insertedID, nil
}

// GetByID retrieves a user by their MongoDB ObjectID.
func (r *mongoUserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetByUsername retrieves a user by login handle.
func (r *mongoUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SearchByNickname does a case-insensitive substring match on nickname.
func (r *mongoUserRepository) SearchByNickname(ctx context.Context, fragment string, limit int) ([]domain.User, error) {
	filter := bson.M{"nickname": primitive.Regex{Pattern: regexp.QuoteMeta(fragment), Options: "i"}}
	findOptions := options.Find().SetSort(bson.D{{Key: "nickname", Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []domain.User{}
	if err = cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateProfile sets the non-nil fields of update and returns the updated user.
func (r *mongoUserRepository) UpdateProfile(ctx context.Context, id primitive.ObjectID, update repository.ProfileUpdate) (*domain.User, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Nickname != nil {
		set["nickname"] = *update.Nickname
	}
	if update.PhoneNumber != nil {
		set["phoneNumber"] = *update.PhoneNumber
	}
	if update.Birthdate != nil {
		set["birthdate"] = update.Birthdate.UTC()
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user domain.User
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, &repository.DuplicateKeyError{Field: duplicateKeyField(err)}
		}
		return nil, err
	}
	return &user, nil
}

// SetImage stores the object key of the user's profile image.
func (r *mongoUserRepository) SetImage(ctx context.Context, id primitive.ObjectID, objectKey string) error {
	update := bson.M{"$set": bson.M{"image": objectKey, "updatedAt": time.Now().UTC()}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AddFollowEdge records follower -> followee on both documents.
// The follower side is a conditional update so a duplicate follow is
// detected without a separate read.
func (r *mongoUserRepository) AddFollowEdge(ctx context.Context, follower, followee primitive.ObjectID) error {
	if _, err := r.GetByID(ctx, followee); err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": follower, "following": bson.M{"$ne": followee}},
		bson.M{"$push": bson.M{"following": followee}, "$set": bson.M{"updatedAt": now}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, follower); err != nil {
			return err
		}
		return repository.ErrConflict
	}

	_, err = r.collection.UpdateOne(ctx,
		bson.M{"_id": followee},
		bson.M{"$addToSet": bson.M{"followers": follower}, "$set": bson.M{"updatedAt": now}},
	)
	if err != nil {
		// Undo the first half so the edge never exists on one side only.
		_, _ = r.collection.UpdateOne(ctx, bson.M{"_id": follower}, bson.M{"$pull": bson.M{"following": followee}})
		return err
	}
	return nil
}

// RemoveFollowEdge deletes follower -> followee from both documents.
func (r *mongoUserRepository) RemoveFollowEdge(ctx context.Context, follower, followee primitive.ObjectID) error {
	if _, err := r.GetByID(ctx, followee); err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": follower, "following": followee},
		bson.M{"$pull": bson.M{"following": followee}, "$set": bson.M{"updatedAt": now}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, follower); err != nil {
			return err
		}
		return repository.ErrConflict
	}

	_, err = r.collection.UpdateOne(ctx,
		bson.M{"_id": followee},
		bson.M{"$pull": bson.M{"followers": follower}, "$set": bson.M{"updatedAt": now}},
	)
	if err != nil {
		_, _ = r.collection.UpdateOne(ctx, bson.M{"_id": follower}, bson.M{"$addToSet": bson.M{"following": followee}})
		return err
	}
	return nil
}

// EnsureUserIndexes creates necessary indexes for the users collection.
func EnsureUserIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "nickname", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "phoneNumber", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
