package mongo

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	planCollectionName = "plannings"

	// addParticipantAttempts bounds retries when the plan keeps changing
	// between the conditional update and the re-read.
	addParticipantAttempts = 3
)

// mongoPlanRepository implements repository.PlanRepository
type mongoPlanRepository struct {
	collection *mongo.Collection
}

// NewMongoPlanRepository creates a new Plan repository.
func NewMongoPlanRepository(db *mongo.Database) repository.PlanRepository {
	return &mongoPlanRepository{
		collection: db.Collection(planCollectionName),
	}
}

// Create inserts a new plan.
func (r *mongoPlanRepository) Create(ctx context.Context, plan *domain.Plan) (primitive.ObjectID, error) {
	if plan.UserID == primitive.NilObjectID || plan.Exercise == "" || plan.Location == "" {
		return primitive.NilObjectID, errors.New("plan requires userId, exercise, and location")
	}
	plan.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	if plan.Participants == nil {
		plan.Participants = []primitive.ObjectID{}
	}

	result, err := r.collection.InsertOne(ctx, plan)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted plan ID")
	}
	return insertedID, nil
}

// GetByID retrieves a single plan by its ID.
func (r *mongoPlanRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Plan, error) {
	var plan domain.Plan
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// FindAll returns every plan, earliest session first.
func (r *mongoPlanRepository) FindAll(ctx context.Context) ([]domain.Plan, error) {
	return r.find(ctx, bson.M{})
}

// FindVisible returns public plans and the private ones the viewer owns or joined.
func (r *mongoPlanRepository) FindVisible(ctx context.Context, viewerID primitive.ObjectID) ([]domain.Plan, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"isPrivate": false},
		bson.M{"userId": viewerID},
		bson.M{"participants": viewerID},
	}}
	return r.find(ctx, filter)
}

func (r *mongoPlanRepository) find(ctx context.Context, filter bson.M) ([]domain.Plan, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "selected_date", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	plans := []domain.Plan{}
	if err = cursor.All(ctx, &plans); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}

// AddParticipant pushes userID onto the participant list in one conditional
// update, so two concurrent joins by the same user cannot both succeed.
func (r *mongoPlanRepository) AddParticipant(ctx context.Context, planID, userID primitive.ObjectID) (*domain.Plan, error) {
	filter := bson.M{
		"_id":          planID,
		"userId":       bson.M{"$ne": userID},
		"participants": bson.M{"$ne": userID},
	}
	update := bson.M{
		"$push": bson.M{"participants": userID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	for attempt := 0; attempt < addParticipantAttempts; attempt++ {
		var plan domain.Plan
		err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&plan)
		if err == nil {
			return &plan, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}

		// Nothing matched; find out which condition failed.
		current, err := r.GetByID(ctx, planID)
		if err != nil {
			return nil, err
		}
		if current.IsOwner(userID) {
			return nil, repository.ErrOwnerMember
		}
		if current.HasParticipant(userID) {
			return nil, repository.ErrAlreadyMember
		}
		// The user left between the update and the re-read; try again.
	}
	return nil, fmt.Errorf("%w: plan %s changed during participation", repository.ErrConflict, planID.Hex())
}

// RemoveParticipant pulls userID from the participant list.
func (r *mongoPlanRepository) RemoveParticipant(ctx context.Context, planID, userID primitive.ObjectID) (*domain.Plan, error) {
	update := bson.M{
		"$pull": bson.M{"participants": userID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var plan domain.Plan
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": planID}, update, opts).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// DeleteForOwner removes a plan only when it belongs to ownerID.
func (r *mongoPlanRepository) DeleteForOwner(ctx context.Context, id, ownerID primitive.ObjectID) error {
	if id == primitive.NilObjectID || ownerID == primitive.NilObjectID {
		return errors.New("plan ID and owner ID are required for deletion")
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "userId": ownerID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		// Either the plan does not exist or someone else owns it.
		return repository.ErrNotFound
	}
	return nil
}

// EnsurePlanIndexes creates necessary indexes. Call during startup.
func EnsurePlanIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "isPrivate", Value: 1}, {Key: "selected_date", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
