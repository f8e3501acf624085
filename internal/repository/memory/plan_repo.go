package memory

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type planRepository struct {
	mu    sync.RWMutex
	plans map[primitive.ObjectID]*domain.Plan
}

// NewPlanRepository returns an empty in-memory plan store.
func NewPlanRepository() repository.PlanRepository {
	return &planRepository{plans: make(map[primitive.ObjectID]*domain.Plan)}
}

func copyPlan(p *domain.Plan) *domain.Plan {
	c := *p
	c.Participants = append([]primitive.ObjectID{}, p.Participants...)
	return &c
}

func (r *planRepository) Create(_ context.Context, plan *domain.Plan) (primitive.ObjectID, error) {
	if plan.UserID == primitive.NilObjectID || plan.Exercise == "" || plan.Location == "" {
		return primitive.NilObjectID, errors.New("plan requires userId, exercise, and location")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	plan.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	if plan.Participants == nil {
		plan.Participants = []primitive.ObjectID{}
	}
	r.plans[plan.ID] = copyPlan(plan)
	return plan.ID, nil
}

func (r *planRepository) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyPlan(p), nil
}

func (r *planRepository) FindAll(_ context.Context) ([]domain.Plan, error) {
	return r.filter(func(*domain.Plan) bool { return true }), nil
}

func (r *planRepository) FindVisible(_ context.Context, viewerID primitive.ObjectID) ([]domain.Plan, error) {
	return r.filter(func(p *domain.Plan) bool {
		return !p.IsPrivate || p.UserID == viewerID || p.HasParticipant(viewerID)
	}), nil
}

func (r *planRepository) filter(keep func(*domain.Plan) bool) []domain.Plan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plans := []domain.Plan{}
	for _, p := range r.plans {
		if keep(p) {
			plans = append(plans, *copyPlan(p))
		}
	}
	sort.Slice(plans, func(i, j int) bool {
		if !plans[i].Date.Equal(plans[j].Date) {
			return plans[i].Date.Before(plans[j].Date)
		}
		return plans[i].ID.Hex() < plans[j].ID.Hex()
	})
	return plans
}

func (r *planRepository) AddParticipant(_ context.Context, planID, userID primitive.ObjectID) (*domain.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plans[planID]
	switch {
	case !ok:
		return nil, repository.ErrNotFound
	case p.IsOwner(userID):
		return nil, repository.ErrOwnerMember
	case p.HasParticipant(userID):
		return nil, repository.ErrAlreadyMember
	}
	p.Participants = append(p.Participants, userID)
	p.UpdatedAt = time.Now().UTC()
	return copyPlan(p), nil
}

func (r *planRepository) RemoveParticipant(_ context.Context, planID, userID primitive.ObjectID) (*domain.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plans[planID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p.Participants = removeID(p.Participants, userID)
	p.UpdatedAt = time.Now().UTC()
	return copyPlan(p), nil
}

func (r *planRepository) DeleteForOwner(_ context.Context, id, ownerID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plans[id]
	if !ok || p.UserID != ownerID {
		return repository.ErrNotFound
	}
	delete(r.plans, id)
	return nil
}
