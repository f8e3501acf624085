package service

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var wallClock = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// PlanInput holds the fields of a new plan.
type PlanInput struct {
	Date                 time.Time
	Exercise             string
	Title                string
	SelectedParticipants int
	StartTime            string
	EndTime              string
	Location             string
	IsPrivate            bool
}

type PlanService interface {
	Create(ctx context.Context, ownerID primitive.ObjectID, input PlanInput) (*domain.Plan, error)
	Get(ctx context.Context, id primitive.ObjectID) (*domain.Plan, error)
	ListVisible(ctx context.Context, viewerID primitive.ObjectID) ([]domain.Plan, error)
	ListAll(ctx context.Context) ([]domain.Plan, error)
	Delete(ctx context.Context, id, ownerID primitive.ObjectID) error

	// Participate adds userID to the plan and notifies the owner.
	Participate(ctx context.Context, planID, userID primitive.ObjectID) (*domain.Plan, error)
	// Leave removes userID from the plan (no error if absent) and notifies the owner.
	Leave(ctx context.Context, planID, userID primitive.ObjectID) (*domain.Plan, error)
}

type planService struct {
	planRepo      repository.PlanRepository
	userRepo      repository.UserRepository
	notifications NotificationService
}

func NewPlanService(planRepo repository.PlanRepository, userRepo repository.UserRepository, notifications NotificationService) PlanService {
	return &planService{
		planRepo:      planRepo,
		userRepo:      userRepo,
		notifications: notifications,
	}
}

func (in *PlanInput) validate() error {
	in.Exercise = strings.TrimSpace(in.Exercise)
	in.Location = strings.TrimSpace(in.Location)
	in.Title = strings.TrimSpace(in.Title)

	switch {
	case in.Date.IsZero():
		return validationError("selected_date is required")
	case in.Exercise == "":
		return validationError("selected_exercise is required")
	case in.Location == "":
		return validationError("selected_location is required")
	case in.SelectedParticipants < 1:
		return validationError("selected_participants must be at least 1")
	case !wallClock.MatchString(in.StartTime):
		return validationError("selected_startTime must be HH:MM")
	case !wallClock.MatchString(in.EndTime):
		return validationError("selected_endTime must be HH:MM")
	}
	return nil
}

func (s *planService) Create(ctx context.Context, ownerID primitive.ObjectID, input PlanInput) (*domain.Plan, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	plan := &domain.Plan{
		UserID:               ownerID,
		Date:                 input.Date.UTC(),
		Exercise:             input.Exercise,
		Title:                input.Title,
		SelectedParticipants: input.SelectedParticipants,
		StartTime:            input.StartTime,
		EndTime:              input.EndTime,
		Location:             input.Location,
		IsPrivate:            input.IsPrivate,
	}
	if _, err := s.planRepo.Create(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *planService) Get(ctx context.Context, id primitive.ObjectID) (*domain.Plan, error) {
	plan, err := s.planRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	return plan, err
}

func (s *planService) ListVisible(ctx context.Context, viewerID primitive.ObjectID) ([]domain.Plan, error) {
	return s.planRepo.FindVisible(ctx, viewerID)
}

func (s *planService) ListAll(ctx context.Context) ([]domain.Plan, error) {
	return s.planRepo.FindAll(ctx)
}

// Delete removes a plan owned by ownerID. A plan owned by someone else is
// reported as not found.
func (s *planService) Delete(ctx context.Context, id, ownerID primitive.ObjectID) error {
	err := s.planRepo.DeleteForOwner(ctx, id, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrPlanNotFound
	}
	return err
}

func (s *planService) Participate(ctx context.Context, planID, userID primitive.ObjectID) (*domain.Plan, error) {
	user, err := s.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Owner exclusion and uniqueness are checked by the store in the same write.
	plan, err := s.planRepo.AddParticipant(ctx, planID, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrPlanNotFound
	case errors.Is(err, repository.ErrOwnerMember):
		return nil, ErrOwnerCannotParticipate
	case errors.Is(err, repository.ErrAlreadyMember):
		return nil, ErrAlreadyParticipant
	case errors.Is(err, repository.ErrConflict):
		return nil, ErrPlanBusy
	case err != nil:
		return nil, err
	}

	s.notifyOwner(ctx, plan, fmt.Sprintf("%s joined your plan", user.Nickname))
	return plan, nil
}

func (s *planService) Leave(ctx context.Context, planID, userID primitive.ObjectID) (*domain.Plan, error) {
	user, err := s.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan, err := s.planRepo.RemoveParticipant(ctx, planID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}

	s.notifyOwner(ctx, plan, fmt.Sprintf("%s left your plan", user.Nickname))
	return plan, nil
}

func (s *planService) lookupUser(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// notifyOwner runs after the membership change is committed, so a failure
// here is logged rather than reported as a failed participation.
func (s *planService) notifyOwner(ctx context.Context, plan *domain.Plan, message string) {
	if _, err := s.notifications.Notify(ctx, plan.UserID, message); err != nil {
		log.Printf("ERROR: Failed to notify owner %s of plan %s: %v", plan.UserID.Hex(), plan.ID.Hex(), err)
	}
}
