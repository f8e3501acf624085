package api

import (
	"alcyxob/fitmate/internal/service"
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// PlanBroadcaster pushes the current plan list to live clients.
type PlanBroadcaster interface {
	BroadcastPlans(ctx context.Context) error
}

type PlanHandler struct {
	planService service.PlanService
	broadcaster PlanBroadcaster
}

func NewPlanHandler(planService service.PlanService, broadcaster PlanBroadcaster) *PlanHandler {
	return &PlanHandler{planService: planService, broadcaster: broadcaster}
}

// CreatePlanRequest uses the wire field names of the plan document.
type CreatePlanRequest struct {
	SelectedDate         time.Time `json:"selected_date" binding:"required"`
	SelectedExercise     string    `json:"selected_exercise" binding:"required"`
	Title                string    `json:"title"`
	SelectedParticipants int       `json:"selected_participants" binding:"required,min=1"`
	SelectedStartTime    string    `json:"selected_startTime" binding:"required"`
	SelectedEndTime      string    `json:"selected_endTime" binding:"required"`
	SelectedLocation     string    `json:"selected_location" binding:"required"`
	IsPrivate            bool      `json:"isPrivate"`
}

// CreatePlan godoc
// @Summary Create an exercise plan
// @Tags Plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param plan body CreatePlanRequest true "Plan details"
// @Success 201 {object} domain.Plan
// @Failure 400 {object} gin.H "Invalid input"
// @Failure 401 {object} gin.H "Unauthorized"
// @Router /plans [post]
func (h *PlanHandler) CreatePlan(c *gin.Context) {
	ownerID, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	plan, err := h.planService.Create(c.Request.Context(), ownerID, service.PlanInput{
		Date:                 req.SelectedDate,
		Exercise:             req.SelectedExercise,
		Title:                req.Title,
		SelectedParticipants: req.SelectedParticipants,
		StartTime:            req.SelectedStartTime,
		EndTime:              req.SelectedEndTime,
		Location:             req.SelectedLocation,
		IsPrivate:            req.IsPrivate,
	})
	if err != nil {
		respondServiceError(c, err, "create plan")
		return
	}
	h.broadcast(c.Request.Context())
	c.JSON(http.StatusCreated, plan)
}

// ListPlans returns public plans and the caller's private ones.
func (h *PlanHandler) ListPlans(c *gin.Context) {
	viewer, ok := currentUser(c)
	if !ok {
		return
	}
	plans, err := h.planService.ListVisible(c.Request.Context(), viewer)
	if err != nil {
		respondServiceError(c, err, "retrieve plans")
		return
	}
	c.JSON(http.StatusOK, plans)
}

// ListAllPlans is the admin view, private plans included.
func (h *PlanHandler) ListAllPlans(c *gin.Context) {
	plans, err := h.planService.ListAll(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "retrieve plans")
		return
	}
	c.JSON(http.StatusOK, plans)
}

// GetPlan returns one plan. Private plans are only visible to the owner
// and participants; anyone else gets 404.
func (h *PlanHandler) GetPlan(c *gin.Context) {
	viewer, ok := currentUser(c)
	if !ok {
		return
	}
	planID, ok := pathID(c, "id")
	if !ok {
		return
	}
	plan, err := h.planService.Get(c.Request.Context(), planID)
	if err != nil {
		respondServiceError(c, err, "retrieve plan")
		return
	}
	if plan.IsPrivate && !plan.IsOwner(viewer) && !plan.HasParticipant(viewer) {
		respondServiceError(c, service.ErrPlanNotFound, "retrieve plan")
		return
	}
	c.JSON(http.StatusOK, plan)
}

// DeletePlan godoc
// @Summary Delete one of my plans
// @Tags Plans
// @Security BearerAuth
// @Param id path string true "Plan's ObjectID Hex"
// @Success 200 {object} gin.H
// @Failure 404 {object} gin.H "Plan not found or not owned by caller"
// @Router /plans/{id} [delete]
func (h *PlanHandler) DeletePlan(c *gin.Context) {
	ownerID, ok := currentUser(c)
	if !ok {
		return
	}
	planID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.planService.Delete(c.Request.Context(), planID, ownerID); err != nil {
		respondServiceError(c, err, "delete plan")
		return
	}
	h.broadcast(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// broadcast failures do not fail the request; the write is already committed.
func (h *PlanHandler) broadcast(ctx context.Context) {
	if h.broadcaster == nil {
		return
	}
	if err := h.broadcaster.BroadcastPlans(ctx); err != nil {
		log.Printf("WARN: Failed to broadcast plans: %v", err)
	}
}
