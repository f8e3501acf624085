package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Plan is an exercise-session posting that other users can join.
type Plan struct {
	ID                   primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	UserID               primitive.ObjectID   `bson:"userId" json:"userId"` // Owner
	Date                 time.Time            `bson:"selected_date" json:"selected_date"`
	Exercise             string               `bson:"selected_exercise" json:"selected_exercise"`
	Title                string               `bson:"title" json:"title"`
	SelectedParticipants int                  `bson:"selected_participants" json:"selected_participants"` // Target head count, not enforced
	StartTime            string               `bson:"selected_startTime" json:"selected_startTime"`         // Wall clock, e.g. "18:30"
	EndTime              string               `bson:"selected_endTime" json:"selected_endTime"`
	Location             string               `bson:"selected_location" json:"selected_location"`
	IsPrivate            bool                 `bson:"isPrivate" json:"isPrivate"`
	Participants         []primitive.ObjectID `bson:"participants" json:"participants"` // Insertion ordered, never contains the owner
	CreatedAt            time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// HasParticipant reports whether userID already joined the plan.
func (p *Plan) HasParticipant(userID primitive.ObjectID) bool {
	return containsID(p.Participants, userID)
}

// IsOwner reports whether userID created the plan.
func (p *Plan) IsOwner(userID primitive.ObjectID) bool {
	return p.UserID == userID
}
