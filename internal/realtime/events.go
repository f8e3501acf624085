package realtime

import (
	"alcyxob/fitmate/internal/service"
	"encoding/json"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Inbound events
const (
	EventCreateChatRoom       = "createChatRoom"
	EventJoinChatRoom         = "joinChatRoom"
	EventLeaveChatRoom        = "leaveChatRoom"
	EventSendMessage          = "sendMessage"
	EventParticipateInPlan    = "participateInPlan"
	EventLeavePlan            = "leave_plan"
	EventRequestNotifications = "requestNotifications"
)

// Outbound events
const (
	EventChatRoomCreated      = "chatRoomCreated"
	EventChatRoomLeft         = "chatRoomLeft"
	EventExistingMessages     = "existingMessages"
	EventReceiveMessage       = "receiveMessage"
	EventParticipateResponse  = "participateResponse"
	EventExercisePlans        = "exercisePlansResponse"
	EventLeavePlanSuccess     = "leave_plan_success"
	EventLeavePlanError       = "leave_plan_error"
	EventPlanUpdated          = "plan_updated"
	EventReceiveNotifications = "receiveNotifications"
	EventError                = "error"
)

// Error codes carried in error frames.
const (
	CodeValidation   = "validation"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeInternal     = "internal"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// --- Inbound payloads ---

type createChatRoomPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

type chatRoomPayload struct {
	ChatRoomID string `json:"chatRoomId"`
	SenderID   string `json:"senderId,omitempty"`
}

type sendMessagePayload struct {
	ChatRoomID string `json:"chatRoomId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
}

type planPayload struct {
	PlanID string `json:"planId"`
	UserID string `json:"userId"`
}

// --- Outbound payloads ---

type chatRoomRef struct {
	ChatRoomID string `json:"chatRoomId"`
}

// ParticipateResponse answers participateInPlan. Code is empty on success.
type ParticipateResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// PlanParticipants is the per-plan entry of the full-refresh plan broadcast.
type PlanParticipants struct {
	ID           primitive.ObjectID   `json:"_id"`
	Participants []primitive.ObjectID `json:"participants"`
}

type planResult struct {
	Plan PlanParticipants `json:"plan"`
}

// ErrorFrame reports a failed event to the requesting session only.
type ErrorFrame struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// errorCode maps a service error onto its error class.
func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrValidation):
		return CodeValidation
	case errors.Is(err, service.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, service.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, service.ErrConflict):
		return CodeConflict
	}
	return CodeInternal
}

// errorMessage never exposes the detail of internal failures.
func errorMessage(err error) string {
	if errorCode(err) == CodeInternal {
		return "internal error"
	}
	return err.Error()
}
