package realtime

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/service"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	defaultSendBuffer   = 64
	defaultEventTimeout = 10 * time.Second

	// joinSeenWindow caps how many history message ids a join remembers
	// for suppressing live frames that were already in the history.
	joinSeenWindow = 64
)

// Options tunes a Hub. Zero values fall back to defaults.
type Options struct {
	SendBuffer   int
	EventTimeout time.Duration
}

// Hub tracks live sessions and their chat room subscriptions, and turns
// inbound events into store mutations followed by broadcasts.
// Subscription state lives only in memory; clients rejoin after a restart.
type Hub struct {
	chat          service.ChatService
	plans         service.PlanService
	notifications service.NotificationService
	relay         Relay
	opts          Options

	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[*Session]struct{}

	roomLocksMu sync.Mutex
	roomLocks   map[string]*roomMutex
}

// roomMutex is dropped from Hub.roomLocks once nobody holds or waits on it.
type roomMutex struct {
	sync.Mutex
	refs int
}

// NewHub creates a hub. relay may be nil for a single-instance deployment.
func NewHub(chat service.ChatService, plans service.PlanService, notifications service.NotificationService, relay Relay, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = defaultEventTimeout
	}
	if relay == nil {
		relay = NewLocalRelay()
	}
	return &Hub{
		chat:          chat,
		plans:         plans,
		notifications: notifications,
		relay:         relay,
		opts:          opts,
		sessions:      make(map[string]*Session),
		rooms:         make(map[string]map[*Session]struct{}),
		roomLocks:     make(map[string]*roomMutex),
	}
}

// Start attaches the hub to its relay. Call once before accepting connections.
func (h *Hub) Start(ctx context.Context) error {
	return h.relay.Subscribe(ctx, h.deliver)
}

// Close detaches the hub from its relay and shuts every session down.
func (h *Hub) Close() error {
	h.mu.Lock()
	for _, s := range h.sessions {
		s.close()
	}
	h.sessions = make(map[string]*Session)
	h.rooms = make(map[string]map[*Session]struct{})
	h.mu.Unlock()
	return h.relay.Close()
}

// --- Registry ---

// Connect registers a new session for an authenticated user. No rooms are joined.
func (h *Hub) Connect(userID primitive.ObjectID) *Session {
	s := newSession(userID, h.opts.SendBuffer)
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	log.Printf("INFO: Session %s connected for user %s", s.ID, userID.Hex())
	return s
}

// Disconnect drops every room subscription of s. Nothing is persisted.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	for roomID := range s.rooms {
		h.removeFromRoomLocked(roomID, s)
	}
	delete(h.sessions, s.ID)
	h.mu.Unlock()
	s.close()
	log.Printf("INFO: Session %s disconnected", s.ID)
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// RoomSize reports how many sessions are subscribed to roomID.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// join subscribes s to roomID. seen holds ids of messages s already got
// from the history, which later live frames must not repeat.
func (h *Hub) join(roomID string, s *Session, seen map[string]struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.ID]; !ok {
		return
	}
	members := h.rooms[roomID]
	if members == nil {
		members = make(map[*Session]struct{})
		h.rooms[roomID] = members
	}
	members[s] = struct{}{}
	s.rooms[roomID] = seen
}

func (h *Hub) leave(roomID string, s *Session) {
	h.mu.Lock()
	h.removeFromRoomLocked(roomID, s)
	h.mu.Unlock()
}

func (h *Hub) removeFromRoomLocked(roomID string, s *Session) {
	delete(s.rooms, roomID)
	members := h.rooms[roomID]
	if members == nil {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// lockRoom serializes persist+broadcast per room so that delivery order
// matches write order. Call the returned func to unlock.
func (h *Hub) lockRoom(roomID string) func() {
	h.roomLocksMu.Lock()
	l, ok := h.roomLocks[roomID]
	if !ok {
		l = &roomMutex{}
		h.roomLocks[roomID] = l
	}
	l.refs++
	h.roomLocksMu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		h.roomLocksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.roomLocks, roomID)
		}
		h.roomLocksMu.Unlock()
	}
}

// --- Delivery ---

// deliver is the relay callback. An empty audience is a silent no-op.
func (h *Hub) deliver(b Broadcast) {
	h.mu.RLock()
	var targets []*Session
	switch b.Scope {
	case ScopeRoom:
		targets = make([]*Session, 0, len(h.rooms[b.RoomID]))
		for s := range h.rooms[b.RoomID] {
			if b.MessageID != "" {
				if _, seen := s.rooms[b.RoomID][b.MessageID]; seen {
					continue
				}
			}
			targets = append(targets, s)
		}
	case ScopeAll:
		targets = make([]*Session, 0, len(h.sessions))
		for _, s := range h.sessions {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(b.Frame) {
			log.Printf("WARN: Dropped frame for session %s (closed or send buffer full)", s.ID)
		}
	}
}

func (h *Hub) publish(ctx context.Context, scope Scope, roomID, event string, data any) error {
	frame, err := encodeFrame(event, data)
	if err != nil {
		return err
	}
	return h.relay.Publish(ctx, Broadcast{Scope: scope, RoomID: roomID, Frame: frame})
}

func (h *Hub) reply(s *Session, event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		log.Printf("ERROR: Failed to encode %s for session %s: %v", event, s.ID, err)
		return
	}
	s.enqueue(frame)
}

func (h *Hub) replyError(s *Session, event string, err error) {
	code := errorCode(err)
	if code == CodeInternal {
		log.Printf("ERROR: Event %s from session %s failed: %v", event, s.ID, err)
	}
	h.reply(s, EventError, ErrorFrame{Event: event, Code: code, Message: errorMessage(err)})
}

// BroadcastPlans sends every plan's participant list to all sessions.
// This is a full refresh, O(total plans) per call.
func (h *Hub) BroadcastPlans(ctx context.Context) error {
	plans, err := h.plans.ListAll(ctx)
	if err != nil {
		return err
	}
	summary := make([]PlanParticipants, 0, len(plans))
	for i := range plans {
		summary = append(summary, participantsOf(&plans[i]))
	}
	return h.publish(ctx, ScopeAll, "", EventExercisePlans, summary)
}

func participantsOf(p *domain.Plan) PlanParticipants {
	participants := p.Participants
	if participants == nil {
		participants = []primitive.ObjectID{}
	}
	return PlanParticipants{ID: p.ID, Participants: participants}
}

// --- Dispatch ---

// Dispatch handles one inbound frame from s. It is safe to call from many
// goroutines; a failing or panicking handler only affects its own reply.
func (h *Hub) Dispatch(s *Session, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		h.replyError(s, "", fmt.Errorf("%w: malformed frame", service.ErrValidation))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic handling %s for session %s: %v\n%s", env.Event, s.ID, r, debug.Stack())
			h.replyError(s, env.Event, fmt.Errorf("panic: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.EventTimeout)
	defer cancel()

	var err error
	switch env.Event {
	case EventCreateChatRoom:
		err = h.handleCreateChatRoom(ctx, s, env.Data)
	case EventJoinChatRoom:
		err = h.handleJoinChatRoom(ctx, s, env.Data)
	case EventLeaveChatRoom:
		err = h.handleLeaveChatRoom(s, env.Data)
	case EventSendMessage:
		err = h.handleSendMessage(ctx, s, env.Data)
	case EventParticipateInPlan:
		h.handleParticipate(ctx, s, env.Data)
	case EventLeavePlan:
		h.handleLeavePlan(ctx, s, env.Data)
	case EventRequestNotifications:
		err = h.handleRequestNotifications(ctx, s, env.Data)
	default:
		err = fmt.Errorf("%w: unknown event %q", service.ErrValidation, env.Event)
	}
	if err != nil {
		h.replyError(s, env.Event, err)
	}
}

func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing payload", service.ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed payload", service.ErrValidation)
	}
	return nil
}

func parseID(field, value string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid %s", service.ErrValidation, field)
	}
	return id, nil
}

// actingUser parses a payload user id and requires it to be the session's own user.
func actingUser(s *Session, field, value string) (primitive.ObjectID, error) {
	id, err := parseID(field, value)
	if err != nil {
		return id, err
	}
	if id != s.UserID {
		return primitive.NilObjectID, fmt.Errorf("%w: %s does not match the authenticated user", service.ErrUnauthorized, field)
	}
	return id, nil
}

// --- Chat handlers ---

func (h *Hub) handleCreateChatRoom(ctx context.Context, s *Session, data json.RawMessage) error {
	var p createChatRoomPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	sender, err := actingUser(s, "senderId", p.SenderID)
	if err != nil {
		return err
	}
	receiver, err := parseID("receiverId", p.ReceiverID)
	if err != nil {
		return err
	}

	room, err := h.chat.OpenRoom(ctx, sender, receiver)
	if err != nil {
		return err
	}
	h.reply(s, EventChatRoomCreated, chatRoomRef{ChatRoomID: room.ID.Hex()})
	return nil
}

func (h *Hub) handleJoinChatRoom(ctx context.Context, s *Session, data json.RawMessage) error {
	var p chatRoomPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	roomID, err := parseID("chatRoomId", p.ChatRoomID)
	if err != nil {
		return err
	}
	if p.SenderID != "" {
		if _, err := actingUser(s, "senderId", p.SenderID); err != nil {
			return err
		}
	}

	room, err := h.chat.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !isRoomMember(room, s.UserID) {
		return service.ErrNotRoomMember
	}

	// The room lock keeps a concurrent send from missing both the history
	// and the live stream. An asynchronous relay may still deliver a frame
	// for a message already in the history; deliver skips those ids.
	key := roomID.Hex()
	unlock := h.lockRoom(key)
	defer unlock()

	history, err := h.chat.History(ctx, roomID)
	if err != nil {
		return err
	}
	h.join(key, s, historyTail(history))
	h.reply(s, EventExistingMessages, history)
	return nil
}

func historyTail(history []service.MessageView) map[string]struct{} {
	tail := history
	if len(tail) > joinSeenWindow {
		tail = tail[len(tail)-joinSeenWindow:]
	}
	seen := make(map[string]struct{}, len(tail))
	for _, m := range tail {
		seen[m.ID] = struct{}{}
	}
	return seen
}

func (h *Hub) handleLeaveChatRoom(s *Session, data json.RawMessage) error {
	var p chatRoomPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	roomID, err := parseID("chatRoomId", p.ChatRoomID)
	if err != nil {
		return err
	}
	h.leave(roomID.Hex(), s)
	h.reply(s, EventChatRoomLeft, chatRoomRef{ChatRoomID: roomID.Hex()})
	return nil
}

func (h *Hub) handleSendMessage(ctx context.Context, s *Session, data json.RawMessage) error {
	var p sendMessagePayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	roomID, err := parseID("chatRoomId", p.ChatRoomID)
	if err != nil {
		return err
	}
	sender, err := actingUser(s, "senderId", p.SenderID)
	if err != nil {
		return err
	}
	receiver, err := parseID("receiverId", p.ReceiverID)
	if err != nil {
		return err
	}

	key := roomID.Hex()
	unlock := h.lockRoom(key)
	defer unlock()

	msg, err := h.chat.Send(ctx, roomID, sender, receiver, p.Message)
	if err != nil {
		return err
	}
	// The persisted message goes out, not the request.
	frame, err := encodeFrame(EventReceiveMessage, msg)
	if err != nil {
		return err
	}
	return h.relay.Publish(ctx, Broadcast{Scope: ScopeRoom, RoomID: key, MessageID: msg.ID, Frame: frame})
}

func isRoomMember(room *domain.ChatRoom, userID primitive.ObjectID) bool {
	for _, p := range room.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// --- Plan handlers ---

// handleParticipate answers with participateResponse in every case.
func (h *Hub) handleParticipate(ctx context.Context, s *Session, data json.RawMessage) {
	fail := func(err error) {
		if errorCode(err) == CodeInternal {
			log.Printf("ERROR: participateInPlan from session %s failed: %v", s.ID, err)
		}
		h.reply(s, EventParticipateResponse, ParticipateResponse{
			Success: false,
			Code:    errorCode(err),
			Message: errorMessage(err),
		})
	}

	var p planPayload
	if err := decodePayload(data, &p); err != nil {
		fail(err)
		return
	}
	userID, err := actingUser(s, "userId", p.UserID)
	if err != nil {
		fail(err)
		return
	}
	planID, err := parseID("planId", p.PlanID)
	if err != nil {
		fail(err)
		return
	}

	if _, err := h.plans.Participate(ctx, planID, userID); err != nil {
		fail(err)
		return
	}
	h.reply(s, EventParticipateResponse, ParticipateResponse{Success: true, Message: "Participation successful"})

	if err := h.BroadcastPlans(ctx); err != nil {
		log.Printf("ERROR: Failed to broadcast plans after participation in %s: %v", planID.Hex(), err)
	}
}

// handleLeavePlan answers with leave_plan_success or leave_plan_error.
func (h *Hub) handleLeavePlan(ctx context.Context, s *Session, data json.RawMessage) {
	fail := func(err error) {
		if errorCode(err) == CodeInternal {
			log.Printf("ERROR: leave_plan from session %s failed: %v", s.ID, err)
		}
		h.reply(s, EventLeavePlanError, ErrorFrame{Event: EventLeavePlan, Code: errorCode(err), Message: errorMessage(err)})
	}

	var p planPayload
	if err := decodePayload(data, &p); err != nil {
		fail(err)
		return
	}
	userID, err := actingUser(s, "userId", p.UserID)
	if err != nil {
		fail(err)
		return
	}
	planID, err := parseID("planId", p.PlanID)
	if err != nil {
		fail(err)
		return
	}

	plan, err := h.plans.Leave(ctx, planID, userID)
	if err != nil {
		fail(err)
		return
	}
	// Every session gets this, so only ids go out; private plan details stay
	// with the REST endpoints that check visibility.
	result := planResult{Plan: participantsOf(plan)}
	h.reply(s, EventLeavePlanSuccess, result)

	if err := h.publish(ctx, ScopeAll, "", EventPlanUpdated, result); err != nil {
		log.Printf("ERROR: Failed to broadcast plan %s update: %v", planID.Hex(), err)
	}
}

// --- Notification handlers ---

// handleRequestNotifications accepts either a bare user id string or {"userId": ...}.
func (h *Hub) handleRequestNotifications(ctx context.Context, s *Session, data json.RawMessage) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var p planPayload
		if err := decodePayload(data, &p); err != nil {
			return err
		}
		raw = p.UserID
	}
	userID, err := actingUser(s, "userId", raw)
	if err != nil {
		return err
	}

	notes, err := h.notifications.List(ctx, userID)
	if err != nil {
		return err
	}
	h.reply(s, EventReceiveNotifications, notes)
	return nil
}
