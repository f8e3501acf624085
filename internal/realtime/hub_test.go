package realtime

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository/memory"
	"alcyxob/fitmate/internal/service"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type hubFixture struct {
	hub   *Hub
	auth  service.AuthService
	plans service.PlanService
	chat  service.ChatService
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	users := memory.NewUserRepository()
	notifications := service.NewNotificationService(memory.NewNotificationRepository())
	plans := service.NewPlanService(memory.NewPlanRepository(), users, notifications)
	chat := service.NewChatService(memory.NewChatRepository(), users)

	hub := NewHub(chat, plans, notifications, nil, Options{SendBuffer: 32})
	require.NoError(t, hub.Start(context.Background()))
	t.Cleanup(func() { _ = hub.Close() })

	return &hubFixture{
		hub:   hub,
		auth:  service.NewAuthService(users, "secret", time.Hour),
		plans: plans,
		chat:  chat,
	}
}

func (f *hubFixture) user(t *testing.T, nickname string) *domain.User {
	t.Helper()
	_, u, err := f.auth.Signup(context.Background(), service.SignupInput{
		Username:    nickname,
		Password:    "secret1",
		Nickname:    nickname,
		PhoneNumber: "010-" + nickname,
	})
	require.NoError(t, err)
	return u
}

func (f *hubFixture) send(s *Session, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	frame, _ := json.Marshal(Envelope{Event: event, Data: raw})
	f.hub.Dispatch(s, frame)
}

func nextFrame(t *testing.T, s *Session) Envelope {
	t.Helper()
	select {
	case raw := <-s.Outbound():
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(time.Second):
		t.Fatalf("session %s: no frame received", s.ID)
		return Envelope{}
	}
}

func expectEvent(t *testing.T, s *Session, event string, into any) {
	t.Helper()
	env := nextFrame(t, s)
	require.Equal(t, event, env.Event, "payload: %s", env.Data)
	if into != nil {
		require.NoError(t, json.Unmarshal(env.Data, into))
	}
}

func assertSilent(t *testing.T, s *Session) {
	t.Helper()
	select {
	case raw := <-s.Outbound():
		t.Fatalf("session %s: unexpected frame %s", s.ID, raw)
	default:
	}
}

func (f *hubFixture) openRoom(t *testing.T, s *Session, receiver primitive.ObjectID) string {
	t.Helper()
	f.send(s, EventCreateChatRoom, createChatRoomPayload{SenderID: s.UserID.Hex(), ReceiverID: receiver.Hex()})
	var ref chatRoomRef
	expectEvent(t, s, EventChatRoomCreated, &ref)
	require.NotEmpty(t, ref.ChatRoomID)
	return ref.ChatRoomID
}

func (f *hubFixture) joinRoom(t *testing.T, s *Session, roomID string) []service.MessageView {
	t.Helper()
	f.send(s, EventJoinChatRoom, chatRoomPayload{ChatRoomID: roomID, SenderID: s.UserID.Hex()})
	var history []service.MessageView
	expectEvent(t, s, EventExistingMessages, &history)
	return history
}

func TestConnectStartsWithNoRooms(t *testing.T) {
	f := newHubFixture(t)
	alice := f.user(t, "alice")

	s := f.hub.Connect(alice.ID)
	assert.NotEmpty(t, s.ID)
	assert.Empty(t, s.rooms)
	assert.Equal(t, 1, f.hub.SessionCount())

	f.hub.Disconnect(s)
	assert.Equal(t, 0, f.hub.SessionCount())
	select {
	case <-s.Done():
	default:
		t.Fatal("session should be closed after disconnect")
	}
}

func TestCreateChatRoomIsOrderIndependent(t *testing.T) {
	f := newHubFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	sa, sb := f.hub.Connect(alice.ID), f.hub.Connect(bob.ID)

	roomA := f.openRoom(t, sa, bob.ID)
	roomB := f.openRoom(t, sb, alice.ID)
	assert.Equal(t, roomA, roomB)

	// The reply goes to the requester only and nobody is subscribed yet.
	assert.Equal(t, 0, f.hub.RoomSize(roomA))
	assertSilent(t, sa)
	assertSilent(t, sb)
}

func TestMessagesStayInTheirRoomAndEchoToSender(t *testing.T) {
	f := newHubFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	sa, sb, sc := f.hub.Connect(alice.ID), f.hub.Connect(bob.ID), f.hub.Connect(carol.ID)

	roomAB := f.openRoom(t, sa, bob.ID)
	roomAC := f.openRoom(t, sc, alice.ID)
	assert.Empty(t, f.joinRoom(t, sa, roomAB))
	assert.Empty(t, f.joinRoom(t, sb, roomAB))
	assert.Empty(t, f.joinRoom(t, sc, roomAC))

	f.send(sa, EventSendMessage, sendMessagePayload{
		ChatRoomID: roomAB, SenderID: alice.ID.Hex(), ReceiverID: bob.ID.Hex(), Message: "hi bob",
	})

	for _, s := range []*Session{sa, sb} {
		var msg service.MessageView
		expectEvent(t, s, EventReceiveMessage, &msg)
		assert.Equal(t, "hi bob", msg.Message)
		assert.Equal(t, roomAB, msg.ChatRoomID)
		assert.Equal(t, "alice", msg.Sender.Nickname)
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.Timestamp.IsZero())
	}
	assertSilent(t, sc)
}

func TestMessagesArriveInPersistedOrder(t *testing.T) {
	f := newHubFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	sa, sb := f.hub.Connect(alice.ID), f.hub.Connect(bob.ID)

	room := f.openRoom(t, sa, bob.ID)
	f.joinRoom(t, sa, room)
	f.joinRoom(t, sb, room)

	for i := 0; i < 5; i++ {
		f.send(sa, EventSendMessage, sendMessagePayload{
			ChatRoomID: room, SenderID: alice.ID.Hex(), ReceiverID: bob.ID.Hex(), Message: fmt.Sprintf("m%d", i),
		})
	}

	received := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		var msg service.MessageView
		expectEvent(t, sb, EventReceiveMessage, &msg)
		received = append(received, msg.Message)
	}
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4"}, received)

	// A late joiner gets the same order from history.
	late := f.hub.Connect(bob.ID)
	history := f.joinRoom(t, late, room)
	require.Len(t, history, 5)
	for i, msg := range history {
		assert.Equal(t, fmt.Sprintf("m%d", i), msg.Message)
		assert.Equal(t, alice.ID.Hex(), msg.Sender.ID)
	}
}

func TestLeaveChatRoomStopsDelivery(t *testing.T) {
	f := newHubFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	sa, sb := f.hub.Connect(alice.ID), f.hub.Connect(bob.ID)

	room := f.openRoom(t, sa, bob.ID)
	f.joinRoom(t, sa, room)
	f.joinRoom(t, sb, room)

	f.send(sb, EventLeaveChatRoom, chatRoomPayload{ChatRoomID: room})
	var ref chatRoomRef
	expectEvent(t, sb, EventChatRoomLeft, &ref)
	assert.Equal(t, room, ref.ChatRoomID)

	f.send(sa, EventSendMessage, sendMessagePayload{
		ChatRoomID: room, SenderID: alice.ID.Hex(), ReceiverID: bob.ID.Hex(), Message: "anyone?",
	})
	expectEvent(t, sa, EventReceiveMessage, nil)
	assertSilent(t, sb)
}

func TestBroadcastToEmptyRoomIsNoop(t *testing.T) {
	f := newHubFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	sa, sb := f.hub.Connect(alice.ID), f.hub.Connect(bob.ID)

	room := f.openRoom(t, sa, bob.ID)
	f.joinRoom(t, sb, room)
	f.hub.Disconnect(sb)
	assert.Equal(t, 0, f.hub.RoomSize(room))

	// Sender never joined, so the persisted message reaches nobody.
	f.send(sa, EventSendMessage, sendMessagePayload{
		ChatRoomID: room, SenderID: alice.ID.Hex(), ReceiverID: bob.ID.Hex(), Message: "hello?",
	})
	assertSilent(t, sa)

	history, err := f.chat.History(context.Background(), mustID(t, room))
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestJoinUnknownRoomIsNotFound(t *testing.T) {
	f := newHubFixture(t)
	alice := f.user(t, "alice")
	sa := f.hub.Connect(alice.ID)

	f.send(sa, EventJoinChatRoom, chatRoomPayload{ChatRoomID: primitive.NewObjectID().Hex(), SenderID: alice.ID.Hex()})
	var frame ErrorFrame
	expectEvent(t, sa, EventError, &frame)
	assert.Equal(t, EventJoinChatRoom, frame.Event)
	assert.Equal(t, CodeNotFound, frame.Code)
}

func TestOutsiderCannotJoinRoom(t *testing.T) {
	f := newHubFixture(t)
	alice, bob, mallory := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "mallory")
	sa, sm := f.hub.Connect(alice.ID), f.hub.Connect(mallory.ID)
	room := f.openRoom(t, sa, bob.ID)

	f.send(sm, EventJoinChatRoom, chatRoomPayload{ChatRoomID: room})
	var frame ErrorFrame
	expectEvent(t, sm, EventError, &frame)
	assert.Equal(t, CodeForbidden, frame.Code)
	assert.Equal(t, 0, f.hub.RoomSize(room))
}

func TestPayloadIdentityMustMatchSession(t *testing.T) {
	f := newHubFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	sa := f.hub.Connect(alice.ID)

	f.send(sa, EventCreateChatRoom, createChatRoomPayload{SenderID: bob.ID.Hex(), ReceiverID: alice.ID.Hex()})
	var frame ErrorFrame
	expectEvent(t, sa, EventError, &frame)
	assert.Equal(t, CodeUnauthorized, frame.Code)

	f.send(sa, EventRequestNotifications, bob.ID.Hex())
	expectEvent(t, sa, EventError, &frame)
	assert.Equal(t, CodeUnauthorized, frame.Code)
}

func TestMalformedAndUnknownFrames(t *testing.T) {
	f := newHubFixture(t)
	alice := f.user(t, "alice")
	sa := f.hub.Connect(alice.ID)

	f.hub.Dispatch(sa, []byte("not json"))
	var frame ErrorFrame
	expectEvent(t, sa, EventError, &frame)
	assert.Equal(t, CodeValidation, frame.Code)

	f.send(sa, "dance", map[string]string{})
	expectEvent(t, sa, EventError, &frame)
	assert.Equal(t, "dance", frame.Event)
	assert.Equal(t, CodeValidation, frame.Code)

	f.send(sa, EventSendMessage, sendMessagePayload{ChatRoomID: "nope", SenderID: alice.ID.Hex()})
	expectEvent(t, sa, EventError, &frame)
	assert.Equal(t, CodeValidation, frame.Code)
}

func TestParticipateBroadcastsAllPlans(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture(t)
	bob, carol, dave := f.user(t, "bob"), f.user(t, "carol"), f.user(t, "dave")
	sb, sc, sd := f.hub.Connect(bob.ID), f.hub.Connect(carol.ID), f.hub.Connect(dave.ID)

	plan, err := f.plans.Create(ctx, bob.ID, service.PlanInput{
		Date: time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC), Exercise: "cycling", Location: "park",
		SelectedParticipants: 2, StartTime: "06:00", EndTime: "07:30",
	})
	require.NoError(t, err)

	f.send(sc, EventParticipateInPlan, planPayload{PlanID: plan.ID.Hex(), UserID: carol.ID.Hex()})

	var resp ParticipateResponse
	expectEvent(t, sc, EventParticipateResponse, &resp)
	assert.True(t, resp.Success)

	for _, s := range []*Session{sb, sc, sd} {
		var summary []PlanParticipants
		expectEvent(t, s, EventExercisePlans, &summary)
		require.Len(t, summary, 1)
		assert.Equal(t, plan.ID, summary[0].ID)
		assert.Equal(t, []primitive.ObjectID{carol.ID}, summary[0].Participants)
	}

	f.send(sb, EventRequestNotifications, bob.ID.Hex())
	var notes []domain.Notification
	expectEvent(t, sb, EventReceiveNotifications, &notes)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Message, "carol")

	// Second attempt is a conflict and broadcasts nothing.
	f.send(sc, EventParticipateInPlan, planPayload{PlanID: plan.ID.Hex(), UserID: carol.ID.Hex()})
	expectEvent(t, sc, EventParticipateResponse, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, CodeConflict, resp.Code)
	assertSilent(t, sb)
	assertSilent(t, sd)

	// The owner is always rejected.
	f.send(sb, EventParticipateInPlan, planPayload{PlanID: plan.ID.Hex(), UserID: bob.ID.Hex()})
	expectEvent(t, sb, EventParticipateResponse, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, CodeForbidden, resp.Code)

	f.send(sd, EventParticipateInPlan, planPayload{PlanID: primitive.NewObjectID().Hex(), UserID: dave.ID.Hex()})
	expectEvent(t, sd, EventParticipateResponse, &resp)
	assert.Equal(t, CodeNotFound, resp.Code)
}

func TestLeavePlan(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture(t)
	bob, carol := f.user(t, "bob"), f.user(t, "carol")
	sb, sc := f.hub.Connect(bob.ID), f.hub.Connect(carol.ID)

	plan, err := f.plans.Create(ctx, bob.ID, service.PlanInput{
		Date: time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC), Exercise: "yoga", Location: "studio",
		SelectedParticipants: 3, StartTime: "19:00", EndTime: "20:00",
	})
	require.NoError(t, err)
	_, err = f.plans.Participate(ctx, plan.ID, carol.ID)
	require.NoError(t, err)

	f.send(sc, EventLeavePlan, planPayload{PlanID: plan.ID.Hex(), UserID: carol.ID.Hex()})

	var result planResult
	expectEvent(t, sc, EventLeavePlanSuccess, &result)
	assert.Equal(t, plan.ID, result.Plan.ID)
	assert.Empty(t, result.Plan.Participants)
	for _, s := range []*Session{sb, sc} {
		expectEvent(t, s, EventPlanUpdated, &result)
		assert.Equal(t, plan.ID, result.Plan.ID)
	}

	// Leaving again is idempotent.
	f.send(sc, EventLeavePlan, planPayload{PlanID: plan.ID.Hex(), UserID: carol.ID.Hex()})
	expectEvent(t, sc, EventLeavePlanSuccess, &result)
	assert.Empty(t, result.Plan.Participants)
	expectEvent(t, sc, EventPlanUpdated, nil)

	f.send(sc, EventLeavePlan, planPayload{PlanID: primitive.NewObjectID().Hex(), UserID: carol.ID.Hex()})
	var frame ErrorFrame
	expectEvent(t, sc, EventLeavePlanError, &frame)
	assert.Equal(t, CodeNotFound, frame.Code)
}

func TestPrivatePlanUpdateCarriesOnlyIDs(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture(t)
	bob, carol, eve := f.user(t, "bob"), f.user(t, "carol"), f.user(t, "eve")
	sc, se := f.hub.Connect(carol.ID), f.hub.Connect(eve.ID)

	plan, err := f.plans.Create(ctx, bob.ID, service.PlanInput{
		Date: time.Date(2026, 11, 4, 0, 0, 0, 0, time.UTC), Exercise: "running", Title: "secret run",
		Location: "my home address", SelectedParticipants: 2, StartTime: "05:00", EndTime: "06:00",
		IsPrivate: true,
	})
	require.NoError(t, err)
	_, err = f.plans.Participate(ctx, plan.ID, carol.ID)
	require.NoError(t, err)

	f.send(sc, EventLeavePlan, planPayload{PlanID: plan.ID.Hex(), UserID: carol.ID.Hex()})
	expectEvent(t, sc, EventLeavePlanSuccess, nil)

	env := nextFrame(t, se)
	require.Equal(t, EventPlanUpdated, env.Event)
	assert.NotContains(t, string(env.Data), "secret run")
	assert.NotContains(t, string(env.Data), "my home address")
	assert.JSONEq(t, fmt.Sprintf(`{"plan":{"_id":%q,"participants":[]}}`, plan.ID.Hex()), string(env.Data))
}

func TestRoomIDsAreCaseInsensitive(t *testing.T) {
	f := newHubFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	sa, sb := f.hub.Connect(alice.ID), f.hub.Connect(bob.ID)

	room := f.openRoom(t, sa, bob.ID)
	f.joinRoom(t, sb, room)
	f.joinRoom(t, sa, strings.ToUpper(room))
	assert.Equal(t, 2, f.hub.RoomSize(room))

	f.send(sa, EventSendMessage, sendMessagePayload{
		ChatRoomID: strings.ToUpper(room), SenderID: alice.ID.Hex(), ReceiverID: bob.ID.Hex(), Message: "shouting",
	})
	for _, s := range []*Session{sa, sb} {
		var msg service.MessageView
		expectEvent(t, s, EventReceiveMessage, &msg)
		assert.Equal(t, "shouting", msg.Message)
		assert.Equal(t, room, msg.ChatRoomID)
	}

	f.send(sb, EventLeaveChatRoom, chatRoomPayload{ChatRoomID: strings.ToUpper(room)})
	var ref chatRoomRef
	expectEvent(t, sb, EventChatRoomLeft, &ref)
	assert.Equal(t, room, ref.ChatRoomID)
	assert.Equal(t, 1, f.hub.RoomSize(room))

	f.send(sb, EventLeaveChatRoom, chatRoomPayload{ChatRoomID: "not-a-room"})
	var frame ErrorFrame
	expectEvent(t, sb, EventError, &frame)
	assert.Equal(t, CodeValidation, frame.Code)
}

func TestRoomLocksAreReleased(t *testing.T) {
	f := newHubFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	sa, sb := f.hub.Connect(alice.ID), f.hub.Connect(bob.ID)

	room := f.openRoom(t, sa, bob.ID)
	f.joinRoom(t, sa, room)
	f.joinRoom(t, sb, room)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.send(sa, EventSendMessage, sendMessagePayload{
				ChatRoomID: room, SenderID: alice.ID.Hex(), ReceiverID: bob.ID.Hex(), Message: fmt.Sprintf("m%d", i),
			})
		}(i)
	}
	wg.Wait()

	f.hub.roomLocksMu.Lock()
	assert.Empty(t, f.hub.roomLocks)
	f.hub.roomLocksMu.Unlock()

	unlock := f.hub.lockRoom(room)
	f.hub.roomLocksMu.Lock()
	assert.Len(t, f.hub.roomLocks, 1)
	f.hub.roomLocksMu.Unlock()
	unlock()
	f.hub.roomLocksMu.Lock()
	assert.Empty(t, f.hub.roomLocks)
	f.hub.roomLocksMu.Unlock()
}

// queuedRelay holds broadcasts until flush, like a relay whose subscriber
// runs behind the publisher.
type queuedRelay struct {
	mu      sync.Mutex
	deliver func(Broadcast)
	pending []Broadcast
}

func (r *queuedRelay) Publish(_ context.Context, b Broadcast) error {
	r.mu.Lock()
	r.pending = append(r.pending, b)
	r.mu.Unlock()
	return nil
}

func (r *queuedRelay) Subscribe(_ context.Context, deliver func(Broadcast)) error {
	r.mu.Lock()
	r.deliver = deliver
	r.mu.Unlock()
	return nil
}

func (r *queuedRelay) Close() error { return nil }

func (r *queuedRelay) flush() {
	r.mu.Lock()
	pending, deliver := r.pending, r.deliver
	r.pending = nil
	r.mu.Unlock()
	for _, b := range pending {
		deliver(b)
	}
}

func TestJoinSkipsLiveCopyOfHistoryMessage(t *testing.T) {
	f := newHubFixture(t)
	relay := &queuedRelay{}
	hub := NewHub(f.chat, f.plans, nil, relay, Options{SendBuffer: 32})
	require.NoError(t, hub.Start(context.Background()))
	t.Cleanup(func() { _ = hub.Close() })
	f.hub = hub

	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	sa, sb := hub.Connect(alice.ID), hub.Connect(bob.ID)
	room := f.openRoom(t, sa, bob.ID)
	f.joinRoom(t, sa, room)

	f.send(sa, EventSendMessage, sendMessagePayload{
		ChatRoomID: room, SenderID: alice.ID.Hex(), ReceiverID: bob.ID.Hex(), Message: "early",
	})

	// The live frame for "early" is still in flight when bob joins.
	history := f.joinRoom(t, sb, room)
	require.Len(t, history, 1)
	assert.Equal(t, "early", history[0].Message)

	relay.flush()
	var msg service.MessageView
	expectEvent(t, sa, EventReceiveMessage, &msg)
	assert.Equal(t, "early", msg.Message)
	assertSilent(t, sb)

	f.send(sa, EventSendMessage, sendMessagePayload{
		ChatRoomID: room, SenderID: alice.ID.Hex(), ReceiverID: bob.ID.Hex(), Message: "later",
	})
	relay.flush()
	for _, s := range []*Session{sa, sb} {
		expectEvent(t, s, EventReceiveMessage, &msg)
		assert.Equal(t, "later", msg.Message)
	}
}

func TestSlowSessionIsClosed(t *testing.T) {
	f := newHubFixture(t)
	hub := NewHub(f.chat, f.plans, nil, nil, Options{SendBuffer: 1})
	require.NoError(t, hub.Start(context.Background()))

	s := hub.Connect(primitive.NewObjectID())
	frame, err := encodeFrame(EventPlanUpdated, map[string]string{})
	require.NoError(t, err)

	hub.deliver(Broadcast{Scope: ScopeAll, Frame: frame})
	hub.deliver(Broadcast{Scope: ScopeAll, Frame: frame})

	select {
	case <-s.Done():
	default:
		t.Fatal("session with a full buffer should be closed")
	}
}

func TestDecodeBroadcast(t *testing.T) {
	_, err := decodeBroadcast([]byte(`{"scope":"room","frame":{"event":"x"}}`))
	assert.Error(t, err)
	_, err = decodeBroadcast([]byte(`{"scope":"everywhere","frame":{"event":"x"}}`))
	assert.Error(t, err)

	b, err := decodeBroadcast([]byte(`{"scope":"room","roomId":"r1","messageId":"m1","frame":{"event":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, ScopeRoom, b.Scope)
	assert.Equal(t, "m1", b.MessageID)
	assert.JSONEq(t, `{"event":"x"}`, string(b.Frame))
}

func mustID(t *testing.T, hex string) primitive.ObjectID {
	t.Helper()
	id, err := primitive.ObjectIDFromHex(hex)
	require.NoError(t, err)
	return id
}
