package realtime

import (
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session is one live connection bound to an authenticated user.
type Session struct {
	ID     string
	UserID primitive.ObjectID

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// rooms maps each joined room to the message ids its history already
	// delivered. Guarded by the owning Hub's mutex.
	rooms map[string]map[string]struct{}
}

func newSession(userID primitive.ObjectID, buffer int) *Session {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		rooms:  make(map[string]map[string]struct{}),
	}
}

// Outbound yields encoded frames queued for this session.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// Done is closed once the session is shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// enqueue never blocks. A session that cannot keep up is closed.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		s.close()
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
