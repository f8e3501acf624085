package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatRoom is a direct conversation between exactly two users.
type ChatRoom struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Participants []primitive.ObjectID `bson:"participants" json:"participants"`
	PairKey      string               `bson:"pairKey" json:"-"` // Unique per unordered pair, see PairKey
	CreatedAt    time.Time            `bson:"createdAt" json:"createdAt"`
}

// Message is a single chat line. Messages are never edited.
type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	SenderID   primitive.ObjectID `bson:"senderId" json:"senderId"`
	ReceiverID primitive.ObjectID `bson:"receiverId" json:"receiverId"`
	Message    string             `bson:"message" json:"message"`
	ChatRoomID primitive.ObjectID `bson:"chatRoomId" json:"chatRoomId"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
}

// PairKey returns the same key for (a, b) and (b, a).
func PairKey(a, b primitive.ObjectID) string {
	x, y := a.Hex(), b.Hex()
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}
