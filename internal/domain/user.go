package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the numeric role flag carried on every user. 0 is a regular member.
type Role int

const (
	RoleMember Role = 0
	RoleAdmin  Role = 1
)

// User represents an account in the directory.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"` // Unique login handle
	Nickname     string             `bson:"nickname" json:"nickname"` // Unique display name
	Name         string             `bson:"name,omitempty" json:"name,omitempty"`
	PasswordHash string             `bson:"passwordHash" json:"-"` // Never expose this via JSON
	PhoneNumber  string             `bson:"phoneNumber" json:"phoneNumber"` // Unique
	Birthdate    *time.Time         `bson:"birthdate,omitempty" json:"birthdate,omitempty"`
	Role         Role               `bson:"role" json:"role"`
	Image        string             `bson:"image,omitempty" json:"-"` // Object storage key of the profile image
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`

	// Follow edges are stored on both sides:
	// B in A.Following <=> A in B.Followers.
	Followers []primitive.ObjectID `bson:"followers" json:"followers"`
	Following []primitive.ObjectID `bson:"following" json:"following"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsFollowing reports whether u follows other.
func (u *User) IsFollowing(other primitive.ObjectID) bool {
	return containsID(u.Following, other)
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
