package model

import "time"

type WaitlistUserStatus string

const (
	StatusPending  WaitlistUserStatus = "pending"
	StatusAccepted WaitlistUserStatus = "accepted"
	StatusRejected WaitlistUserStatus = "rejected"
)

func (s WaitlistUserStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// CanTransitionTo reports whether next is reachable from s.
// pending -> accepted | rejected; terminal states have no exits.
func (s WaitlistUserStatus) CanTransitionTo(next WaitlistUserStatus) bool {
	return s == StatusPending && next.Terminal()
}

type WaitlistUser struct {
	ID         string             `bson:"_id" json:"id"`
	WaitlistID string             `bson:"waitlist_id" json:"waitlistId"`
	Name       string             `bson:"name" json:"name"`
	Email      string             `bson:"email" json:"email"`
	Status     WaitlistUserStatus `bson:"status" json:"status"`
	JoinedAt   time.Time          `bson:"joined_at" json:"joinedAt"`
	LeftAt     *time.Time         `bson:"left_at,omitempty" json:"leftAt,omitempty"`
	Fields     map[string]any     `bson:",inline" json:"-"`
}

// Left reports whether the user has been accepted or rejected.
func (u *WaitlistUser) Left() bool {
	return u.LeftAt != nil
}

func (u WaitlistUser) MarshalJSON() ([]byte, error) {
	type waitlistUser WaitlistUser
	return marshalWithFields(waitlistUser(u), u.Fields)
}
