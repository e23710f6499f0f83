package model

import "time"

// WaitlistLock is an advisory lock document serializing waitlist creation
// when concurrent waitlists are disabled.
type WaitlistLock struct {
	ID        string    `bson:"_id" json:"id"`
	Owner     string    `bson:"owner" json:"owner"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func (l *WaitlistLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
