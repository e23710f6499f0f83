package model

import (
	"encoding/json"
	"time"
)

type EndEvent string

const (
	EndEventMaxSignupsReached  EndEvent = "max-signups-reached"
	EndEventDateReached        EndEvent = "date-reached"
	EndEventDateReachedLottery EndEvent = "date-reached-lottery"
	EndEventTrigger            EndEvent = "trigger"
)

func EndEvents() []EndEvent {
	return []EndEvent{
		EndEventMaxSignupsReached,
		EndEventDateReached,
		EndEventDateReachedLottery,
		EndEventTrigger,
	}
}

func (e EndEvent) Valid() bool {
	for _, known := range EndEvents() {
		if e == known {
			return true
		}
	}
	return false
}

// Waitlist is a signup period. Fields holds operator-declared additional
// fields and is stored inline with the core document.
type Waitlist struct {
	ID              string         `bson:"_id" json:"id"`
	EndEvent        EndEvent       `bson:"end_event" json:"endEvent"`
	BeginsAt        time.Time      `bson:"begins_at" json:"beginsAt"`
	EndsAt          *time.Time     `bson:"ends_at,omitempty" json:"endsAt,omitempty"`
	MaxParticipants *int           `bson:"max_participants,omitempty" json:"maxParticipants,omitempty"`
	Fields          map[string]any `bson:",inline" json:"-"`
}

// Overlaps reports whether w intersects the period starting at beginsAt and
// ending at endsAt. A nil end is open-ended on either side.
func (w *Waitlist) Overlaps(beginsAt time.Time, endsAt *time.Time) bool {
	if w.EndsAt != nil && w.EndsAt.Before(beginsAt) {
		return false
	}
	if endsAt != nil && w.BeginsAt.After(*endsAt) {
		return false
	}
	return true
}

func (w *Waitlist) Started(now time.Time) bool {
	return !w.BeginsAt.After(now)
}

func (w *Waitlist) Ended(now time.Time) bool {
	return w.EndsAt != nil && now.After(*w.EndsAt)
}

// Active reports whether now falls inside the waitlist period.
func (w *Waitlist) Active(now time.Time) bool {
	return w.Started(now) && !w.Ended(now)
}

// Full reports whether a max-signups-reached waitlist has no room left.
func (w *Waitlist) Full(members int64) bool {
	if w.EndEvent != EndEventMaxSignupsReached || w.MaxParticipants == nil {
		return false
	}
	return members >= int64(*w.MaxParticipants)
}

func (w Waitlist) MarshalJSON() ([]byte, error) {
	type waitlist Waitlist
	return marshalWithFields(waitlist(w), w.Fields)
}

// marshalWithFields encodes core and flattens extra into the same object.
// Core keys win over extra keys of the same name.
func marshalWithFields(core any, extra map[string]any) ([]byte, error) {
	data, err := json.Marshal(core)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range extra {
		if _, taken := merged[key]; taken {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		merged[key] = raw
	}
	return json.Marshal(merged)
}
