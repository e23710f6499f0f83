package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func ptr[T any](v T) *T { return &v }

func TestWaitlist_Overlaps(t *testing.T) {
	tests := []struct {
		name     string
		existing Waitlist
		begins   time.Time
		ends     *time.Time
		want     bool
	}{
		{
			name:     "nested interval",
			existing: Waitlist{BeginsAt: t0, EndsAt: ptr(t0.Add(days(14)))},
			begins:   t0,
			ends:     ptr(t0.Add(days(7))),
			want:     true,
		},
		{
			name:     "disjoint after",
			existing: Waitlist{BeginsAt: t0, EndsAt: ptr(t0.Add(days(14)))},
			begins:   t0.Add(days(15)),
			ends:     ptr(t0.Add(days(21))),
			want:     false,
		},
		{
			name:     "disjoint before",
			existing: Waitlist{BeginsAt: t0.Add(days(10)), EndsAt: ptr(t0.Add(days(14)))},
			begins:   t0,
			ends:     ptr(t0.Add(days(5))),
			want:     false,
		},
		{
			name:     "touching end counts as overlap",
			existing: Waitlist{BeginsAt: t0, EndsAt: ptr(t0.Add(days(14)))},
			begins:   t0.Add(days(14)),
			ends:     nil,
			want:     true,
		},
		{
			name:     "open-ended existing conflicts with everything after it starts",
			existing: Waitlist{BeginsAt: t0},
			begins:   t0.Add(days(365)),
			ends:     ptr(t0.Add(days(400))),
			want:     true,
		},
		{
			name:     "open-ended existing starting after new end",
			existing: Waitlist{BeginsAt: t0.Add(days(30))},
			begins:   t0,
			ends:     ptr(t0.Add(days(7))),
			want:     false,
		},
		{
			name:     "open-ended new overlaps any later existing",
			existing: Waitlist{BeginsAt: t0.Add(days(30)), EndsAt: ptr(t0.Add(days(40)))},
			begins:   t0,
			ends:     nil,
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.existing.Overlaps(tt.begins, tt.ends))
		})
	}
}

func TestWaitlist_ActiveAndFull(t *testing.T) {
	w := Waitlist{
		EndEvent:        EndEventMaxSignupsReached,
		BeginsAt:        t0,
		EndsAt:          ptr(t0.Add(days(7))),
		MaxParticipants: ptr(2),
	}

	assert.False(t, w.Active(t0.Add(-time.Second)))
	assert.True(t, w.Active(t0))
	assert.True(t, w.Active(t0.Add(days(7))))
	assert.False(t, w.Active(t0.Add(days(7)+time.Second)))

	assert.False(t, w.Full(1))
	assert.True(t, w.Full(2))

	trigger := Waitlist{EndEvent: EndEventTrigger, BeginsAt: t0}
	assert.False(t, trigger.Full(1_000_000))
	assert.True(t, trigger.Active(t0.Add(days(1000))))
}

func TestEndEvent(t *testing.T) {
	for _, e := range EndEvents() {
		assert.True(t, e.Valid(), e)
	}
	assert.False(t, EndEvent("sold-out").Valid())
}

func TestWaitlistLock_Expired(t *testing.T) {
	l := WaitlistLock{ExpiresAt: t0}
	assert.False(t, l.Expired(t0.Add(-time.Second)))
	assert.True(t, l.Expired(t0))
	assert.True(t, l.Expired(t0.Add(time.Second)))
}

func TestWaitlistUserStatus_Transitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusAccepted))
	assert.True(t, StatusPending.CanTransitionTo(StatusRejected))
	assert.False(t, StatusPending.CanTransitionTo(StatusPending))
	assert.False(t, StatusAccepted.CanTransitionTo(StatusRejected))
	assert.False(t, StatusRejected.CanTransitionTo(StatusAccepted))
}

func TestWaitlist_MarshalJSON_FlattensFields(t *testing.T) {
	w := Waitlist{
		ID:       "wl-1",
		EndEvent: EndEventTrigger,
		BeginsAt: t0,
		Fields:   map[string]any{"campaign": "spring", "id": "ignored"},
	}

	data, err := json.Marshal(w)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "wl-1", out["id"])
	assert.Equal(t, "spring", out["campaign"])
	assert.Equal(t, "trigger", out["endEvent"])
	assert.NotContains(t, out, "maxParticipants")
	assert.NotContains(t, out, "endsAt")
	assert.NotContains(t, out, "Fields")
}

func TestWaitlistUser_BSONInlineFields(t *testing.T) {
	u := WaitlistUser{
		ID:         "wu-1",
		WaitlistID: "wl-1",
		Name:       "Ada",
		Email:      "ada@example.com",
		Status:     StatusPending,
		JoinedAt:   t0,
		Fields:     map[string]any{"referral_code": "XYZ"},
	}

	raw, err := bson.Marshal(u)
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, "XYZ", doc["referral_code"])
	assert.NotContains(t, doc, "left_at")

	var decoded WaitlistUser
	require.NoError(t, bson.Unmarshal(raw, &decoded))
	assert.Equal(t, "XYZ", decoded.Fields["referral_code"])
	assert.False(t, decoded.Left())
}
