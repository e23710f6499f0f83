package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"waitgate/pkg/kafka"
	"waitgate/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	messages []kafka.Message
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, msg kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func TestKafkaProvisioner_RequestAccount(t *testing.T) {
	pub := &recordingPublisher{}
	leftAt := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	u := &model.WaitlistUser{
		ID:         "u-1",
		WaitlistID: "w-1",
		Name:       "Ada",
		Email:      "ada@example.com",
		Status:     model.StatusAccepted,
		LeftAt:     &leftAt,
		Fields:     map[string]any{"referrer": "friend"},
	}

	require.NoError(t, NewKafkaProvisioner(pub).RequestAccount(context.Background(), u))
	require.Len(t, pub.messages, 1)

	msg := pub.messages[0]
	assert.Equal(t, "ada@example.com", msg.Key)
	assert.Equal(t, EventAccountProvisionRequested, msg.GetEventType())
	assert.Equal(t, provisionEventID("u-1"), msg.GetEventID())
	assert.Equal(t, leftAt, msg.Timestamp)
	assert.Empty(t, msg.GetCorrelationID())
	assert.Equal(t, "1", msg.Headers[kafka.HeaderSchemaVersion])

	var event AccountProvisionRequested
	require.NoError(t, msg.DecodeValue(&event))
	assert.Equal(t, "w-1", event.WaitlistID)
	assert.Equal(t, "u-1", event.WaitlistUserID)
	assert.Equal(t, leftAt, event.AcceptedAt)
	assert.Equal(t, "friend", event.Fields["referrer"])
}

func TestKafkaProvisioner_RetryKeepsEventID(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewKafkaProvisioner(pub)
	u := &model.WaitlistUser{ID: "u-7", Email: "ada@example.com"}

	require.NoError(t, p.RequestAccount(context.Background(), u))
	require.NoError(t, p.RequestAccount(context.Background(), u))
	require.Len(t, pub.messages, 2)
	assert.Equal(t, pub.messages[0].GetEventID(), pub.messages[1].GetEventID())

	other := &model.WaitlistUser{ID: "u-8", Email: "bob@example.com"}
	require.NoError(t, p.RequestAccount(context.Background(), other))
	assert.NotEqual(t, pub.messages[0].GetEventID(), pub.messages[2].GetEventID())
}

func TestKafkaProvisioner_PublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker unavailable")}

	err := NewKafkaProvisioner(pub).RequestAccount(context.Background(), &model.WaitlistUser{Email: "ada@example.com"})
	assert.EqualError(t, err, "broker unavailable")
}
