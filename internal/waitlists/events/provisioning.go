// Package events publishes waitlist lifecycle events to Kafka.
package events

import (
	"context"
	"fmt"
	"time"

	"waitgate/pkg/kafka"
	"waitgate/pkg/middleware"
	"waitgate/pkg/model"

	"github.com/google/uuid"
)

const (
	EventAccountProvisionRequested = "account.provision_requested"

	schemaVersion = "1"
	source        = "waitgate"
)

type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// AccountProvisionRequested asks the identity system to create an account
// for a user accepted off a waitlist.
type AccountProvisionRequested struct {
	WaitlistID     string         `json:"waitlistId"`
	WaitlistUserID string         `json:"waitlistUserId"`
	Name           string         `json:"name"`
	Email          string         `json:"email"`
	AcceptedAt     time.Time      `json:"acceptedAt"`
	Fields         map[string]any `json:"fields,omitempty"`
}

type KafkaProvisioner struct {
	publisher Publisher
}

func NewKafkaProvisioner(publisher Publisher) *KafkaProvisioner {
	return &KafkaProvisioner{publisher: publisher}
}

// RequestAccount publishes one provisioning request keyed by email, so
// requests for the same person stay ordered on one partition. The event id
// is derived from the waitlist user id; a retried acceptance republishes the
// same id.
func (p *KafkaProvisioner) RequestAccount(ctx context.Context, u *model.WaitlistUser) error {
	event := AccountProvisionRequested{
		WaitlistID:     u.WaitlistID,
		WaitlistUserID: u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Fields:         u.Fields,
	}
	if u.LeftAt != nil {
		event.AcceptedAt = *u.LeftAt
	}

	msg, err := kafka.NewMessage().
		WithKey(u.Email).
		WithValue(event).
		WithEventID(provisionEventID(u.ID)).
		WithTimestamp(event.AcceptedAt).
		WithEventType(EventAccountProvisionRequested).
		WithCorrelationID(middleware.RequestID(ctx)).
		WithSchemaVersion(schemaVersion).
		WithSource(source).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build provisioning message: %w", err)
	}

	return p.publisher.Publish(ctx, msg)
}

func provisionEventID(waitlistUserID string) string {
	if waitlistUserID == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+":"+EventAccountProvisionRequested+":"+waitlistUserID)).String()
}
