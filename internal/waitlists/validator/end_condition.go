package validator

import (
	"time"

	"waitgate/pkg/model"
)

// EndCondition is the closed set of waitlist variants keyed by endEvent.
// Each variant carries its own validation tags.
type EndCondition interface {
	EndEvent() model.EndEvent
	window() (time.Time, *time.Time)
	limit() *int
}

type MaxSignupsReached struct {
	BeginsAt        time.Time  `json:"beginsAt" validate:"required"`
	EndsAt          *time.Time `json:"endsAt"`
	MaxParticipants *int       `json:"maxParticipants" validate:"required,min=1"`
}

type DateReached struct {
	BeginsAt        time.Time  `json:"beginsAt" validate:"required"`
	EndsAt          *time.Time `json:"endsAt" validate:"required"`
	MaxParticipants *int       `json:"maxParticipants" validate:"omitempty,min=1"`
}

// DateReachedLottery closes like DateReached. Drawing the lottery is left to
// the operator.
type DateReachedLottery struct {
	BeginsAt        time.Time  `json:"beginsAt" validate:"required"`
	EndsAt          *time.Time `json:"endsAt" validate:"required"`
	MaxParticipants *int       `json:"maxParticipants" validate:"omitempty,min=1"`
}

type Trigger struct {
	BeginsAt        time.Time  `json:"beginsAt" validate:"required"`
	EndsAt          *time.Time `json:"endsAt"`
	MaxParticipants *int       `json:"maxParticipants" validate:"omitempty,min=1"`
}

func (MaxSignupsReached) EndEvent() model.EndEvent  { return model.EndEventMaxSignupsReached }
func (DateReached) EndEvent() model.EndEvent        { return model.EndEventDateReached }
func (DateReachedLottery) EndEvent() model.EndEvent { return model.EndEventDateReachedLottery }
func (Trigger) EndEvent() model.EndEvent            { return model.EndEventTrigger }

func (c MaxSignupsReached) window() (time.Time, *time.Time)  { return c.BeginsAt, c.EndsAt }
func (c DateReached) window() (time.Time, *time.Time)        { return c.BeginsAt, c.EndsAt }
func (c DateReachedLottery) window() (time.Time, *time.Time) { return c.BeginsAt, c.EndsAt }
func (c Trigger) window() (time.Time, *time.Time)            { return c.BeginsAt, c.EndsAt }

func (c MaxSignupsReached) limit() *int  { return c.MaxParticipants }
func (c DateReached) limit() *int        { return c.MaxParticipants }
func (c DateReachedLottery) limit() *int { return c.MaxParticipants }
func (c Trigger) limit() *int            { return c.MaxParticipants }

func newEndCondition(event model.EndEvent, beginsAt time.Time, endsAt *time.Time, maxParticipants *int) EndCondition {
	switch event {
	case model.EndEventMaxSignupsReached:
		return MaxSignupsReached{BeginsAt: beginsAt, EndsAt: endsAt, MaxParticipants: maxParticipants}
	case model.EndEventDateReached:
		return DateReached{BeginsAt: beginsAt, EndsAt: endsAt, MaxParticipants: maxParticipants}
	case model.EndEventDateReachedLottery:
		return DateReachedLottery{BeginsAt: beginsAt, EndsAt: endsAt, MaxParticipants: maxParticipants}
	case model.EndEventTrigger:
		return Trigger{BeginsAt: beginsAt, EndsAt: endsAt, MaxParticipants: maxParticipants}
	}
	return nil
}
