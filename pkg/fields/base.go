package fields

import "time"

const (
	ModelWaitlist     = "waitlist"
	ModelWaitlistUser = "waitlistUser"
)

func now() any { return time.Now().UTC() }

func waitlistBase() []Field {
	return []Field{
		{Name: "id", StorageName: "_id", Type: TypeString, Required: true, Returned: true},
		{Name: "endEvent", StorageName: "end_event", Type: TypeString, Required: true, Input: true, Returned: true},
		{Name: "beginsAt", StorageName: "begins_at", Type: TypeDate, Required: true, Input: true, Returned: true, DefaultValue: now},
		{Name: "endsAt", StorageName: "ends_at", Type: TypeDate, Input: true, Returned: true},
		{Name: "maxParticipants", StorageName: "max_participants", Type: TypeNumber, Input: true, Returned: true},
	}
}

func waitlistUserBase() []Field {
	return []Field{
		{Name: "id", StorageName: "_id", Type: TypeString, Required: true, Returned: true},
		{Name: "waitlistId", StorageName: "waitlist_id", Type: TypeString, Required: true, Input: true, Returned: true},
		{Name: "name", StorageName: "name", Type: TypeString, Required: true, Input: true, Returned: true},
		{Name: "email", StorageName: "email", Type: TypeString, Required: true, Input: true, Returned: true},
		{Name: "status", StorageName: "status", Type: TypeString, Required: true, Returned: true},
		{Name: "joinedAt", StorageName: "joined_at", Type: TypeDate, Required: true, Returned: true, DefaultValue: now},
		{Name: "leftAt", StorageName: "left_at", Type: TypeDate, Returned: true},
	}
}

// WaitlistBase is the waitlist shape with no additional fields.
func WaitlistBase() *Schema {
	return newSchema(ModelWaitlist, waitlistBase())
}

func WaitlistUserBase() *Schema {
	return newSchema(ModelWaitlistUser, waitlistUserBase())
}

func ComposeWaitlist(decl Declarations) (*Schema, error) {
	return WaitlistBase().Extend(decl)
}

func ComposeWaitlistUser(decl Declarations) (*Schema, error) {
	return WaitlistUserBase().Extend(decl)
}
