package validator

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	apperrors "waitgate/pkg/errors"
	"waitgate/pkg/fields"
	"waitgate/pkg/model"
	"waitgate/pkg/sanitizer"

	"github.com/go-playground/validator/v10"
)

// Payload is a decoded JSON request body. Additional fields sit next to the
// core fields.
type Payload map[string]any

const (
	FlowSignUp = "sign-up"
	FlowSignIn = "sign-in"

	tagAfterBeginsAt = "after_begins_at"
)

type CreateWaitlistInput struct {
	Condition EndCondition
	Fields    map[string]any
}

// Waitlist builds the record to persist. MaxParticipants stays nil when the
// caller did not send it.
func (in *CreateWaitlistInput) Waitlist(id string) *model.Waitlist {
	beginsAt, endsAt := in.Condition.window()
	return &model.Waitlist{
		ID:              id,
		EndEvent:        in.Condition.EndEvent(),
		BeginsAt:        beginsAt,
		EndsAt:          endsAt,
		MaxParticipants: in.Condition.limit(),
		Fields:          in.Fields,
	}
}

type JoinInput struct {
	WaitlistID string
	Name       string
	Email      string
	Fields     map[string]any
}

type DecisionInput struct {
	WaitlistID string
	Email      string
}

type CheckAdmissionInput struct {
	Email string
	Flow  string
}

type joinRequest struct {
	WaitlistID string `json:"waitlistId" validate:"omitempty,max=128"`
	Name       string `json:"name" validate:"required,max=256"`
	Email      string `json:"email" validate:"required,email,max=254"`
}

type decisionRequest struct {
	WaitlistID string `json:"waitlistId" validate:"required,max=128"`
	Email      string `json:"email" validate:"required,email,max=254"`
}

type checkAdmissionRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Flow  string `json:"flow" validate:"required,oneof=sign-up sign-in"`
}

type WaitlistValidator struct {
	validate       *validator.Validate
	waitlistSchema *fields.Schema
	userSchema     *fields.Schema
	now            func() time.Time
}

func NewWaitlistValidator(waitlistSchema, userSchema *fields.Schema) *WaitlistValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterStructValidation(validateWindow,
		MaxSignupsReached{}, DateReached{}, DateReachedLottery{}, Trigger{})

	return &WaitlistValidator{
		validate:       v,
		waitlistSchema: waitlistSchema,
		userSchema:     userSchema,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func validateWindow(sl validator.StructLevel) {
	c, ok := sl.Current().Interface().(EndCondition)
	if !ok {
		return
	}
	beginsAt, endsAt := c.window()
	if endsAt != nil && !endsAt.After(beginsAt) {
		sl.ReportError(endsAt, "endsAt", "EndsAt", tagAfterBeginsAt, "")
	}
}

// ParseCreateWaitlist selects the end condition variant by endEvent, then
// validates the variant and the declared additional fields.
func (v *WaitlistValidator) ParseCreateWaitlist(p Payload) (*CreateWaitlistInput, error) {
	event, ok := p["endEvent"].(string)
	if !ok || !model.EndEvent(event).Valid() {
		return nil, validationFailed("Invalid end event", fields.Errors{{
			Field:   "endEvent",
			Message: "must be one of: " + joinEndEvents(),
		}})
	}

	var errs fields.Errors
	errs = append(errs, rejectServerManaged(p, v.waitlistSchema)...)

	beginsAt := v.now()
	if raw, set := present(p, "beginsAt"); set {
		parsed, err := fields.ParseTime(raw)
		if err != nil {
			errs = append(errs, fields.FieldError{Field: "beginsAt", Message: err.Error()})
		}
		beginsAt = parsed
	}

	var endsAt *time.Time
	if raw, set := present(p, "endsAt"); set {
		parsed, err := fields.ParseTime(raw)
		if err != nil {
			errs = append(errs, fields.FieldError{Field: "endsAt", Message: err.Error()})
		} else {
			endsAt = &parsed
		}
	}

	var maxParticipants *int
	if raw, set := present(p, "maxParticipants"); set {
		n, err := parseInt(raw)
		if err != nil {
			errs = append(errs, fields.FieldError{Field: "maxParticipants", Message: err.Error()})
		} else {
			maxParticipants = &n
		}
	}

	if len(errs) == 0 {
		condition := newEndCondition(model.EndEvent(event), beginsAt, endsAt, maxParticipants)
		errs = append(errs, v.check(condition)...)

		extra, fieldErrs := v.waitlistSchema.ValidateInput(p)
		errs = append(errs, fieldErrs...)

		if len(errs) == 0 {
			return &CreateWaitlistInput{Condition: condition, Fields: extra}, nil
		}
	}

	return nil, validationFailed("Waitlist validation failed", errs)
}

func (v *WaitlistValidator) ParseJoin(p Payload) (*JoinInput, error) {
	var errs fields.Errors
	errs = append(errs, rejectServerManaged(p, v.userSchema)...)

	req := joinRequest{
		WaitlistID: strings.TrimSpace(stringValue(p, "waitlistId", &errs)),
		Name:       sanitizer.Name(stringValue(p, "name", &errs)),
		Email:      sanitizer.Email(stringValue(p, "email", &errs)),
	}
	errs = append(errs, v.check(req)...)

	extra, fieldErrs := v.userSchema.ValidateInput(p)
	errs = append(errs, fieldErrs...)

	if len(errs) > 0 {
		return nil, validationFailed("Join request validation failed", errs)
	}
	return &JoinInput{
		WaitlistID: req.WaitlistID,
		Name:       req.Name,
		Email:      req.Email,
		Fields:     extra,
	}, nil
}

func (v *WaitlistValidator) ParseDecision(p Payload) (*DecisionInput, error) {
	var errs fields.Errors
	errs = append(errs, rejectUnknown(p, "waitlistId", "email")...)

	req := decisionRequest{
		WaitlistID: strings.TrimSpace(stringValue(p, "waitlistId", &errs)),
		Email:      sanitizer.Email(stringValue(p, "email", &errs)),
	}
	errs = append(errs, v.check(req)...)

	if len(errs) > 0 {
		return nil, validationFailed("Request validation failed", errs)
	}
	return &DecisionInput{WaitlistID: req.WaitlistID, Email: req.Email}, nil
}

func (v *WaitlistValidator) ParseCheckAdmission(p Payload) (*CheckAdmissionInput, error) {
	var errs fields.Errors
	errs = append(errs, rejectUnknown(p, "email", "flow")...)

	req := checkAdmissionRequest{
		Email: sanitizer.Email(stringValue(p, "email", &errs)),
		Flow:  strings.TrimSpace(stringValue(p, "flow", &errs)),
	}
	errs = append(errs, v.check(req)...)

	if len(errs) > 0 {
		return nil, validationFailed("Request validation failed", errs)
	}
	return &CheckAdmissionInput{Email: req.Email, Flow: req.Flow}, nil
}

func (v *WaitlistValidator) ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return validationFailed("Request validation failed", fields.Errors{{Field: "id", Message: "is required"}})
	}
	return nil
}

func (v *WaitlistValidator) check(s any) fields.Errors {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return translateValidationErrors(validationErrs)
	}
	return fields.Errors{{Field: "body", Message: err.Error()}}
}

func translateValidationErrors(errs validator.ValidationErrors) fields.Errors {
	out := make(fields.Errors, 0, len(errs))
	for _, err := range errs {
		out = append(out, fields.FieldError{Field: err.Field(), Message: messageFor(err)})
	}
	return out
}

func messageFor(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + err.Param()
	case "max":
		return "must be at most " + err.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(err.Param(), " ", ", ")
	case tagAfterBeginsAt:
		return "must be after beginsAt"
	}
	return "is invalid"
}

func validationFailed(message string, errs fields.Errors) *apperrors.AppError {
	return apperrors.Validation(message, map[string]any{"fields": errs})
}

func joinEndEvents() string {
	events := model.EndEvents()
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, string(e))
	}
	return strings.Join(names, ", ")
}

// present treats an explicit JSON null like an absent key.
func present(p Payload, key string) (any, bool) {
	v, ok := p[key]
	return v, ok && v != nil
}

func stringValue(p Payload, key string, errs *fields.Errors) string {
	raw, ok := present(p, key)
	if !ok {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		*errs = append(*errs, fields.FieldError{Field: key, Message: "expected a string"})
		return ""
	}
	return s
}

func parseInt(raw any) (int, error) {
	n, err := fields.Coerce(fields.TypeNumber, raw)
	if err != nil {
		return 0, err
	}
	f := n.(float64)
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("expected an integer")
	}
	return int(f), nil
}

// rejectServerManaged flags base fields the caller may not set.
func rejectServerManaged(p Payload, schema *fields.Schema) fields.Errors {
	var errs fields.Errors
	for _, name := range schema.Persisted() {
		field, _ := schema.Field(name)
		if !field.Core || field.Input {
			continue
		}
		if _, set := p[name]; set {
			errs = append(errs, fields.FieldError{Field: name, Message: "cannot be set by the caller"})
		}
	}
	return errs
}

func rejectUnknown(p Payload, allowed ...string) fields.Errors {
	known := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		known[k] = true
	}
	var errs fields.Errors
	for key := range p {
		if !known[key] {
			errs = append(errs, fields.FieldError{Field: key, Message: "is not a known field"})
		}
	}
	return errs
}
