package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	waitlisterrors "waitgate/internal/waitlists/errors"
	"waitgate/internal/waitlists/repository"
	"waitgate/internal/waitlists/validator"
	"waitgate/pkg/authz"
	"waitgate/pkg/config"
	apperrors "waitgate/pkg/errors"
	"waitgate/pkg/fields"
	"waitgate/pkg/logger"
	"waitgate/pkg/model"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	OpCreateWaitlist = "create_waitlist"
	OpGetWaitlist    = "get_waitlist"
	OpAcceptUser     = "accept_user"
	OpRejectUser     = "reject_user"

	createLockID = "waitlist:create"
)

type WaitlistService interface {
	Create(ctx context.Context, p validator.Payload) (*model.Waitlist, error)
	Get(ctx context.Context, id string) (*model.Waitlist, error)
	Join(ctx context.Context, p validator.Payload) (*model.WaitlistUser, error)
	Accept(ctx context.Context, p validator.Payload) (*model.WaitlistUser, error)
	Reject(ctx context.Context, p validator.Payload) (*model.WaitlistUser, error)
	CheckAdmission(ctx context.Context, p validator.Payload) (*Admission, error)
}

// Admission answers whether the identity service may let an email through a
// sign-up or sign-in flow.
type Admission struct {
	Allowed    bool   `json:"allowed"`
	WaitlistID string `json:"waitlistId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Authorizer decides whether the caller in ctx may run operation.
type Authorizer interface {
	Authorize(ctx context.Context, operation string, rule authz.Rule) error
}

// Provisioner asks the identity system to create an account for an accepted
// user. It runs inside the accept transaction.
type Provisioner interface {
	RequestAccount(ctx context.Context, u *model.WaitlistUser) error
}

type Rules struct {
	CreateWaitlist authz.Rule
	GetWaitlist    authz.Rule
	AcceptUser     authz.Rule
	RejectUser     authz.Rule
}

func RulesFromPolicy(p config.PermissionsPolicy) Rules {
	return Rules{
		CreateWaitlist: authz.FromPolicy(p.CreateWaitlist),
		GetWaitlist:    authz.FromPolicy(p.GetWaitlist),
		AcceptUser:     authz.FromPolicy(p.AcceptUser),
		RejectUser:     authz.FromPolicy(p.RejectUser),
	}
}

// Hooks are optional observers. An error aborts the operation and is
// returned to the caller as is.
type Hooks struct {
	BeforeCreate func(ctx context.Context, w *model.Waitlist) error
	AfterCreate  func(ctx context.Context, w *model.Waitlist) error
	BeforeGet    func(ctx context.Context, id string) error
	AfterGet     func(ctx context.Context, w *model.Waitlist) error
}

type Deps struct {
	Waitlists   repository.WaitlistRepository
	Users       repository.WaitlistUserRepository
	Locks       repository.WaitlistLockRepository
	Validator   *validator.WaitlistValidator
	Gate        Authorizer
	Rules       Rules
	Provisioner Provisioner
	Hooks       Hooks

	WaitlistSchema *fields.Schema
	UserSchema     *fields.Schema

	Config *config.Config
	Now    func() time.Time
}

type waitlistService struct {
	Deps
}

func NewWaitlistService(deps Deps) WaitlistService {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &waitlistService{Deps: deps}
}

func (s *waitlistService) Create(ctx context.Context, p validator.Payload) (*model.Waitlist, error) {
	input, err := s.Validator.ParseCreateWaitlist(p)
	if err != nil {
		s.Config.Log.Warn("Waitlist validation failed", "error", err)
		return nil, err
	}

	if err := s.Gate.Authorize(ctx, OpCreateWaitlist, s.Rules.CreateWaitlist); err != nil {
		return nil, err
	}

	w := input.Waitlist(uuid.New().String())

	if s.Hooks.BeforeCreate != nil {
		if err := s.Hooks.BeforeCreate(ctx, w); err != nil {
			return nil, err
		}
	}

	if s.Config.Policy.Concurrent {
		err = s.Waitlists.Create(ctx, w)
	} else {
		err = s.createExclusive(ctx, w)
	}
	if err != nil {
		return nil, s.translateCreateError(w, err)
	}

	s.Config.Log.Info("Waitlist created",
		"id", w.ID,
		"end_event", w.EndEvent,
		"begins_at", w.BeginsAt,
		"ends_at", w.EndsAt,
	)

	if s.Hooks.AfterCreate != nil {
		if err := s.Hooks.AfterCreate(ctx, w); err != nil {
			return nil, err
		}
	}

	return s.waitlistOutput(w), nil
}

// createExclusive checks for overlapping waitlists and inserts w while holding
// the create lock, inside one transaction.
func (s *waitlistService) createExclusive(ctx context.Context, w *model.Waitlist) error {
	lock := &model.WaitlistLock{
		ID:        createLockID,
		Owner:     uuid.New().String(),
		ExpiresAt: s.Now().Add(s.Config.LockTTL),
	}
	if err := s.Locks.Acquire(ctx, lock); err != nil {
		return err
	}
	defer func() {
		if err := s.Locks.Release(context.WithoutCancel(ctx), lock); err != nil {
			s.Config.Log.Error("Failed to release waitlist lock", "owner", lock.Owner, "error", err)
		}
	}()

	return s.Waitlists.ExecuteTransaction(ctx, func(ctx context.Context) error {
		overlapping, err := s.Waitlists.CountOverlapping(ctx, w.BeginsAt, w.EndsAt)
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return apperrors.Conflict("An existing waitlist overlaps the requested period")
		}
		return s.Waitlists.Create(ctx, w)
	})
}

func (s *waitlistService) translateCreateError(w *model.Waitlist, err error) error {
	switch {
	case apperrors.IsAppError(err):
		s.Config.Log.Warn("Waitlist creation rejected", "begins_at", w.BeginsAt, "ends_at", w.EndsAt, "error", err)
		return err
	case errors.Is(err, waitlisterrors.ErrLockHeld):
		s.Config.Log.Warn("Waitlist creation lock is held", "error", err)
		return apperrors.Conflict("Another waitlist is being created, retry shortly")
	case errors.Is(err, waitlisterrors.ErrWriteConflict):
		s.Config.Log.Warn("Waitlist creation lost a write conflict", "error", err)
		return apperrors.Conflict("An existing waitlist overlaps the requested period")
	}
	s.Config.Log.Error("Failed to create waitlist", "id", w.ID, "error", err)
	return apperrors.Internal("Failed to create waitlist", err)
}

// Get returns nil with no error when the waitlist does not exist.
func (s *waitlistService) Get(ctx context.Context, id string) (*model.Waitlist, error) {
	if err := s.Gate.Authorize(ctx, OpGetWaitlist, s.Rules.GetWaitlist); err != nil {
		return nil, err
	}
	if err := s.Validator.ValidateID(id); err != nil {
		return nil, err
	}

	if s.Hooks.BeforeGet != nil {
		if err := s.Hooks.BeforeGet(ctx, id); err != nil {
			return nil, err
		}
	}

	w, err := s.Waitlists.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, waitlisterrors.ErrNotFound) {
			s.Config.Log.Error("Failed to get waitlist", "id", id, "error", err)
			return nil, apperrors.Internal("Failed to retrieve waitlist", err)
		}
		w = nil
	}

	if s.Hooks.AfterGet != nil {
		if err := s.Hooks.AfterGet(ctx, w); err != nil {
			return nil, err
		}
	}

	if w == nil {
		return nil, nil
	}
	return s.waitlistOutput(w), nil
}

func (s *waitlistService) Join(ctx context.Context, p validator.Payload) (*model.WaitlistUser, error) {
	input, err := s.Validator.ParseJoin(p)
	if err != nil {
		s.Config.Log.Warn("Join validation failed", "error", err)
		return nil, err
	}

	w, members, err := s.resolveWaitlist(ctx, input.WaitlistID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	switch {
	case !w.Started(now):
		return nil, apperrors.Conflict("Waitlist has not started yet")
	case w.Ended(now):
		return nil, apperrors.Conflict("Waitlist has ended")
	case w.Full(members):
		return nil, apperrors.Conflict("Waitlist is full")
	}

	_, err = s.Users.FindByWaitlistAndEmail(ctx, w.ID, input.Email)
	switch {
	case err == nil:
		return nil, apperrors.Conflict("Email is already on this waitlist")
	case !errors.Is(err, waitlisterrors.ErrUserNotFound):
		s.Config.Log.Error("Failed to check waitlist membership", "waitlist_id", w.ID, "error", err)
		return nil, apperrors.Internal("Failed to join waitlist", err)
	}

	u := &model.WaitlistUser{
		ID:         uuid.New().String(),
		WaitlistID: w.ID,
		Name:       input.Name,
		Email:      input.Email,
		Status:     model.StatusPending,
		JoinedAt:   now,
		Fields:     input.Fields,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, waitlisterrors.ErrDuplicateUser) {
			return nil, apperrors.Conflict("Email is already on this waitlist")
		}
		s.Config.Log.Error("Failed to join waitlist", "waitlist_id", w.ID, "error", err)
		return nil, apperrors.Internal("Failed to join waitlist", err)
	}

	s.Config.Log.Info("User joined waitlist",
		"waitlist_id", w.ID,
		"waitlist_user_id", u.ID,
		logger.EMAIL, u.Email,
		"members", members+1,
	)

	return s.userOutput(u), nil
}

// resolveWaitlist loads the waitlist named by id, or the earliest active one
// when id is empty, together with its member count.
func (s *waitlistService) resolveWaitlist(ctx context.Context, id string) (*model.Waitlist, int64, error) {
	if id == "" {
		active, err := s.Waitlists.FindActive(ctx, s.Now())
		if err != nil {
			s.Config.Log.Error("Failed to find active waitlists", "error", err)
			return nil, 0, apperrors.Internal("Failed to resolve waitlist", err)
		}
		if len(active) == 0 {
			return nil, 0, apperrors.NotFound("Active waitlist")
		}
		id = active[0].ID
	}

	var (
		w       *model.Waitlist
		members int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		w, err = s.Waitlists.FindByID(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		members, err = s.Users.CountByWaitlist(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, waitlisterrors.ErrNotFound) {
			return nil, 0, apperrors.NotFoundWithID("Waitlist", id)
		}
		s.Config.Log.Error("Failed to load waitlist", "id", id, "error", err)
		return nil, 0, apperrors.Internal("Failed to resolve waitlist", err)
	}
	return w, members, nil
}

func (s *waitlistService) Accept(ctx context.Context, p validator.Payload) (*model.WaitlistUser, error) {
	return s.decide(ctx, p, OpAcceptUser, s.Rules.AcceptUser, model.StatusAccepted)
}

func (s *waitlistService) Reject(ctx context.Context, p validator.Payload) (*model.WaitlistUser, error) {
	return s.decide(ctx, p, OpRejectUser, s.Rules.RejectUser, model.StatusRejected)
}

func (s *waitlistService) decide(
	ctx context.Context,
	p validator.Payload,
	operation string,
	rule authz.Rule,
	status model.WaitlistUserStatus,
) (*model.WaitlistUser, error) {
	input, err := s.Validator.ParseDecision(p)
	if err != nil {
		s.Config.Log.Warn("Decision validation failed", "operation", operation, "error", err)
		return nil, err
	}

	if err := s.Gate.Authorize(ctx, operation, rule); err != nil {
		return nil, err
	}

	var user *model.WaitlistUser
	err = s.Users.ExecuteTransaction(ctx, func(ctx context.Context) error {
		u, err := s.Users.FindByWaitlistAndEmail(ctx, input.WaitlistID, input.Email)
		if err != nil {
			return err
		}
		if !u.Status.CanTransitionTo(status) || u.Left() {
			return fmt.Errorf("%w: %s", waitlisterrors.ErrAlreadyLeft, u.ID)
		}

		leftAt := s.Now()
		if err := s.Users.MarkLeft(ctx, u.ID, status, leftAt); err != nil {
			return err
		}
		u.Status = status
		u.LeftAt = &leftAt

		if status == model.StatusAccepted {
			if err := s.provision(ctx, u); err != nil {
				return err
			}
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, s.translateDecisionError(operation, input, err)
	}

	s.Config.Log.Info("Waitlist user left",
		"operation", operation,
		"waitlist_id", user.WaitlistID,
		"waitlist_user_id", user.ID,
		"status", user.Status,
	)

	return s.userOutput(user), nil
}

func (s *waitlistService) provision(ctx context.Context, u *model.WaitlistUser) error {
	if s.Provisioner == nil {
		s.Config.Log.Warn("Account provisioning is not configured", "waitlist_user_id", u.ID)
		return nil
	}
	if err := s.Provisioner.RequestAccount(ctx, u); err != nil {
		return fmt.Errorf("failed to request account provisioning: %w", err)
	}
	return nil
}

func (s *waitlistService) translateDecisionError(operation string, input *validator.DecisionInput, err error) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, waitlisterrors.ErrUserNotFound):
		return apperrors.NotFound("Waitlist user")
	case errors.Is(err, waitlisterrors.ErrAlreadyLeft), errors.Is(err, waitlisterrors.ErrWriteConflict):
		s.Config.Log.Warn("Waitlist user already left", "operation", operation, "waitlist_id", input.WaitlistID, logger.EMAIL, input.Email, "error", err)
		return apperrors.Conflict("Waitlist user was already accepted or rejected")
	}
	s.Config.Log.Error("Failed to update waitlist user",
		"operation", operation,
		"waitlist_id", input.WaitlistID,
		"error", err,
	)
	return apperrors.Internal("Failed to update waitlist user", err)
}

func (s *waitlistService) CheckAdmission(ctx context.Context, p validator.Payload) (*Admission, error) {
	input, err := s.Validator.ParseCheckAdmission(p)
	if err != nil {
		return nil, err
	}

	gated := (input.Flow == validator.FlowSignUp && s.Config.Policy.DisableSignUp) ||
		(input.Flow == validator.FlowSignIn && s.Config.Policy.DisableSignIn)
	if !gated {
		return &Admission{Allowed: true}, nil
	}

	active, err := s.Waitlists.FindActive(ctx, s.Now())
	if err != nil {
		s.Config.Log.Error("Failed to find active waitlists", "error", err)
		return nil, apperrors.Internal("Failed to check admission", err)
	}
	if len(active) == 0 {
		return &Admission{Allowed: true}, nil
	}

	for _, w := range active {
		u, err := s.Users.FindByWaitlistAndEmail(ctx, w.ID, input.Email)
		if err != nil {
			if errors.Is(err, waitlisterrors.ErrUserNotFound) {
				continue
			}
			s.Config.Log.Error("Failed to check waitlist membership", "waitlist_id", w.ID, "error", err)
			return nil, apperrors.Internal("Failed to check admission", err)
		}
		if u.Status == model.StatusAccepted {
			return &Admission{Allowed: true, WaitlistID: w.ID}, nil
		}
	}

	s.Config.Log.Info("Admission denied by active waitlist", "flow", input.Flow, "waitlist_id", active[0].ID)
	return &Admission{
		Allowed:    false,
		WaitlistID: active[0].ID,
		Reason:     "A waitlist is active and this email has not been accepted",
	}, nil
}

func (s *waitlistService) waitlistOutput(w *model.Waitlist) *model.Waitlist {
	out := *w
	out.Fields = s.WaitlistSchema.FilterOutput(w.Fields)
	return &out
}

func (s *waitlistService) userOutput(u *model.WaitlistUser) *model.WaitlistUser {
	out := *u
	out.Fields = s.UserSchema.FilterOutput(u.Fields)
	return &out
}
