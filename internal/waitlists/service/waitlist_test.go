package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	waitlisterrors "waitgate/internal/waitlists/errors"
	"waitgate/internal/waitlists/events"
	"waitgate/internal/waitlists/validator"
	"waitgate/pkg/authz"
	"waitgate/pkg/config"
	mongotx "waitgate/pkg/db/mongo"
	apperrors "waitgate/pkg/errors"
	"waitgate/pkg/fields"
	"waitgate/pkg/kafka"
	"waitgate/pkg/logger"
	"waitgate/pkg/model"
	"waitgate/pkg/session"

	segkafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────
// In-memory mocks
// ────────────────────────────────────────────────

type mockWaitlistRepository struct {
	mu        sync.Mutex
	waitlists []*model.Waitlist
	createErr error
	findErr   error
}

func (m *mockWaitlistRepository) Create(ctx context.Context, w *model.Waitlist) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waitlists = append(m.waitlists, w)
	return nil
}

func (m *mockWaitlistRepository) FindByID(ctx context.Context, id string) (*model.Waitlist, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.waitlists {
		if w.ID == id {
			cp := *w
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", waitlisterrors.ErrNotFound, id)
}

func (m *mockWaitlistRepository) CountOverlapping(ctx context.Context, beginsAt time.Time, endsAt *time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, w := range m.waitlists {
		if w.Overlaps(beginsAt, endsAt) {
			n++
		}
	}
	return n, nil
}

func (m *mockWaitlistRepository) FindActive(ctx context.Context, now time.Time) ([]*model.Waitlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Waitlist
	for _, w := range m.waitlists {
		if w.Active(now) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BeginsAt.Before(out[j].BeginsAt) })
	return out, nil
}

func (m *mockWaitlistRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

func (m *mockWaitlistRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waitlists)
}

type mockWaitlistUserRepository struct {
	mu    sync.Mutex
	users []*model.WaitlistUser
}

func (m *mockWaitlistUserRepository) Create(ctx context.Context, u *model.WaitlistUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.WaitlistID == u.WaitlistID && existing.Email == u.Email {
			return fmt.Errorf("%w: %s", waitlisterrors.ErrDuplicateUser, u.Email)
		}
	}
	m.users = append(m.users, u)
	return nil
}

func (m *mockWaitlistUserRepository) FindByWaitlistAndEmail(ctx context.Context, waitlistID, email string) (*model.WaitlistUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.WaitlistID == waitlistID && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", waitlisterrors.ErrUserNotFound, email)
}

func (m *mockWaitlistUserRepository) CountByWaitlist(ctx context.Context, waitlistID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if u.WaitlistID == waitlistID {
			n++
		}
	}
	return n, nil
}

func (m *mockWaitlistUserRepository) MarkLeft(ctx context.Context, id string, status model.WaitlistUserStatus, leftAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			if u.LeftAt != nil {
				return fmt.Errorf("%w: %s", waitlisterrors.ErrAlreadyLeft, id)
			}
			u.Status = status
			u.LeftAt = &leftAt
			return nil
		}
	}
	return fmt.Errorf("%w: %s", waitlisterrors.ErrAlreadyLeft, id)
}

// ExecuteTransaction restores every stored user when fn fails.
func (m *mockWaitlistUserRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	m.mu.Lock()
	snapshot := make([]model.WaitlistUser, len(m.users))
	for i, u := range m.users {
		snapshot[i] = *u
	}
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.users = m.users[:len(snapshot)]
		for i := range snapshot {
			*m.users[i] = snapshot[i]
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

type mockKafkaWriter struct {
	messages []segkafka.Message
	err      error
}

func (w *mockKafkaWriter) WriteMessages(_ context.Context, msgs ...segkafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *mockKafkaWriter) Close() error { return nil }

type mockLockRepository struct {
	held     bool
	acquired int
	released int
}

func (m *mockLockRepository) Acquire(ctx context.Context, lock *model.WaitlistLock) error {
	if m.held {
		return fmt.Errorf("%w: %s", waitlisterrors.ErrLockHeld, lock.ID)
	}
	m.acquired++
	return nil
}

func (m *mockLockRepository) Release(ctx context.Context, lock *model.WaitlistLock) error {
	m.released++
	return nil
}

type mockProvisioner struct {
	requested []*model.WaitlistUser
	err       error
}

func (m *mockProvisioner) RequestAccount(ctx context.Context, u *model.WaitlistUser) error {
	if m.err != nil {
		return m.err
	}
	m.requested = append(m.requested, u)
	return nil
}

type mockEvaluator struct {
	allowed bool
}

func (m *mockEvaluator) HasPermission(ctx context.Context, s *session.Session, permissions map[string][]string) (bool, error) {
	return m.allowed, nil
}

// ────────────────────────────────────────────────
// Fixtures
// ────────────────────────────────────────────────

var t0 = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return t0.Add(time.Duration(n) * 24 * time.Hour) }

func ptr[T any](v T) *T { return &v }

type fixture struct {
	waitlists   *mockWaitlistRepository
	users       *mockWaitlistUserRepository
	locks       *mockLockRepository
	provisioner *mockProvisioner
	policy      *config.Policy
	now         time.Time
	deps        Deps
}

func allowAll() Rules {
	allow := authz.FromPolicy(config.PermissionRule{Predicate: config.PredicateAllow})
	return Rules{CreateWaitlist: allow, GetWaitlist: allow, AcceptUser: allow, RejectUser: allow}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ws, err := fields.ComposeWaitlist(fields.Declarations{
		"campaign": {Type: fields.TypeString},
		"internal": {Type: fields.TypeString, Returned: ptr(false)},
	})
	require.NoError(t, err)
	us, err := fields.ComposeWaitlistUser(fields.Declarations{"referrer": {Type: fields.TypeString}})
	require.NoError(t, err)

	f := &fixture{
		waitlists:   &mockWaitlistRepository{},
		users:       &mockWaitlistUserRepository{},
		locks:       &mockLockRepository{},
		provisioner: &mockProvisioner{},
		policy:      &config.Policy{DisableSignUp: true},
		now:         day(1),
	}
	log := logger.Discard()
	f.deps = Deps{
		Waitlists:      f.waitlists,
		Users:          f.users,
		Locks:          f.locks,
		Validator:      validator.NewWaitlistValidator(ws, us),
		Gate:           authz.NewGate(nil, log),
		Rules:          allowAll(),
		Provisioner:    f.provisioner,
		WaitlistSchema: ws,
		UserSchema:     us,
		Config:         &config.Config{Log: log, LockTTL: time.Second, Policy: f.policy},
		Now:            func() time.Time { return f.now },
	}
	return f
}

func (f *fixture) service() WaitlistService {
	return NewWaitlistService(f.deps)
}

func (f *fixture) seedWaitlist(w *model.Waitlist) *model.Waitlist {
	f.waitlists.waitlists = append(f.waitlists.waitlists, w)
	return w
}

func (f *fixture) seedUser(u *model.WaitlistUser) *model.WaitlistUser {
	f.users.users = append(f.users.users, u)
	return u
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.AsAppError(err).Code, err.Error())
}

func iso(t time.Time) string { return t.Format(time.RFC3339) }

// ────────────────────────────────────────────────
// Create
// ────────────────────────────────────────────────

func TestCreate_Variants(t *testing.T) {
	tests := []struct {
		name    string
		payload validator.Payload
		event   model.EndEvent
	}{
		{"max signups", validator.Payload{"endEvent": "max-signups-reached", "maxParticipants": 10}, model.EndEventMaxSignupsReached},
		{"date reached", validator.Payload{"endEvent": "date-reached", "endsAt": iso(day(400))}, model.EndEventDateReached},
		{"lottery", validator.Payload{"endEvent": "date-reached-lottery", "endsAt": iso(day(400))}, model.EndEventDateReachedLottery},
		{"trigger", validator.Payload{"endEvent": "trigger"}, model.EndEventTrigger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w, err := f.service().Create(context.Background(), tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.event, w.EndEvent)
			assert.NotEmpty(t, w.ID)
			assert.Equal(t, 1, f.waitlists.count())
			assert.Equal(t, 1, f.locks.acquired)
			assert.Equal(t, 1, f.locks.released)
		})
	}
}

func TestCreate_MissingCompanionFieldFails(t *testing.T) {
	for _, p := range []validator.Payload{
		{"endEvent": "max-signups-reached"},
		{"endEvent": "date-reached"},
		{"endEvent": "date-reached-lottery"},
	} {
		f := newFixture(t)
		_, err := f.service().Create(context.Background(), p)
		requireCode(t, err, apperrors.CodeValidation)
		assert.Zero(t, f.waitlists.count())
	}
}

func TestCreate_UnknownEndEventNeverReachesGate(t *testing.T) {
	f := newFixture(t)
	called := false
	f.deps.Rules.CreateWaitlist = authz.Allow(func(context.Context) (bool, error) {
		called = true
		return true, nil
	})

	_, err := f.service().Create(context.Background(), validator.Payload{"endEvent": "sold-out"})
	requireCode(t, err, apperrors.CodeValidation)
	assert.False(t, called)
	assert.Zero(t, f.locks.acquired)
}

func TestCreate_OverlapExclusion(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	ctx := context.Background()

	_, err := svc.Create(ctx, validator.Payload{"endEvent": "date-reached", "beginsAt": iso(t0), "endsAt": iso(day(14))})
	require.NoError(t, err)

	_, err = svc.Create(ctx, validator.Payload{"endEvent": "date-reached", "beginsAt": iso(t0), "endsAt": iso(day(7))})
	requireCode(t, err, apperrors.CodeConflict)

	_, err = svc.Create(ctx, validator.Payload{"endEvent": "date-reached", "beginsAt": iso(day(15)), "endsAt": iso(day(21))})
	require.NoError(t, err)

	assert.Equal(t, 2, f.waitlists.count())
	assert.Equal(t, f.locks.acquired, f.locks.released)
}

func TestCreate_OpenEndedTriggerBlocksLaterWaitlists(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	ctx := context.Background()

	_, err := svc.Create(ctx, validator.Payload{"endEvent": "trigger", "beginsAt": iso(t0)})
	require.NoError(t, err)

	for _, begins := range []time.Time{t0, day(30), day(3650)} {
		_, err := svc.Create(ctx, validator.Payload{"endEvent": "trigger", "beginsAt": iso(begins)})
		requireCode(t, err, apperrors.CodeConflict)
	}
	assert.Equal(t, 1, f.waitlists.count())
}

func TestCreate_ConcurrentAllowsOverlap(t *testing.T) {
	f := newFixture(t)
	f.policy.Concurrent = true
	svc := f.service()

	for i := 0; i < 2; i++ {
		_, err := svc.Create(context.Background(), validator.Payload{"endEvent": "trigger", "beginsAt": iso(t0)})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.waitlists.count())
	assert.Zero(t, f.locks.acquired)
}

func TestCreate_LockHeldIsConflict(t *testing.T) {
	f := newFixture(t)
	f.locks.held = true

	_, err := f.service().Create(context.Background(), validator.Payload{"endEvent": "trigger"})
	requireCode(t, err, apperrors.CodeConflict)
	assert.Zero(t, f.waitlists.count())
}

func TestCreate_WriteConflictIsConflict(t *testing.T) {
	f := newFixture(t)
	f.waitlists.createErr = fmt.Errorf("%w: txn aborted", waitlisterrors.ErrWriteConflict)

	_, err := f.service().Create(context.Background(), validator.Payload{"endEvent": "trigger"})
	requireCode(t, err, apperrors.CodeConflict)
}

func TestCreate_StorageFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.waitlists.createErr = errors.New("connection reset")

	_, err := f.service().Create(context.Background(), validator.Payload{"endEvent": "trigger"})
	requireCode(t, err, apperrors.CodeInternal)
}

func TestCreate_Authorization(t *testing.T) {
	tests := []struct {
		name     string
		rule     config.PermissionRule
		ctx      context.Context
		wantCode string
	}{
		{"predicate true", config.PermissionRule{Predicate: config.PredicateAllow}, context.Background(), ""},
		{"predicate false", config.PermissionRule{Predicate: config.PredicateDeny}, context.Background(), apperrors.CodeForbidden},
		{
			"delegated without evaluator",
			config.PermissionRule{Statement: "waitlist", Permissions: []string{"create"}},
			session.WithSession(context.Background(), &session.Session{UserID: "u-1"}),
			apperrors.CodeFailedDependency,
		},
		{
			"delegated without session",
			config.PermissionRule{Statement: "waitlist", Permissions: []string{"create"}},
			context.Background(),
			apperrors.CodeUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.deps.Rules.CreateWaitlist = authz.FromPolicy(tt.rule)

			_, err := f.service().Create(tt.ctx, validator.Payload{"endEvent": "trigger"})
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, 1, f.waitlists.count())
				return
			}
			requireCode(t, err, tt.wantCode)
			assert.Zero(t, f.waitlists.count())
		})
	}
}

func TestDelegated_EvaluatorDecides(t *testing.T) {
	ctx := session.WithSession(context.Background(), &session.Session{UserID: "u-1"})
	rule := config.PermissionRule{Statement: "waitlist", Permissions: []string{"create"}}

	for _, allowed := range []bool{true, false} {
		f := newFixture(t)
		f.deps.Gate = authz.NewGate(&mockEvaluator{allowed: allowed}, logger.Discard())
		f.deps.Rules.CreateWaitlist = authz.FromPolicy(rule)

		_, err := f.service().Create(ctx, validator.Payload{"endEvent": "trigger"})
		if allowed {
			assert.NoError(t, err)
		} else {
			requireCode(t, err, apperrors.CodeForbidden)
		}
	}
}

func TestDelegated_MissingEvaluatorFailsEveryOperation(t *testing.T) {
	f := newFixture(t)
	delegated := authz.FromPolicy(config.PermissionRule{Statement: "waitlist", Permissions: []string{"manage"}})
	f.deps.Rules = Rules{CreateWaitlist: delegated, GetWaitlist: delegated, AcceptUser: delegated, RejectUser: delegated}
	f.seedWaitlist(&model.Waitlist{ID: "w-1", EndEvent: model.EndEventTrigger, BeginsAt: t0})
	f.seedUser(&model.WaitlistUser{ID: "u-1", WaitlistID: "w-1", Email: "ada@example.com", Status: model.StatusPending})

	svc := f.service()
	ctx := session.WithSession(context.Background(), &session.Session{UserID: "admin"})
	decision := validator.Payload{"waitlistId": "w-1", "email": "ada@example.com"}

	_, err := svc.Create(ctx, validator.Payload{"endEvent": "trigger", "beginsAt": iso(day(-400)), "endsAt": iso(day(-300))})
	requireCode(t, err, apperrors.CodeFailedDependency)
	_, err = svc.Get(ctx, "w-1")
	requireCode(t, err, apperrors.CodeFailedDependency)
	_, err = svc.Accept(ctx, decision)
	requireCode(t, err, apperrors.CodeFailedDependency)
	_, err = svc.Reject(ctx, decision)
	requireCode(t, err, apperrors.CodeFailedDependency)

	assert.Nil(t, f.users.users[0].LeftAt)
}

func TestCreate_Hooks(t *testing.T) {
	t.Run("before hook error aborts", func(t *testing.T) {
		f := newFixture(t)
		hookErr := apperrors.Forbidden("closed for maintenance")
		f.deps.Hooks.BeforeCreate = func(context.Context, *model.Waitlist) error { return hookErr }

		_, err := f.service().Create(context.Background(), validator.Payload{"endEvent": "trigger"})
		assert.Same(t, hookErr, err)
		assert.Zero(t, f.waitlists.count())
	})

	t.Run("after hook sees persisted record", func(t *testing.T) {
		f := newFixture(t)
		var seen *model.Waitlist
		f.deps.Hooks.AfterCreate = func(_ context.Context, w *model.Waitlist) error {
			seen = w
			return nil
		}

		w, err := f.service().Create(context.Background(), validator.Payload{"endEvent": "trigger"})
		require.NoError(t, err)
		require.NotNil(t, seen)
		assert.Equal(t, w.ID, seen.ID)
	})
}

func TestCreate_FiltersHiddenFields(t *testing.T) {
	f := newFixture(t)
	w, err := f.service().Create(context.Background(), validator.Payload{
		"endEvent": "trigger",
		"campaign": "spring",
		"internal": "secret",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"campaign": "spring"}, w.Fields)
	assert.Equal(t, "secret", f.waitlists.waitlists[0].Fields["internal"])
	assert.Nil(t, w.MaxParticipants)
}

// ────────────────────────────────────────────────
// Get
// ────────────────────────────────────────────────

func TestGet(t *testing.T) {
	f := newFixture(t)
	f.seedWaitlist(&model.Waitlist{ID: "w-1", EndEvent: model.EndEventTrigger, BeginsAt: t0})

	var afterGot []*model.Waitlist
	f.deps.Hooks.AfterGet = func(_ context.Context, w *model.Waitlist) error {
		afterGot = append(afterGot, w)
		return nil
	}
	svc := f.service()

	w, err := svc.Get(context.Background(), "w-1")
	require.NoError(t, err)
	assert.Equal(t, "w-1", w.ID)

	missing, err := svc.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.Len(t, afterGot, 2)
	assert.Nil(t, afterGot[1])
}

func TestGet_BeforeHookError(t *testing.T) {
	f := newFixture(t)
	f.deps.Hooks.BeforeGet = func(context.Context, string) error { return errors.New("hook failed") }

	_, err := f.service().Get(context.Background(), "w-1")
	assert.EqualError(t, err, "hook failed")
}

func TestGet_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.waitlists.findErr = errors.New("socket closed")

	_, err := f.service().Get(context.Background(), "w-1")
	requireCode(t, err, apperrors.CodeInternal)
}

func TestGet_AuthorizesBeforeValidatingID(t *testing.T) {
	tests := []struct {
		name     string
		rule     string
		wantCode string
	}{
		{"denied caller never learns the id is missing", config.PredicateDeny, apperrors.CodeForbidden},
		{"allowed caller gets a validation error", config.PredicateAllow, apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.deps.Rules.GetWaitlist = authz.FromPolicy(config.PermissionRule{Predicate: tt.rule})

			_, err := f.service().Get(context.Background(), "")
			requireCode(t, err, tt.wantCode)
		})
	}
}

// ────────────────────────────────────────────────
// Join
// ────────────────────────────────────────────────

func TestJoin(t *testing.T) {
	f := newFixture(t)
	f.seedWaitlist(&model.Waitlist{ID: "w-1", EndEvent: model.EndEventTrigger, BeginsAt: t0})

	u, err := f.service().Join(context.Background(), validator.Payload{
		"waitlistId": "w-1",
		"name":       "Ada",
		"email":      "Ada@Example.com",
		"referrer":   "friend",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, u.Status)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Nil(t, u.LeftAt)
	assert.Equal(t, f.now, u.JoinedAt)
	assert.Equal(t, "friend", u.Fields["referrer"])
}

func TestJoin_ResolvesEarliestActiveWaitlist(t *testing.T) {
	f := newFixture(t)
	f.policy.Concurrent = true
	f.seedWaitlist(&model.Waitlist{ID: "w-late", EndEvent: model.EndEventTrigger, BeginsAt: day(1)})
	f.seedWaitlist(&model.Waitlist{ID: "w-early", EndEvent: model.EndEventTrigger, BeginsAt: t0})

	u, err := f.service().Join(context.Background(), validator.Payload{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "w-early", u.WaitlistID)
}

func TestJoin_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		waitlist *model.Waitlist
		members  int
		payload  validator.Payload
		wantCode string
	}{
		{
			name:     "no active waitlist",
			payload:  validator.Payload{"name": "Ada", "email": "ada@example.com"},
			wantCode: apperrors.CodeNotFound,
		},
		{
			name:     "unknown waitlist",
			payload:  validator.Payload{"waitlistId": "ghost", "name": "Ada", "email": "ada@example.com"},
			wantCode: apperrors.CodeNotFound,
		},
		{
			name:     "not started",
			waitlist: &model.Waitlist{ID: "w-1", EndEvent: model.EndEventTrigger, BeginsAt: day(10)},
			payload:  validator.Payload{"waitlistId": "w-1", "name": "Ada", "email": "ada@example.com"},
			wantCode: apperrors.CodeConflict,
		},
		{
			name:     "ended",
			waitlist: &model.Waitlist{ID: "w-1", EndEvent: model.EndEventDateReached, BeginsAt: day(-10), EndsAt: ptr(day(0))},
			payload:  validator.Payload{"waitlistId": "w-1", "name": "Ada", "email": "ada@example.com"},
			wantCode: apperrors.CodeConflict,
		},
		{
			name:     "full",
			waitlist: &model.Waitlist{ID: "w-1", EndEvent: model.EndEventMaxSignupsReached, BeginsAt: t0, MaxParticipants: ptr(1)},
			members:  1,
			payload:  validator.Payload{"waitlistId": "w-1", "name": "Ada", "email": "ada@example.com"},
			wantCode: apperrors.CodeConflict,
		},
		{
			name:     "invalid email",
			payload:  validator.Payload{"name": "Ada", "email": "ada"},
			wantCode: apperrors.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.waitlist != nil {
				f.seedWaitlist(tt.waitlist)
			}
			for i := 0; i < tt.members; i++ {
				f.seedUser(&model.WaitlistUser{ID: fmt.Sprint(i), WaitlistID: tt.waitlist.ID, Email: fmt.Sprintf("m%d@example.com", i)})
			}

			_, err := f.service().Join(context.Background(), tt.payload)
			requireCode(t, err, tt.wantCode)
			assert.Len(t, f.users.users, tt.members)
		})
	}
}

func TestJoin_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.seedWaitlist(&model.Waitlist{ID: "w-1", EndEvent: model.EndEventTrigger, BeginsAt: t0})
	svc := f.service()
	p := validator.Payload{"waitlistId": "w-1", "name": "Ada", "email": "ada@example.com"}

	_, err := svc.Join(context.Background(), p)
	require.NoError(t, err)

	_, err = svc.Join(context.Background(), validator.Payload{"waitlistId": "w-1", "name": "Ada", "email": "ADA@example.com"})
	requireCode(t, err, apperrors.CodeConflict)
	assert.Len(t, f.users.users, 1)
}

// ────────────────────────────────────────────────
// Accept / Reject
// ────────────────────────────────────────────────

func TestAcceptAndReject(t *testing.T) {
	f := newFixture(t)
	f.seedWaitlist(&model.Waitlist{ID: "w-1", EndEvent: model.EndEventTrigger, BeginsAt: t0})
	f.seedUser(&model.WaitlistUser{ID: "u-1", WaitlistID: "w-1", Email: "ada@example.com", Status: model.StatusPending})
	f.seedUser(&model.WaitlistUser{ID: "u-2", WaitlistID: "w-1", Email: "bob@example.com", Status: model.StatusPending})
	svc := f.service()

	accepted, err := svc.Accept(context.Background(), validator.Payload{"waitlistId": "w-1", "email": "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.LeftAt)
	assert.Equal(t, f.now, *accepted.LeftAt)
	require.Len(t, f.provisioner.requested, 1)
	assert.Equal(t, "u-1", f.provisioner.requested[0].ID)

	rejected, err := svc.Reject(context.Background(), validator.Payload{"waitlistId": "w-1", "email": "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)
	assert.Len(t, f.provisioner.requested, 1)
}

func TestDecision_Errors(t *testing.T) {
	tests := []struct {
		name     string
		user     *model.WaitlistUser
		accept   bool
		wantCode string
	}{
		{"unknown user", nil, true, apperrors.CodeNotFound},
		{
			"already accepted",
			&model.WaitlistUser{ID: "u-1", WaitlistID: "w-1", Email: "ada@example.com", Status: model.StatusAccepted, LeftAt: ptr(t0)},
			false,
			apperrors.CodeConflict,
		},
		{
			"already rejected",
			&model.WaitlistUser{ID: "u-1", WaitlistID: "w-1", Email: "ada@example.com", Status: model.StatusRejected, LeftAt: ptr(t0)},
			true,
			apperrors.CodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.user != nil {
				f.seedUser(tt.user)
			}
			svc := f.service()
			p := validator.Payload{"waitlistId": "w-1", "email": "ada@example.com"}

			var err error
			if tt.accept {
				_, err = svc.Accept(context.Background(), p)
			} else {
				_, err = svc.Reject(context.Background(), p)
			}
			requireCode(t, err, tt.wantCode)
			assert.Empty(t, f.provisioner.requested)
		})
	}
}

func TestAccept_ProvisioningFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.provisioner.err = errors.New("broker down")
	f.seedUser(&model.WaitlistUser{ID: "u-1", WaitlistID: "w-1", Email: "ada@example.com", Status: model.StatusPending})

	_, err := f.service().Accept(context.Background(), validator.Payload{"waitlistId": "w-1", "email": "ada@example.com"})
	requireCode(t, err, apperrors.CodeInternal)

	stored := f.users.users[0]
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Nil(t, stored.LeftAt)
}

func TestAccept_ProvisioningThroughDeadLetter(t *testing.T) {
	tests := []struct {
		name       string
		dlqErr     error
		wantCode   string
		wantStatus model.WaitlistUserStatus
		wantDLQ    int
	}{
		{
			name:       "dead-lettered request commits the acceptance",
			wantStatus: model.StatusAccepted,
			wantDLQ:    1,
		},
		{
			name:       "undeliverable request leaves the user pending and nothing queued",
			dlqErr:     errors.New("dlq down"),
			wantCode:   apperrors.CodeInternal,
			wantStatus: model.StatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			primary := &mockKafkaWriter{err: errors.New("broker down")}
			dlq := &mockKafkaWriter{err: tt.dlqErr}
			producer := kafka.NewWriterProducer(primary, dlq, "account.provisioning", "account.provisioning.dlq", 0, logger.Discard())
			f.deps.Provisioner = events.NewKafkaProvisioner(producer)
			f.seedUser(&model.WaitlistUser{ID: "u-1", WaitlistID: "w-1", Email: "ada@example.com", Status: model.StatusPending})

			_, err := f.service().Accept(context.Background(), validator.Payload{"waitlistId": "w-1", "email": "ada@example.com"})
			if tt.wantCode != "" {
				requireCode(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.wantStatus, f.users.users[0].Status)
			require.Len(t, dlq.messages, tt.wantDLQ)
			if tt.wantDLQ > 0 {
				assert.Equal(t, "ada@example.com", string(dlq.messages[0].Key))
			}
		})
	}
}

func TestAccept_WithoutProvisioner(t *testing.T) {
	f := newFixture(t)
	f.deps.Provisioner = nil
	f.seedUser(&model.WaitlistUser{ID: "u-1", WaitlistID: "w-1", Email: "ada@example.com", Status: model.StatusPending})

	u, err := f.service().Accept(context.Background(), validator.Payload{"waitlistId": "w-1", "email": "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, u.Status)
}

// ────────────────────────────────────────────────
// CheckAdmission
// ────────────────────────────────────────────────

func TestCheckAdmission(t *testing.T) {
	tests := []struct {
		name        string
		signUpGated bool
		signInGated bool
		active      bool
		status      model.WaitlistUserStatus
		flow        string
		want        Admission
	}{
		{"flow not gated", false, false, true, "", "sign-up", Admission{Allowed: true}},
		{"no active waitlist", true, false, false, "", "sign-up", Admission{Allowed: true}},
		{"accepted user", true, false, true, model.StatusAccepted, "sign-up", Admission{Allowed: true, WaitlistID: "w-1"}},
		{
			"pending user",
			true, false, true, model.StatusPending, "sign-up",
			Admission{WaitlistID: "w-1", Reason: "A waitlist is active and this email has not been accepted"},
		},
		{
			"unknown user on gated sign-in",
			false, true, true, "", "sign-in",
			Admission{WaitlistID: "w-1", Reason: "A waitlist is active and this email has not been accepted"},
		},
		{"sign-in open by default", true, false, true, "", "sign-in", Admission{Allowed: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.policy.DisableSignUp = tt.signUpGated
			f.policy.DisableSignIn = tt.signInGated
			if tt.active {
				f.seedWaitlist(&model.Waitlist{ID: "w-1", EndEvent: model.EndEventTrigger, BeginsAt: t0})
			}
			if tt.status != "" {
				f.seedUser(&model.WaitlistUser{ID: "u-1", WaitlistID: "w-1", Email: "ada@example.com", Status: tt.status})
			}

			got, err := f.service().CheckAdmission(context.Background(), validator.Payload{"email": "ada@example.com", "flow": tt.flow})
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}
