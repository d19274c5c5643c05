package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	notifications "github.com/zenGate-Global/palmyra-directory/domains/notifications/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/steperr"
)

type mockRepository struct {
	getUserFn    func(ctx context.Context, email string) (User, error)
	createUserFn func(ctx context.Context, user User) error
	findFn       func(ctx context.Context, email string) ([]DocumentMatch, error)
	mergeFn      func(ctx context.Context, path string, fields map[string]any) error
	deleteFn     func(ctx context.Context, path string) error

	mu      sync.Mutex
	merged  map[string]map[string]any
	deleted []string
	created []User
}

func (m *mockRepository) GetUser(ctx context.Context, email string) (User, error) {
	if m.getUserFn == nil {
		panic("getUserFn not configured")
	}
	return m.getUserFn(ctx, email)
}

func (m *mockRepository) CreateUser(ctx context.Context, user User) error {
	m.mu.Lock()
	m.created = append(m.created, user)
	m.mu.Unlock()
	if m.createUserFn == nil {
		return nil
	}
	return m.createUserFn(ctx, user)
}

func (m *mockRepository) FindUsersByEmail(ctx context.Context, email string) ([]DocumentMatch, error) {
	if m.findFn == nil {
		panic("findFn not configured")
	}
	return m.findFn(ctx, email)
}

func (m *mockRepository) MergeDocument(ctx context.Context, path string, fields map[string]any) error {
	if m.mergeFn != nil {
		if err := m.mergeFn(ctx, path, fields); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.merged == nil {
		m.merged = map[string]map[string]any{}
	}
	m.merged[path] = fields
	return nil
}

func (m *mockRepository) DeleteDocument(ctx context.Context, path string) error {
	if m.deleteFn != nil {
		if err := m.deleteFn(ctx, path); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, path)
	return nil
}

func (m *mockRepository) deletedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.deleted...)
	sort.Strings(out)
	return out
}

type mockAccounts struct {
	getUserFn        func(ctx context.Context, uid string) (Account, error)
	getUserByEmailFn func(ctx context.Context, email string) (Account, error)
	deleteUserFn     func(ctx context.Context, uid string) error

	deleteCalls atomic.Int32
}

func (m *mockAccounts) GetUser(ctx context.Context, uid string) (Account, error) {
	if m.getUserFn == nil {
		panic("getUserFn not configured")
	}
	return m.getUserFn(ctx, uid)
}

func (m *mockAccounts) GetUserByEmail(ctx context.Context, email string) (Account, error) {
	if m.getUserByEmailFn == nil {
		panic("getUserByEmailFn not configured")
	}
	return m.getUserByEmailFn(ctx, email)
}

func (m *mockAccounts) DeleteUser(ctx context.Context, uid string) error {
	m.deleteCalls.Add(1)
	if m.deleteUserFn == nil {
		return nil
	}
	return m.deleteUserFn(ctx, uid)
}

type recordingInviter struct {
	mu    sync.Mutex
	calls []notifications.InvitationInput
	err   error
}

func (r *recordingInviter) SendUserInvitation(ctx context.Context, in notifications.InvitationInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, in)
	return r.err
}

func ptr[T any](v T) *T { return &v }

func matchesFor(email string, tenants ...string) []DocumentMatch {
	out := []DocumentMatch{{Path: UserPath(email), Data: map[string]any{"email": email}}}
	for _, t := range tenants {
		out = append(out, DocumentMatch{Path: MembershipPath(t, email), Data: map[string]any{"email": email}})
	}
	return out
}

func TestFindAccountPrefersUID(t *testing.T) {
	t.Parallel()

	var byEmail bool
	accounts := &mockAccounts{
		getUserFn: func(ctx context.Context, uid string) (Account, error) {
			return Account{UID: uid, Email: "uid@x.com"}, nil
		},
		getUserByEmailFn: func(ctx context.Context, email string) (Account, error) {
			byEmail = true
			return Account{UID: "other"}, nil
		},
	}

	account := FindAccount(context.Background(), accounts, "u-1", "a@x.com")
	require.NotNil(t, account)
	require.Equal(t, "u-1", account.UID)
	require.False(t, byEmail)
}

func TestFindAccountByEmail(t *testing.T) {
	t.Parallel()

	accounts := &mockAccounts{
		getUserByEmailFn: func(ctx context.Context, email string) (Account, error) {
			return Account{UID: "u-2", Email: email}, nil
		},
	}

	account := FindAccount(context.Background(), accounts, "", "a@x.com")
	require.NotNil(t, account)
	require.Equal(t, "u-2", account.UID)
}

func TestFindAccountCollapsesErrors(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrAccountNotFound, errors.New("connection reset")} {
		accounts := &mockAccounts{
			getUserFn:        func(ctx context.Context, uid string) (Account, error) { return Account{}, err },
			getUserByEmailFn: func(ctx context.Context, email string) (Account, error) { return Account{}, err },
		}
		require.Nil(t, FindAccount(context.Background(), accounts, "u-1", ""))
		require.Nil(t, FindAccount(context.Background(), accounts, "", "a@x.com"))
	}
	require.Nil(t, FindAccount(context.Background(), &mockAccounts{}, "", ""))
}

func TestOnUserDeletedRemovesAccountAndMemberships(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{
		findFn: func(ctx context.Context, email string) ([]DocumentMatch, error) {
			return matchesFor(email, "acme", "beta"), nil
		},
	}
	var deletedUID string
	accounts := &mockAccounts{deleteUserFn: func(ctx context.Context, uid string) error {
		deletedUID = uid
		return nil
	}}

	svc := New(repo, accounts, nil, Config{}, zaptest.NewLogger(t))
	err := svc.OnUserDeleted(context.Background(), "a@x.com", User{Email: "a@x.com", UID: ptr("u-1")})
	require.NoError(t, err)

	require.Equal(t, "u-1", deletedUID)
	require.Equal(t, []string{"tenants/acme/users/a@x.com", "tenants/beta/users/a@x.com"}, repo.deletedPaths())
}

func TestOnUserDeletedResolvesUIDByEmail(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{findFn: func(ctx context.Context, email string) ([]DocumentMatch, error) { return nil, nil }}
	var deletedUID string
	accounts := &mockAccounts{
		getUserByEmailFn: func(ctx context.Context, email string) (Account, error) {
			return Account{UID: "u-by-email"}, nil
		},
		deleteUserFn: func(ctx context.Context, uid string) error {
			deletedUID = uid
			return nil
		},
	}

	svc := New(repo, accounts, nil, Config{}, nil)
	require.NoError(t, svc.OnUserDeleted(context.Background(), "a@x.com", User{Email: "a@x.com"}))
	require.Equal(t, "u-by-email", deletedUID)
}

func TestOnUserDeletedWithoutAccount(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{findFn: func(ctx context.Context, email string) ([]DocumentMatch, error) { return nil, nil }}
	accounts := &mockAccounts{
		getUserByEmailFn: func(ctx context.Context, email string) (Account, error) {
			return Account{}, ErrAccountNotFound
		},
	}

	svc := New(repo, accounts, nil, Config{}, nil)
	require.NoError(t, svc.OnUserDeleted(context.Background(), "a@x.com", User{}))
	require.Zero(t, accounts.deleteCalls.Load())
}

func TestOnUserDeletedToleratesMissingAccount(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{findFn: func(ctx context.Context, email string) ([]DocumentMatch, error) { return nil, nil }}
	accounts := &mockAccounts{deleteUserFn: func(ctx context.Context, uid string) error { return ErrAccountNotFound }}

	svc := New(repo, accounts, nil, Config{}, nil)
	require.NoError(t, svc.OnUserDeleted(context.Background(), "a@x.com", User{UID: ptr("gone")}))
}

func TestOnUserDeletedAccountFailureStillCleansTenants(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{findFn: func(ctx context.Context, email string) ([]DocumentMatch, error) {
		return matchesFor(email, "acme"), nil
	}}
	accounts := &mockAccounts{deleteUserFn: func(ctx context.Context, uid string) error { return errors.New("auth unavailable") }}

	svc := New(repo, accounts, nil, Config{}, nil)
	err := svc.OnUserDeleted(context.Background(), "a@x.com", User{UID: ptr("u-1")})

	var stepErr *steperr.Error
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepDeleteAccount, stepErr.Step)
	require.Equal(t, []string{"tenants/acme/users/a@x.com"}, repo.deletedPaths())
}

func TestOnUserDeletedTenantFailureStillDeletesAccount(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{findFn: func(ctx context.Context, email string) ([]DocumentMatch, error) {
		return nil, errors.New("missing index")
	}}
	accounts := &mockAccounts{}

	svc := New(repo, accounts, nil, Config{}, nil)
	err := svc.OnUserDeleted(context.Background(), "a@x.com", User{UID: ptr("u-1")})

	var stepErr *steperr.Error
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepQueryTenants, stepErr.Step)
	require.EqualValues(t, 1, accounts.deleteCalls.Load())
}

func TestOnUserDeletedPerRecordFailuresDoNotStopOthers(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{
		findFn: func(ctx context.Context, email string) ([]DocumentMatch, error) {
			return matchesFor(email, "acme", "beta", "gamma"), nil
		},
		deleteFn: func(ctx context.Context, path string) error {
			if path == MembershipPath("beta", "a@x.com") {
				return errors.New("permission denied")
			}
			return nil
		},
	}
	accounts := &mockAccounts{deleteUserFn: func(ctx context.Context, uid string) error { return errors.New("auth down") }}

	svc := New(repo, accounts, nil, Config{}, nil)
	err := svc.OnUserDeleted(context.Background(), "a@x.com", User{UID: ptr("u-1")})
	require.Error(t, err)
	require.Equal(t, []string{"tenants/acme/users/a@x.com", "tenants/gamma/users/a@x.com"}, repo.deletedPaths())
	require.Equal(t, 2, steperr.Log(nil, "failed", err))
}

func TestOnUserDeletedSkipsCentralRecord(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{findFn: func(ctx context.Context, email string) ([]DocumentMatch, error) {
		return matchesFor(email), nil
	}}
	svc := New(repo, &mockAccounts{}, nil, Config{}, nil)
	require.NoError(t, svc.OnUserDeleted(context.Background(), "a@x.com", User{UID: ptr("u-1")}))
	require.Empty(t, repo.deletedPaths())
}

func TestProviderChanged(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		before, after *User
		want          bool
	}{
		{"null to google", &User{}, &User{Provider: ptr("google")}, true},
		{"missing before", nil, &User{Provider: ptr("google")}, true},
		{"google to github", &User{Provider: ptr("google")}, &User{Provider: ptr("github")}, true},
		{"unchanged", &User{Provider: ptr("google")}, &User{Provider: ptr("google")}, false},
		{"google to null", &User{Provider: ptr("google")}, &User{}, false},
		{"google to empty", &User{Provider: ptr("google")}, &User{Provider: ptr("")}, false},
		{"missing after", &User{Provider: ptr("google")}, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ProviderChanged(tc.before, tc.after))
		})
	}
}

func TestOnUserUpdatedPropagatesProvider(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{findFn: func(ctx context.Context, email string) ([]DocumentMatch, error) {
		return matchesFor(email, "acme", "beta"), nil
	}}
	svc := New(repo, &mockAccounts{}, nil, Config{}, nil)

	err := svc.OnUserUpdated(context.Background(), "a@x.com", &User{}, &User{Provider: ptr("google")})
	require.NoError(t, err)
	require.Equal(t, map[string]map[string]any{
		"tenants/acme/users/a@x.com": {"provider": "google"},
		"tenants/beta/users/a@x.com": {"provider": "google"},
	}, repo.merged)
}

func TestOnUserUpdatedNoChangeNoQuery(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	svc := New(repo, &mockAccounts{}, nil, Config{}, nil)

	require.NoError(t, svc.OnUserUpdated(context.Background(), "a@x.com", &User{Provider: ptr("google")}, &User{Provider: ptr("google")}))
	require.NoError(t, svc.OnUserUpdated(context.Background(), "a@x.com", &User{Provider: ptr("google")}, &User{}))
	require.Empty(t, repo.merged)
}

func TestOnUserUpdatedPartialFailure(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{
		findFn: func(ctx context.Context, email string) ([]DocumentMatch, error) {
			return matchesFor(email, "acme", "beta"), nil
		},
		mergeFn: func(ctx context.Context, path string, fields map[string]any) error {
			if TenantIDFromPath(path) == "acme" {
				return errors.New("deadline exceeded")
			}
			return nil
		},
	}
	svc := New(repo, &mockAccounts{}, nil, Config{}, nil)

	err := svc.OnUserUpdated(context.Background(), "a@x.com", nil, &User{Provider: ptr("google")})
	var stepErr *steperr.Error
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepUpdateMembership, stepErr.Step)
	require.Equal(t, "acme", stepErr.TenantID)
	require.Contains(t, repo.merged, "tenants/beta/users/a@x.com")
}

func TestOnTenantUserCreatedCreatesCentralUser(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{getUserFn: func(ctx context.Context, email string) (User, error) { return User{}, ErrNotFound }}
	svc := New(repo, &mockAccounts{}, nil, Config{}, nil)

	err := svc.OnTenantUserCreated(context.Background(), Membership{TenantID: "acme", Email: "new@x.com", Name: "New", Role: RoleInvited})
	require.NoError(t, err)
	require.Equal(t, []User{{Email: "new@x.com", Name: "New"}}, repo.created)
	require.Nil(t, repo.created[0].UID)
}

func TestOnTenantUserCreatedExistingUser(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{getUserFn: func(ctx context.Context, email string) (User, error) { return User{Email: email}, nil }}
	svc := New(repo, &mockAccounts{}, nil, Config{}, nil)

	require.NoError(t, svc.OnTenantUserCreated(context.Background(), Membership{TenantID: "acme", Email: "a@x.com"}))
	require.Empty(t, repo.created)
}

func TestOnTenantUserCreatedConflictIsSuccess(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{
		getUserFn:    func(ctx context.Context, email string) (User, error) { return User{}, ErrNotFound },
		createUserFn: func(ctx context.Context, user User) error { return ErrConflict },
	}
	svc := New(repo, &mockAccounts{}, nil, Config{}, nil)
	require.NoError(t, svc.OnTenantUserCreated(context.Background(), Membership{TenantID: "acme", Email: "a@x.com"}))
}

func TestOnTenantUserCreatedReportsFailures(t *testing.T) {
	t.Parallel()

	loadFail := &mockRepository{getUserFn: func(ctx context.Context, email string) (User, error) { return User{}, errors.New("unavailable") }}
	err := New(loadFail, &mockAccounts{}, nil, Config{}, nil).OnTenantUserCreated(context.Background(), Membership{Email: "a@x.com"})
	var stepErr *steperr.Error
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepLoadUser, stepErr.Step)
	require.Empty(t, loadFail.created)

	createFail := &mockRepository{
		getUserFn:    func(ctx context.Context, email string) (User, error) { return User{}, ErrNotFound },
		createUserFn: func(ctx context.Context, user User) error { return errors.New("quota") },
	}
	err = New(createFail, &mockAccounts{}, nil, Config{}, nil).OnTenantUserCreated(context.Background(), Membership{Email: "a@x.com"})
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepCreateUser, stepErr.Step)
}

func TestOnTenantUserCreatedInvitationDisabledByDefault(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{getUserFn: func(ctx context.Context, email string) (User, error) { return User{}, ErrNotFound }}
	inviter := &recordingInviter{}
	svc := New(repo, &mockAccounts{}, inviter, Config{}, nil)

	require.NoError(t, svc.OnTenantUserCreated(context.Background(), Membership{TenantID: "acme", Email: "a@x.com", Role: RoleInvited}))
	require.Empty(t, inviter.calls)
}

func TestOnTenantUserCreatedSendsInvitation(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{getUserFn: func(ctx context.Context, email string) (User, error) { return User{}, ErrNotFound }}
	inviter := &recordingInviter{}
	svc := New(repo, &mockAccounts{}, inviter, Config{InvitationsEnabled: true}, nil)

	m := Membership{
		TenantID:   "acme",
		Email:      "a@x.com",
		Name:       "A",
		Role:       RoleInvited,
		Invitation: &Invitation{Message: ptr("hello")},
	}
	require.NoError(t, svc.OnTenantUserCreated(context.Background(), m))
	require.Equal(t, []notifications.InvitationInput{{
		TenantID: "acme",
		Email:    "a@x.com",
		Role:     RoleInvited,
		Name:     "A",
		Message:  ptr("hello"),
	}}, inviter.calls)
}

func TestOnTenantUserCreatedInvitationFailureKeepsCentralUser(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{getUserFn: func(ctx context.Context, email string) (User, error) { return User{}, ErrNotFound }}
	inviter := &recordingInviter{err: errors.New("publish failed")}
	svc := New(repo, &mockAccounts{}, inviter, Config{InvitationsEnabled: true}, nil)

	err := svc.OnTenantUserCreated(context.Background(), Membership{TenantID: "acme", Email: "a@x.com", Role: RoleInvited})
	var stepErr *steperr.Error
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepSendInvitation, stepErr.Step)
	require.Len(t, repo.created, 1)
}

func TestNewRequiresInviterWhenEnabled(t *testing.T) {
	require.Panics(t, func() {
		New(&mockRepository{}, &mockAccounts{}, nil, Config{InvitationsEnabled: true}, nil)
	})
}
