package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	notifications "github.com/zenGate-Global/palmyra-directory/domains/notifications/be/service"
	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
	"github.com/zenGate-Global/palmyra-directory/platform/go/steperr"
)

// Step names reported through steperr.
const (
	StepDeleteAccount    = "delete_account"
	StepQueryTenants     = "query_tenants"
	StepDeleteMembership = "delete_membership"
	StepUpdateMembership = "update_membership"
	StepLoadUser         = "load_user"
	StepCreateUser       = "create_user"
	StepSendInvitation   = "send_invitation"
)

// maxConcurrentWrites bounds the per-membership fan-out.
const maxConcurrentWrites = 8

// Repository abstracts the document database.
type Repository interface {
	GetUser(ctx context.Context, email string) (User, error)
	// CreateUser returns ErrConflict when the record already exists.
	CreateUser(ctx context.Context, user User) error
	// FindUsersByEmail queries every "users" collection, the central one included.
	FindUsersByEmail(ctx context.Context, email string) ([]DocumentMatch, error)
	MergeDocument(ctx context.Context, path string, fields map[string]any) error
	DeleteDocument(ctx context.Context, path string) error
}

// Inviter sends invitation emails for new memberships.
type Inviter interface {
	SendUserInvitation(ctx context.Context, in notifications.InvitationInput) error
}

// Config toggles optional behaviour.
type Config struct {
	// InvitationsEnabled sends an invitation when a membership is created.
	// Off by default; invitations go out through the CLI instead.
	InvitationsEnabled bool `env:"INVITATIONS_ENABLED" envDefault:"false"`
}

// Service defines the directory synchronization operations. Every method is
// best effort: independent steps all run, and their failures come back
// combined so the caller can log them once.
type Service interface {
	FindAccount(ctx context.Context, uid, email string) *Account
	UserAcrossTenants(ctx context.Context, email string) ([]DocumentMatch, error)
	OnUserCreated(ctx context.Context, email string, user User) error
	OnUserUpdated(ctx context.Context, email string, before, after *User) error
	OnUserDeleted(ctx context.Context, email string, deleted User) error
	OnTenantUserCreated(ctx context.Context, membership Membership) error
}

type service struct {
	repo     Repository
	accounts Accounts
	inviter  Inviter
	cfg      Config
	logger   *zap.Logger
}

// New constructs a directory Service. inviter is only required when
// invitations are enabled.
func New(repo Repository, accounts Accounts, inviter Inviter, cfg Config, logger *zap.Logger) Service {
	if repo == nil {
		panic("directory repository is required")
	}
	if accounts == nil {
		panic("accounts client is required")
	}
	if cfg.InvitationsEnabled && inviter == nil {
		panic("inviter is required when invitations are enabled")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{repo: repo, accounts: accounts, inviter: inviter, cfg: cfg, logger: logger}
}

func (s *service) FindAccount(ctx context.Context, uid, email string) *Account {
	return FindAccount(ctx, s.accounts, uid, email)
}

// UserAcrossTenants relies on the collection-group index over "users". The
// result includes the central record; filter with IsMembership when only
// tenant memberships matter.
func (s *service) UserAcrossTenants(ctx context.Context, email string) ([]DocumentMatch, error) {
	return s.repo.FindUsersByEmail(ctx, email)
}

func (s *service) OnUserCreated(ctx context.Context, email string, user User) error {
	s.log(ctx).Info("user added to the database", zap.String("email", email))
	return nil
}

func (s *service) OnUserUpdated(ctx context.Context, email string, before, after *User) error {
	if !ProviderChanged(before, after) {
		return nil
	}
	provider := *after.Provider

	matches, err := s.UserAcrossTenants(ctx, email)
	if err != nil {
		return &steperr.Error{Step: StepQueryTenants, Email: email, Err: err}
	}

	return s.eachMembership(ctx, matches, func(ctx context.Context, m DocumentMatch) error {
		if err := s.repo.MergeDocument(ctx, m.Path, map[string]any{"provider": provider}); err != nil {
			return &steperr.Error{Step: StepUpdateMembership, Email: email, TenantID: m.TenantID(), Path: m.Path, Err: err}
		}
		s.log(ctx).Info("updated user on tenant", zap.String("email", email), zap.String("tenant", m.TenantID()))
		return nil
	})
}

// ProviderChanged reports whether after carries a non-empty provider that
// differs from before's, a missing before counting as no provider.
func ProviderChanged(before, after *User) bool {
	if after == nil || after.Provider == nil || *after.Provider == "" {
		return false
	}
	if before == nil || before.Provider == nil {
		return true
	}
	return *before.Provider != *after.Provider
}

func (s *service) OnUserDeleted(ctx context.Context, email string, deleted User) error {
	s.log(ctx).Info("user removed from the database", zap.String("email", email))

	var uid string
	if deleted.UID != nil {
		uid = *deleted.UID
	}

	var g errgroup.Group
	var accountErr, tenantErr error
	g.Go(func() error {
		accountErr = s.deleteAccount(ctx, uid, email)
		return nil
	})
	g.Go(func() error {
		tenantErr = s.removeFromAllTenants(ctx, email)
		return nil
	})
	_ = g.Wait()

	return multierr.Combine(accountErr, tenantErr)
}

func (s *service) deleteAccount(ctx context.Context, uid, email string) error {
	logger := s.log(ctx)

	if uid == "" {
		if account := s.FindAccount(ctx, "", email); account != nil {
			uid = account.UID
		}
	}
	if uid == "" {
		logger.Debug("user has no identity account", zap.String("email", email))
		return nil
	}

	err := s.accounts.DeleteUser(ctx, uid)
	switch {
	case err == nil:
		logger.Info("identity account deleted", zap.String("uid", uid), zap.String("email", email))
		return nil
	case errors.Is(err, ErrAccountNotFound):
		logger.Debug("identity account does not exist", zap.String("uid", uid))
		return nil
	default:
		return &steperr.Error{Step: StepDeleteAccount, Email: email, UID: uid, Err: err}
	}
}

func (s *service) removeFromAllTenants(ctx context.Context, email string) error {
	matches, err := s.UserAcrossTenants(ctx, email)
	if err != nil {
		return &steperr.Error{Step: StepQueryTenants, Email: email, Err: err}
	}

	err = s.eachMembership(ctx, matches, func(ctx context.Context, m DocumentMatch) error {
		if err := s.repo.DeleteDocument(ctx, m.Path); err != nil {
			return &steperr.Error{Step: StepDeleteMembership, Email: email, TenantID: m.TenantID(), Path: m.Path, Err: err}
		}
		s.log(ctx).Info("removed user from tenant", zap.String("email", email), zap.String("tenant", m.TenantID()))
		return nil
	})
	if err == nil {
		s.log(ctx).Info("user removed from all existing tenants", zap.String("email", email))
	}
	return err
}

// eachMembership applies fn to every membership match concurrently. A
// failure never stops the other writes; all failures are combined.
func (s *service) eachMembership(ctx context.Context, matches []DocumentMatch, fn func(context.Context, DocumentMatch) error) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	g.SetLimit(maxConcurrentWrites)

	for _, m := range matches {
		if !m.IsMembership() {
			continue
		}
		g.Go(func() error {
			if err := fn(ctx, m); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// OnTenantUserCreated makes sure the central record exists and, when enabled,
// sends the invitation. The membership stays even if the central record
// cannot be created; nothing reconciles that afterwards.
func (s *service) OnTenantUserCreated(ctx context.Context, m Membership) error {
	s.log(ctx).Info("user added to tenant", zap.String("email", m.Email), zap.String("tenant", m.TenantID))

	var g errgroup.Group
	var ensureErr, inviteErr error
	g.Go(func() error {
		ensureErr = s.ensureCentralUser(ctx, m.Email, m.Name)
		return nil
	})
	if s.cfg.InvitationsEnabled {
		g.Go(func() error {
			inviteErr = s.invite(ctx, m)
			return nil
		})
	}
	_ = g.Wait()

	return multierr.Combine(ensureErr, inviteErr)
}

func (s *service) ensureCentralUser(ctx context.Context, email, name string) error {
	_, err := s.repo.GetUser(ctx, email)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, ErrNotFound):
		return &steperr.Error{Step: StepLoadUser, Email: email, Path: UserPath(email), Err: err}
	}

	err = s.repo.CreateUser(ctx, User{Email: email, Name: name})
	switch {
	case err == nil:
		s.log(ctx).Info("central user record created", zap.String("email", email))
		return nil
	case errors.Is(err, ErrConflict):
		// Another invocation created it between our read and write.
		return nil
	default:
		return &steperr.Error{Step: StepCreateUser, Email: email, Path: UserPath(email), Err: err}
	}
}

func (s *service) invite(ctx context.Context, m Membership) error {
	in := notifications.InvitationInput{
		TenantID: m.TenantID,
		Email:    m.Email,
		Role:     m.Role,
		Name:     m.Name,
	}
	if m.Role == RoleInvited && m.Invitation != nil {
		in.Message = m.Invitation.Message
	}

	err := s.inviter.SendUserInvitation(ctx, in)
	if err == nil {
		return nil
	}
	var stepErr *steperr.Error
	if errors.As(err, &stepErr) {
		return err
	}
	return &steperr.Error{Step: StepSendInvitation, Email: m.Email, TenantID: m.TenantID, Err: err}
}

func (s *service) log(ctx context.Context) *zap.Logger {
	return platformlogging.FromContextOr(ctx, s.logger)
}
