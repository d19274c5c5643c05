package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/eventtrace"
	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
	"github.com/zenGate-Global/palmyra-directory/platform/go/steperr"
)

// Dispatcher turns email requests into queue messages.
type Dispatcher struct {
	publisher Publisher
	tenants   Tenants
	cfg       Config
	logger    *zap.Logger
}

// NewDispatcher constructs a Dispatcher. tenants may be nil when invitations are not sent.
func NewDispatcher(publisher Publisher, tenants Tenants, cfg Config, logger *zap.Logger) *Dispatcher {
	if publisher == nil {
		panic("email publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{publisher: publisher, tenants: tenants, cfg: cfg, logger: logger}
}

// SendUserInvitation publishes an invitation email for invited members; any
// other role is a no-op. Users are also added to tenants during registration,
// which is why the role is checked here rather than by the caller.
func (d *Dispatcher) SendUserInvitation(ctx context.Context, in InvitationInput) error {
	if in.Role != RoleInvited {
		return nil
	}
	if d.tenants == nil {
		return &steperr.Error{Step: StepLoadTenant, Email: in.Email, TenantID: in.TenantID, Err: ErrNoTenantSource}
	}

	company, err := d.tenants.TenantName(ctx, in.TenantID)
	if err != nil {
		return &steperr.Error{Step: StepLoadTenant, Email: in.Email, TenantID: in.TenantID, Err: err}
	}

	attributes := map[string]string{
		AttrTemplate: d.cfg.Templates.UserInvitation,
		AttrEmail:    in.Email,
		AttrName:     in.Name,
		AttrCompany:  company,
		AttrLink:     d.cfg.ProductURL + "/link",
		AttrOrigin:   origin(ctx),
	}

	var body string
	if in.Message != nil {
		body = *in.Message
	}

	id, err := d.publisher.Publish(ctx, []byte(body), attributes)
	if err != nil {
		return &steperr.Error{Step: StepPublishEmail, Email: in.Email, TenantID: in.TenantID, Template: attributes[AttrTemplate], Err: err}
	}

	d.log(ctx).Info("published invitation message",
		zap.String("message_id", id),
		zap.String("email", in.Email),
		zap.String("tenant", in.TenantID),
	)
	return nil
}

// RequestEmailVerification publishes an email-verification message.
func (d *Dispatcher) RequestEmailVerification(ctx context.Context, email, name, link string) (string, error) {
	return d.publish(ctx, map[string]string{
		AttrTemplate: d.cfg.Templates.EmailVerification,
		AttrEmail:    email,
		AttrName:     name,
		AttrLink:     link,
	})
}

// RequestIdentityVerification publishes a one-time-code message.
func (d *Dispatcher) RequestIdentityVerification(ctx context.Context, email, name, code string) (string, error) {
	return d.publish(ctx, map[string]string{
		AttrTemplate: d.cfg.Templates.IdentityVerification,
		AttrEmail:    email,
		AttrName:     name,
		AttrCode:     code,
	})
}

// RequestPasswordReset publishes a password-reset message.
func (d *Dispatcher) RequestPasswordReset(ctx context.Context, email, name, link string) (string, error) {
	return d.publish(ctx, map[string]string{
		AttrTemplate: d.cfg.Templates.PasswordReset,
		AttrEmail:    email,
		AttrName:     name,
		AttrLink:     link,
	})
}

func (d *Dispatcher) publish(ctx context.Context, attributes map[string]string) (string, error) {
	attributes[AttrOrigin] = origin(ctx)
	id, err := d.publisher.Publish(ctx, nil, attributes)
	if err != nil {
		return "", &steperr.Error{Step: StepPublishEmail, Email: attributes[AttrEmail], Template: attributes[AttrTemplate], Err: err}
	}
	d.log(ctx).Info("published email message",
		zap.String("message_id", id),
		zap.String("email", attributes[AttrEmail]),
		zap.String("template", attributes[AttrTemplate]),
	)
	return id, nil
}

// origin names the transport of the invocation; work started outside any
// event, such as from the CLI, is manual.
func origin(ctx context.Context) string {
	return string(eventtrace.FromContextOrManual(ctx).SourceKind)
}

func (d *Dispatcher) log(ctx context.Context) *zap.Logger {
	return platformlogging.FromContextOr(ctx, d.logger)
}
