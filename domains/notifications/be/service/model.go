package service

import (
	"context"
	"errors"
)

// Queue message attribute keys.
const (
	AttrTemplate = "template"
	AttrEmail    = "email"
	AttrName     = "name"
	AttrCompany  = "company"
	AttrLink     = "link"
	AttrCode     = "code"
	// AttrOrigin records how the request reached the dispatcher
	// (cloudevent, push, pull or manual).
	AttrOrigin = "origin"
)

// RoleInvited is the membership role that triggers an invitation email.
const RoleInvited = "invited"

// Step names reported through steperr.
const (
	StepLoadTenant   = "load_tenant"
	StepPublishEmail = "publish_email"
	StepBuildEmail   = "build_email"
	StepSendEmail    = "send_email"
)

var (
	// ErrUnknownTemplate marks a message whose template matches none of the configured ones.
	ErrUnknownTemplate = errors.New("unknown email template")
	ErrNoTenantSource  = errors.New("no tenant source configured")
)

// Templates holds the provider template ids. The template attribute of a
// queue message carries one of these values verbatim.
type Templates struct {
	EmailVerification    string `env:"EMAIL_VERIFICATION" envDefault:"email_verification"`
	IdentityVerification string `env:"IDENTITY_VERIFICATION" envDefault:"identity_verification"`
	UserInvitation       string `env:"USER_INVITATION" envDefault:"user_invitation"`
	PasswordReset        string `env:"PASSWORD_RESET" envDefault:"password_reset"`
}

// Config is shared by the dispatcher and the worker.
type Config struct {
	Templates  Templates `envPrefix:"TEMPLATE_"`
	ProductURL string    `env:"PRODUCT_URL" envDefault:"http://localhost:3000"`
	From       string    `env:"SENDGRID_FROM" envDefault:"no-reply@localhost"`
}

// Message is one queue message, body already base64-decoded.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Template returns the template attribute.
func (m Message) Template() string { return m.Attributes[AttrTemplate] }

// Email returns the recipient attribute.
func (m Message) Email() string { return m.Attributes[AttrEmail] }

// Origin returns the origin attribute.
func (m Message) Origin() string { return m.Attributes[AttrOrigin] }

// Payload is what the provider sends. Message, when set, overrides the
// rendered body with the sender's personalized text.
type Payload struct {
	To         string
	From       string
	TemplateID string
	Data       map[string]string
	Message    *string
}

// Publisher writes to the email topic and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// Sender delivers a payload through the email provider.
type Sender interface {
	Send(ctx context.Context, payload Payload) error
}

// Tenants resolves a tenant display name.
type Tenants interface {
	TenantName(ctx context.Context, tenantID string) (string, error)
}

// InvitationInput describes a membership that may need an invitation email.
type InvitationInput struct {
	TenantID string
	Email    string
	Role     string
	Name     string
	Message  *string
}
