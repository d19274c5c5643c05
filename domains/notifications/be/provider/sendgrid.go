package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/notifications/be/service"
)

const (
	defaultSendGridHost = "https://api.sendgrid.com"
	mailSendEndpoint    = "/v3/mail/send"

	// messageKey carries the personalized body into the template data; the
	// template decides where to render it.
	messageKey = "message"
)

var ErrMissingAPIKey = errors.New("sendgrid api key is required")

// SendGridConfig configures the SendGrid v3 client.
type SendGridConfig struct {
	APIKey string `env:"SENDGRID_API_KEY"`
	Host   string `env:"SENDGRID_HOST" envDefault:"https://api.sendgrid.com"`
}

// SendGridSender delivers payloads through SendGrid dynamic templates.
type SendGridSender struct {
	apiKey string
	host   string
}

func NewSendGridSender(cfg SendGridConfig) (*SendGridSender, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	host := strings.TrimRight(cfg.Host, "/")
	if host == "" {
		host = defaultSendGridHost
	}
	return &SendGridSender{apiKey: cfg.APIKey, host: host}, nil
}

func (s *SendGridSender) Send(ctx context.Context, p service.Payload) error {
	req := sendgrid.GetRequest(s.apiKey, mailSendEndpoint, s.host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(buildMail(p))

	resp, err := rest.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return newSendError(resp.StatusCode, resp.Body)
	}
	return nil
}

func buildMail(p service.Payload) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail("", p.From))
	m.SetTemplateID(p.TemplateID)

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail("", p.To))
	for k, v := range p.Data {
		personalization.SetDynamicTemplateData(k, v)
	}
	if p.Message != nil {
		personalization.SetDynamicTemplateData(messageKey, *p.Message)
	}
	m.AddPersonalizations(personalization)
	return m
}

// SendErrorDetail is one entry of the SendGrid error body.
type SendErrorDetail struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Help    string `json:"help,omitempty"`
}

// SendError is a non-2xx answer from SendGrid with its body unpacked.
type SendError struct {
	StatusCode int
	Details    []SendErrorDetail
	Body       string
}

func newSendError(status int, body string) *SendError {
	e := &SendError{StatusCode: status, Body: body}
	var parsed struct {
		Errors []SendErrorDetail `json:"errors"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		e.Details = parsed.Errors
	}
	return e
}

func (e *SendError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("sendgrid returned %d", e.StatusCode)
	}
	msgs := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		if d.Field != "" {
			msgs = append(msgs, d.Field+": "+d.Message)
			continue
		}
		msgs = append(msgs, d.Message)
	}
	return fmt.Sprintf("sendgrid returned %d: %s", e.StatusCode, strings.Join(msgs, "; "))
}

// LogFields exposes the provider body so it is not lost in a flattened message.
func (e *SendError) LogFields() []zap.Field {
	fields := []zap.Field{zap.Int("provider_status", e.StatusCode)}
	if len(e.Details) > 0 {
		fields = append(fields, zap.Any("provider_errors", e.Details))
	} else if e.Body != "" {
		fields = append(fields, zap.String("provider_body", e.Body))
	}
	return fields
}

var _ service.Sender = (*SendGridSender)(nil)
