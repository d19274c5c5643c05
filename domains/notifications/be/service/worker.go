package service

import (
	"context"

	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
	"github.com/zenGate-Global/palmyra-directory/platform/go/steperr"
)

// Worker renders queue messages into provider payloads and sends them.
type Worker struct {
	sender Sender
	cfg    Config
	logger *zap.Logger
}

// NewWorker constructs a Worker.
func NewWorker(sender Sender, cfg Config, logger *zap.Logger) *Worker {
	if sender == nil {
		panic("email sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{sender: sender, cfg: cfg, logger: logger}
}

// Build selects the template and fills in its merge fields.
func (w *Worker) Build(msg Message) (Payload, error) {
	template := msg.Template()
	attrs := msg.Attributes

	payload := Payload{
		To:         msg.Email(),
		From:       w.cfg.From,
		TemplateID: template,
	}

	t := w.cfg.Templates
	switch {
	case template == "":
		return Payload{}, ErrUnknownTemplate
	case template == t.EmailVerification:
		payload.Data = map[string]string{AttrName: attrs[AttrName], AttrLink: attrs[AttrLink]}
	case template == t.IdentityVerification:
		payload.Data = map[string]string{AttrName: attrs[AttrName], AttrCode: attrs[AttrCode]}
	case template == t.UserInvitation:
		payload.Data = map[string]string{
			AttrName:    attrs[AttrName],
			AttrCompany: attrs[AttrCompany],
			AttrLink:    attrs[AttrLink],
		}
		if content := string(msg.Data); content != "" {
			payload.Message = &content
		}
	case template == t.PasswordReset:
		payload.Data = map[string]string{AttrName: attrs[AttrName], AttrLink: attrs[AttrLink]}
	default:
		return Payload{}, ErrUnknownTemplate
	}

	return payload, nil
}

// Deliver builds and sends one message. Both an unknown template and a
// provider failure are returned as *steperr.Error; the caller acknowledges
// the message either way.
func (w *Worker) Deliver(ctx context.Context, msg Message) error {
	payload, err := w.Build(msg)
	if err != nil {
		return &steperr.Error{Step: StepBuildEmail, Email: msg.Email(), Template: msg.Template(), Err: err}
	}

	if err := w.sender.Send(ctx, payload); err != nil {
		return &steperr.Error{Step: StepSendEmail, Email: payload.To, Template: payload.TemplateID, Err: err}
	}

	platformlogging.FromContextOr(ctx, w.logger).Info("email notification sent",
		zap.String("template", payload.TemplateID),
		zap.String("email", payload.To),
		zap.String("origin", msg.Origin()),
	)
	return nil
}
