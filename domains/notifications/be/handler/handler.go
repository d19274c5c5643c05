package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/notifications/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/eventtrace"
	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
	"github.com/zenGate-Global/palmyra-directory/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-directory/platform/go/steperr"
)

const maxPushBytes = 10 << 20

// Deliverer is the email delivery worker contract.
type Deliverer interface {
	Deliver(ctx context.Context, msg service.Message) error
}

// Handler feeds queue messages to the delivery worker. Every message is
// acknowledged; failures are only logged.
type Handler struct {
	worker  Deliverer
	metrics *metrics.Recorder
	logger  *zap.Logger
}

// New constructs a Handler instance. recorder may be nil.
func New(worker Deliverer, recorder *metrics.Recorder, logger *zap.Logger) *Handler {
	if worker == nil {
		panic("email worker is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{worker: worker, metrics: recorder, logger: logger}
}

// Routes mounts the push endpoint.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/pubsub/emails", h.Push)
}

// Consume delivers one message and logs any failure.
func (h *Handler) Consume(ctx context.Context, msg service.Message) {
	logger := platformlogging.FromContextOr(ctx, h.logger).With(
		zap.String("message_id", msg.ID),
		zap.String("template", msg.Template()),
	)
	ctx = platformlogging.WithLogger(ctx, logger)

	err := h.worker.Deliver(ctx, msg)
	switch {
	case err == nil:
		h.metrics.Email(msg.Template(), metrics.OutcomeOK)
	case errors.Is(err, service.ErrUnknownTemplate):
		logger.Error("the specified email template is not valid", zap.String("email", msg.Email()))
		h.metrics.Email(metrics.TemplateUnknown, metrics.OutcomeIgnored)
	default:
		steperr.Log(logger, "error sending email notification", err)
		h.metrics.Email(msg.Template(), metrics.OutcomeFailed)
	}
}

// pushEnvelope is the Pub/Sub push request body. Data arrives base64
// encoded, which encoding/json decodes into a byte slice.
type pushEnvelope struct {
	Message struct {
		Data        []byte            `json:"data"`
		Attributes  map[string]string `json:"attributes"`
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Push handles a push delivery. It answers 204 even for malformed bodies so
// Pub/Sub does not redeliver them.
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	logger := platformlogging.FromRequest(r, h.logger)

	var env pushEnvelope
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBytes))
	if err == nil {
		err = json.Unmarshal(body, &env)
	}
	if err != nil {
		logger.Error("dropping malformed push message", zap.Error(err))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ctx := platformlogging.WithLogger(r.Context(), logger.With(zap.String("subscription", env.Subscription)))
	h.Consume(ctx, service.Message{
		ID:         env.Message.MessageID,
		Data:       env.Message.Data,
		Attributes: env.Message.Attributes,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Receive pulls from sub until ctx is done. Messages are acked after
// delivery whatever the outcome.
func (h *Handler) Receive(ctx context.Context, sub *pubsub.Subscription) error {
	h.logger.Info("receiving email messages", zap.String("subscription", sub.ID()))
	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		defer m.Ack()

		info := eventtrace.Pull(m.ID, sub.ID())
		ctx = eventtrace.IntoContext(ctx, info)
		ctx = platformlogging.WithLogger(ctx, h.logger.With(info.Fields()...))

		h.Consume(ctx, service.Message{ID: m.ID, Data: m.Data, Attributes: m.Attributes})
	})
}
