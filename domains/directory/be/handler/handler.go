package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/directory/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/firestoreevent"
	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
	"github.com/zenGate-Global/palmyra-directory/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-directory/platform/go/steperr"
)

// Trigger names used for routing and metrics.
const (
	TriggerUserCreated       = "user_created"
	TriggerUserUpdated       = "user_updated"
	TriggerUserDeleted       = "user_deleted"
	TriggerTenantUserCreated = "tenant_user_created"
)

// StepDecodeDocument marks a snapshot whose fields could not be decoded.
const StepDecodeDocument = "decode_document"

const maxEventBytes = 1 << 20

// Handler receives Firestore document events and routes them to the directory service.
type Handler struct {
	svc     service.Service
	metrics *metrics.Recorder
	logger  *zap.Logger
}

// New constructs a Handler instance. recorder may be nil.
func New(svc service.Service, recorder *metrics.Recorder, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("directory service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, metrics: recorder, logger: logger}
}

// Routes mounts the event endpoint.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/events/firestore", h.FirestoreEvent)
}

// FirestoreEvent handles one document change delivered as an Eventarc
// CloudEvent or a legacy background event. Only an undecodable event is
// rejected; step failures are logged and the event is acknowledged.
func (h *Handler) FirestoreEvent(w http.ResponseWriter, r *http.Request) {
	logger := platformlogging.FromRequest(r, h.logger)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		logger.Warn("failed to read event body", zap.Error(err))
		http.Error(w, "unreadable event body", http.StatusBadRequest)
		return
	}

	env, err := firestoreevent.DecodeRequest(r.Header, body)
	if err != nil {
		logger.Warn("invalid firestore event", zap.Error(err))
		http.Error(w, "invalid firestore event", http.StatusBadRequest)
		return
	}

	logger = logger.With(
		zap.String("document", env.Path()),
		zap.String("kind", string(env.Kind())),
		zap.String("event_id", env.Context.EventID),
	)
	ctx := platformlogging.WithLogger(r.Context(), logger)

	trigger, err := h.Dispatch(ctx, env)
	if trigger == "" {
		logger.Debug("no trigger for document event")
	} else {
		steperr.Log(logger, "directory step failed", err)
		h.metrics.Event(trigger, err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// Dispatch routes env by document path and change kind. It returns the
// trigger that ran, or "" when the event matches none.
func (h *Handler) Dispatch(ctx context.Context, env firestoreevent.Envelope) (string, error) {
	segments := strings.Split(env.Path(), "/")

	switch {
	case len(segments) == 2 && segments[0] == service.UsersCollection:
		return h.dispatchUser(ctx, segments[1], env)
	case len(segments) == 4 &&
		segments[0] == service.TenantsCollection &&
		segments[2] == service.UsersCollection &&
		env.Kind() == firestoreevent.KindCreate:
		fields, err := env.Data.Value.Data()
		if err != nil {
			return TriggerTenantUserCreated, decodeErr(env.Path(), err)
		}
		membership := service.MembershipFromFields(segments[1], segments[3], fields)
		return TriggerTenantUserCreated, h.svc.OnTenantUserCreated(ctx, membership)
	default:
		return "", nil
	}
}

func (h *Handler) dispatchUser(ctx context.Context, email string, env firestoreevent.Envelope) (string, error) {
	switch env.Kind() {
	case firestoreevent.KindCreate:
		after, err := userSnapshot(env.Data.Value)
		if err != nil {
			return TriggerUserCreated, decodeErr(env.Path(), err)
		}
		var user service.User
		if after != nil {
			user = *after
		}
		return TriggerUserCreated, h.svc.OnUserCreated(ctx, email, user)

	case firestoreevent.KindUpdate:
		before, err := userSnapshot(env.Data.OldValue)
		if err != nil {
			return TriggerUserUpdated, decodeErr(env.Path(), err)
		}
		after, err := userSnapshot(env.Data.Value)
		if err != nil {
			return TriggerUserUpdated, decodeErr(env.Path(), err)
		}
		return TriggerUserUpdated, h.svc.OnUserUpdated(ctx, email, before, after)

	case firestoreevent.KindDelete:
		deleted, err := userSnapshot(env.Data.OldValue)
		if err != nil {
			return TriggerUserDeleted, decodeErr(env.Path(), err)
		}
		var user service.User
		if deleted != nil {
			user = *deleted
		}
		return TriggerUserDeleted, h.svc.OnUserDeleted(ctx, email, user)

	default:
		return "", nil
	}
}

// userSnapshot decodes a central user snapshot; a missing snapshot is nil.
func userSnapshot(doc *firestoreevent.Document) (*service.User, error) {
	if !doc.Exists() {
		return nil, nil
	}
	fields, err := doc.Data()
	if err != nil {
		return nil, err
	}
	user := service.UserFromFields(fields)
	return &user, nil
}

func decodeErr(path string, err error) error {
	return &steperr.Error{Step: StepDecodeDocument, Path: path, Err: fmt.Errorf("decode snapshot: %w", err)}
}
