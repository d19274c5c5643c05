package eventtrace

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type contextKey string

const (
	ctxEventInfo contextKey = "PALMYRA_EVENT_TRACE"
)

// SourceKind represents how an invocation reached us.
type SourceKind string

const (
	SourceKindCloudEvent SourceKind = "cloudevent"
	SourceKindPush       SourceKind = "push"
	SourceKindPull       SourceKind = "pull"
	SourceKindManual     SourceKind = "manual"
)

// EventInfo captures invocation-scoped metadata used to correlate log lines.
// Only SourceKind is always set; the rest depends on what the transport supplies.
type EventInfo struct {
	SourceKind SourceKind
	EventID    string
	EventType  string
	Source     string
	Subject    string
	RequestID  string
	// Caller is the authenticated service account, when push auth is on.
	Caller     string
}

// IntoContext stores the EventInfo in the provided context.
func IntoContext(ctx context.Context, info EventInfo) context.Context {
	return context.WithValue(ctx, ctxEventInfo, info)
}

// FromContext extracts the EventInfo from context, returning false when not present.
func FromContext(ctx context.Context) (EventInfo, bool) {
	if ctx == nil {
		return EventInfo{}, false
	}
	v := ctx.Value(ctxEventInfo)
	if v == nil {
		return EventInfo{}, false
	}

	info, ok := v.(EventInfo)
	return info, ok
}

// FromContextOrManual returns the EventInfo stored on the context, or a manual record when absent.
func FromContextOrManual(ctx context.Context) EventInfo {
	if info, ok := FromContext(ctx); ok {
		return info
	}
	return Manual("")
}

// FromHeaders builds an EventInfo from CloudEvents binary-mode headers (ce-id, ce-type, ...).
// Requests without ce-id are treated as plain push deliveries.
func FromHeaders(h http.Header, requestID string) EventInfo {
	info := EventInfo{
		EventID:   h.Get("Ce-Id"),
		EventType: h.Get("Ce-Type"),
		Source:    h.Get("Ce-Source"),
		Subject:   h.Get("Ce-Subject"),
		RequestID: requestID,
	}
	if info.EventID != "" {
		info.SourceKind = SourceKindCloudEvent
	} else {
		info.SourceKind = SourceKindPush
	}
	return info
}

// Manual builds an EventInfo for operator-initiated work (CLI).
func Manual(requestID string) EventInfo {
	return EventInfo{SourceKind: SourceKindManual, RequestID: requestID}
}

// Pull builds an EventInfo for a message received from a pull subscription.
func Pull(messageID, subscription string) EventInfo {
	return EventInfo{SourceKind: SourceKindPull, EventID: messageID, Source: subscription}
}

// Fields renders the non-empty attributes as zap fields.
func (e EventInfo) Fields() []zap.Field {
	fields := []zap.Field{zap.String("source_kind", string(e.SourceKind))}
	for _, kv := range [][2]string{
		{"event_id", e.EventID},
		{"event_type", e.EventType},
		{"event_source", e.Source},
		{"event_subject", e.Subject},
		{"caller", e.Caller},
	} {
		if kv[1] != "" {
			fields = append(fields, zap.String(kv[0], kv[1]))
		}
	}
	return fields
}
