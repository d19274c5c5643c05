// Package firestoreevent decodes Firestore document change events. Eventarc
// CloudEvents (binary mode, protobuf or JSON data) and the legacy Cloud
// Functions background-event envelope are both accepted.
package firestoreevent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/googleapis/google-cloudevents-go/cloud/firestoredata"
	"google.golang.org/protobuf/encoding/protojson"
)

// Kind classifies a document change.
type Kind string

const (
	KindUnknown Kind = ""
	KindCreate  Kind = "create"
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindWrite   Kind = "write"
)

const authContextSuffix = ".withAuthContext"

// ParseKind accepts the legacy "providers/cloud.firestore/eventTypes/document.create"
// and the CloudEvents "google.cloud.firestore.document.v1.created" spellings,
// including the ".withAuthContext" variants.
func ParseKind(eventType string) Kind {
	eventType = strings.TrimSuffix(eventType, authContextSuffix)
	idx := strings.LastIndex(eventType, ".")
	if idx < 0 {
		return KindUnknown
	}
	switch eventType[idx+1:] {
	case "create", "created":
		return KindCreate
	case "update", "updated":
		return KindUpdate
	case "delete", "deleted":
		return KindDelete
	case "write", "written":
		return KindWrite
	default:
		return KindUnknown
	}
}

// Resource is the affected document name. The legacy envelope sends a plain
// string; newer runtimes send an object carrying the name.
type Resource string

func (r *Resource) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = Resource(s)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("decode resource: %w", err)
	}
	*r = Resource(obj.Name)
	return nil
}

// Context carries the event metadata.
type Context struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Resource  Resource  `json:"resource"`
	Timestamp time.Time `json:"timestamp"`
}

// Document is a document snapshot. Fields keep their wire representation
// until Data is called.
type Document struct {
	Name       string
	Fields     map[string]*firestoredata.Value
	CreateTime time.Time
	UpdateTime time.Time
}

func documentFrom(d *firestoredata.Document) *Document {
	if d == nil {
		return nil
	}
	doc := &Document{Name: d.GetName(), Fields: d.GetFields()}
	if ts := d.GetCreateTime(); ts != nil {
		doc.CreateTime = ts.AsTime()
	}
	if ts := d.GetUpdateTime(); ts != nil {
		doc.UpdateTime = ts.AsTime()
	}
	return doc
}

// Exists reports whether the snapshot describes a stored document.
func (d *Document) Exists() bool {
	return d != nil && d.Name != ""
}

// Data decodes the document fields. A missing document yields a nil map.
func (d *Document) Data() (map[string]any, error) {
	if !d.Exists() {
		return nil, nil
	}
	return DecodeFields(d.Fields)
}

// Path returns the document path relative to the database root.
func (d *Document) Path() string {
	if d == nil {
		return ""
	}
	return RelativePath(d.Name)
}

// Data is the change payload.
type Data struct {
	OldValue   *Document
	Value      *Document
	UpdateMask []string
}

func dataFrom(d *firestoredata.DocumentEventData) Data {
	return Data{
		OldValue:   documentFrom(d.GetOldValue()),
		Value:      documentFrom(d.GetValue()),
		UpdateMask: d.GetUpdateMask().GetFieldPaths(),
	}
}

// Envelope is a decoded document event.
type Envelope struct {
	Context Context
	Data    Data
}

var ErrMissingResource = errors.New("event carries no document resource")

// DecodeRequest decodes an HTTP delivery. Requests carrying CloudEvents
// headers are read in binary mode; anything else is treated as a legacy
// background-event envelope.
func DecodeRequest(h http.Header, body []byte) (Envelope, error) {
	if isCloudEvent(h) {
		return decodeCloudEvent(h, body)
	}
	return Decode(body)
}

type legacyEnvelope struct {
	Context Context         `json:"context"`
	Data    json.RawMessage `json:"data"`
}

// Decode parses a legacy background-event envelope and checks that it names
// a document. The data member has the DocumentEventData JSON shape.
func Decode(body []byte) (Envelope, error) {
	var raw legacyEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, fmt.Errorf("decode firestore event: %w", err)
	}

	var data firestoredata.DocumentEventData
	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		if err := protojsonOptions.Unmarshal(raw.Data, &data); err != nil {
			return Envelope{}, fmt.Errorf("decode firestore event data: %w", err)
		}
	}

	env := Envelope{Context: raw.Context, Data: dataFrom(&data)}
	if env.Path() == "" {
		return Envelope{}, ErrMissingResource
	}
	return env, nil
}

var protojsonOptions = protojson.UnmarshalOptions{DiscardUnknown: true}

// Kind resolves the change kind. Generic write events are narrowed using
// which snapshots are present.
func (e Envelope) Kind() Kind {
	k := ParseKind(e.Context.EventType)
	if k != KindWrite && k != KindUnknown {
		return k
	}
	before, after := e.Data.OldValue.Exists(), e.Data.Value.Exists()
	switch {
	case !before && after:
		return KindCreate
	case before && after:
		return KindUpdate
	case before && !after:
		return KindDelete
	default:
		return k
	}
}

// Path is the affected document path, taken from the resource or, failing
// that, from whichever snapshot exists.
func (e Envelope) Path() string {
	if p := RelativePath(string(e.Context.Resource)); p != "" {
		return p
	}
	if e.Data.Value.Exists() {
		return e.Data.Value.Path()
	}
	return e.Data.OldValue.Path()
}

// RelativePath strips the "projects/{p}/databases/{d}/documents/" prefix and
// unescapes each segment. Already-relative paths are returned unchanged.
func RelativePath(name string) string {
	const marker = "/documents/"
	if idx := strings.Index(name, marker); idx >= 0 {
		name = name[idx+len(marker):]
	}
	name = strings.Trim(name, "/")
	if name == "" {
		return ""
	}

	segments := strings.Split(name, "/")
	for i, s := range segments {
		if unescaped, err := url.PathUnescape(s); err == nil {
			segments[i] = unescaped
		}
	}
	return strings.Join(segments, "/")
}
