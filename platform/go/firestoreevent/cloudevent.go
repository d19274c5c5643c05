package firestoreevent

import (
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/googleapis/google-cloudevents-go/cloud/firestoredata"
	"google.golang.org/protobuf/proto"
)

// CloudEvents binary-mode headers set by Eventarc.
const (
	HeaderID          = "Ce-Id"
	HeaderType        = "Ce-Type"
	HeaderSource      = "Ce-Source"
	HeaderSubject     = "Ce-Subject"
	HeaderTime        = "Ce-Time"
	HeaderSpecVersion = "Ce-Specversion"
)

// Data content types Eventarc uses for Firestore events.
const (
	ContentTypeProtobuf = "application/protobuf"
	ContentTypeJSON     = "application/json"
)

// subjectPrefix precedes the document path in the ce-subject of Firestore events.
const subjectPrefix = "documents/"

func isCloudEvent(h http.Header) bool {
	return h.Get(HeaderType) != "" || h.Get(HeaderSpecVersion) != ""
}

func decodeCloudEvent(h http.Header, body []byte) (Envelope, error) {
	var data firestoredata.DocumentEventData
	if err := unmarshalEventData(h.Get("Content-Type"), body, &data); err != nil {
		return Envelope{}, fmt.Errorf("decode firestore cloudevent: %w", err)
	}

	env := Envelope{
		Context: Context{
			EventID:   h.Get(HeaderID),
			EventType: h.Get(HeaderType),
			Resource:  Resource(strings.TrimPrefix(h.Get(HeaderSubject), subjectPrefix)),
		},
		Data: dataFrom(&data),
	}
	if ts, err := time.Parse(time.RFC3339Nano, h.Get(HeaderTime)); err == nil {
		env.Context.Timestamp = ts
	}

	if env.Path() == "" {
		return Envelope{}, ErrMissingResource
	}
	return env, nil
}

// unmarshalEventData reads DocumentEventData in the content type the event
// declares; an absent content type means protobuf.
func unmarshalEventData(contentType string, body []byte, data *firestoredata.DocumentEventData) error {
	mediaType := ContentTypeProtobuf
	if contentType != "" {
		parsed, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return fmt.Errorf("content type %q: %w", contentType, err)
		}
		mediaType = parsed
	}

	switch mediaType {
	case ContentTypeProtobuf, "application/x-protobuf":
		return proto.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(body, data)
	case ContentTypeJSON:
		return protojsonOptions.Unmarshal(body, data)
	default:
		return fmt.Errorf("unsupported content type %q", mediaType)
	}
}
