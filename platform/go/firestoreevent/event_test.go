package firestoreevent

import (
	"net/http"
	"testing"
	"time"

	"github.com/googleapis/google-cloudevents-go/cloud/firestoredata"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

const deleteEvent = `{
  "context": {
    "eventId": "evt-1",
    "eventType": "providers/cloud.firestore/eventTypes/document.delete",
    "resource": "projects/palmyra/databases/(default)/documents/users/a@x.com",
    "timestamp": "2026-01-02T03:04:05.000Z"
  },
  "data": {
    "oldValue": {
      "name": "projects/palmyra/databases/(default)/documents/users/a@x.com",
      "fields": {
        "email": {"stringValue": "a@x.com"},
        "name": {"stringValue": "A"},
        "uid": {"nullValue": null},
        "logins": {"integerValue": "42"},
        "verified": {"booleanValue": true},
        "score": {"doubleValue": 1.5},
        "seen": {"timestampValue": "2026-01-02T03:04:05.123Z"},
        "tags": {"arrayValue": {"values": [{"stringValue": "x"}, {"integerValue": "7"}]}},
        "invitation": {"mapValue": {"fields": {"message": {"stringValue": "hi"}}}},
        "avatar": {"bytesValue": "aGk="},
        "home": {"geoPointValue": {"latitude": 1.25, "longitude": -2.5}}
      }
    },
    "value": {}
  }
}`

func TestDecodeDeleteEvent(t *testing.T) {
	env, err := Decode([]byte(deleteEvent))
	require.NoError(t, err)

	require.Equal(t, "evt-1", env.Context.EventID)
	require.Equal(t, KindDelete, env.Kind())
	require.Equal(t, "users/a@x.com", env.Path())
	require.False(t, env.Data.Value.Exists())
	require.True(t, env.Data.OldValue.Exists())

	data, err := env.Data.OldValue.Data()
	require.NoError(t, err)
	require.Equal(t, "a@x.com", data["email"])
	require.Contains(t, data, "uid")
	require.Nil(t, data["uid"])
	require.Equal(t, int64(42), data["logins"])
	require.Equal(t, true, data["verified"])
	require.Equal(t, 1.5, data["score"])
	require.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 123000000, time.UTC), data["seen"])
	require.Equal(t, []any{"x", int64(7)}, data["tags"])
	require.Equal(t, map[string]any{"message": "hi"}, data["invitation"])
	require.Equal(t, []byte("hi"), data["avatar"])
	require.Equal(t, GeoPoint{Latitude: 1.25, Longitude: -2.5}, data["home"])

	after, err := env.Data.Value.Data()
	require.NoError(t, err)
	require.Nil(t, after)
}

func TestDecodeRejectsMissingResource(t *testing.T) {
	_, err := Decode([]byte(`{"context": {"eventType": "x.create"}, "data": {}}`))
	require.ErrorIs(t, err, ErrMissingResource)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestResourceObjectForm(t *testing.T) {
	env, err := Decode([]byte(`{
		"context": {"eventType": "google.cloud.firestore.document.v1.created",
		            "resource": {"service": "firestore.googleapis.com", "name": "projects/p/databases/(default)/documents/tenants/t1/users/b@x.com"}},
		"data": {"value": {"name": "projects/p/databases/(default)/documents/tenants/t1/users/b@x.com", "fields": {}}}
	}`))
	require.NoError(t, err)
	require.Equal(t, KindCreate, env.Kind())
	require.Equal(t, "tenants/t1/users/b@x.com", env.Path())
}

func TestPathFallsBackToSnapshot(t *testing.T) {
	env, err := Decode([]byte(`{
		"context": {"eventType": "providers/cloud.firestore/eventTypes/document.update"},
		"data": {
			"oldValue": {"name": "projects/p/databases/(default)/documents/users/c@x.com", "fields": {}},
			"value": {"name": "projects/p/databases/(default)/documents/users/c@x.com", "fields": {}}
		}
	}`))
	require.NoError(t, err)
	require.Equal(t, "users/c@x.com", env.Path())
	require.Equal(t, KindUpdate, env.Kind())
}

func TestWriteKindNarrowedBySnapshots(t *testing.T) {
	cases := []struct {
		name string
		data Data
		want Kind
	}{
		{"created", Data{Value: &Document{Name: "n"}}, KindCreate},
		{"updated", Data{OldValue: &Document{Name: "n"}, Value: &Document{Name: "n"}}, KindUpdate},
		{"deleted", Data{OldValue: &Document{Name: "n"}, Value: &Document{}}, KindDelete},
		{"empty", Data{}, KindWrite},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := Envelope{Context: Context{EventType: "google.cloud.firestore.document.v1.written"}, Data: tc.data}
			require.Equal(t, tc.want, env.Kind())
		})
	}
}

func TestParseKind(t *testing.T) {
	require.Equal(t, KindCreate, ParseKind("providers/cloud.firestore/eventTypes/document.create"))
	require.Equal(t, KindDelete, ParseKind("google.cloud.firestore.document.v1.deleted"))
	require.Equal(t, KindUnknown, ParseKind("nodots"))
	require.Equal(t, KindUnknown, ParseKind("providers/cloud.pubsub/eventTypes/topic.publish"))
	require.Equal(t, KindUpdate, ParseKind("google.cloud.firestore.document.v1.updated.withAuthContext"))
}

func TestRelativePath(t *testing.T) {
	require.Equal(t, "users/a@x.com", RelativePath("projects/p/databases/(default)/documents/users/a@x.com"))
	require.Equal(t, "users/a@x.com", RelativePath("users/a%40x.com"))
	require.Equal(t, "tenants/t1", RelativePath("/tenants/t1/"))
	require.Equal(t, "", RelativePath(""))
}

func TestDecodeValueErrors(t *testing.T) {
	_, err := DecodeValue(&firestoredata.Value{})
	require.ErrorContains(t, err, "no type")

	_, err = DecodeFields(map[string]*firestoredata.Value{"bad": nil})
	require.ErrorContains(t, err, `field "bad"`)

	_, err = Decode([]byte(`{
		"context": {"resource": "projects/p/databases/(default)/documents/users/a@x.com"},
		"data": {"value": {"name": "n", "fields": {"logins": {"integerValue": "many"}}}}
	}`))
	require.Error(t, err)
}

func TestDecodeIntegerAsNumber(t *testing.T) {
	env, err := Decode([]byte(`{
		"context": {"resource": "projects/p/databases/(default)/documents/users/a@x.com"},
		"data": {"value": {"name": "n", "fields": {"logins": {"integerValue": 5}}}}
	}`))
	require.NoError(t, err)
	data, err := env.Data.Value.Data()
	require.NoError(t, err)
	require.Equal(t, int64(5), data["logins"])
}

func stringValue(s string) *firestoredata.Value {
	return &firestoredata.Value{ValueType: &firestoredata.Value_StringValue{StringValue: s}}
}

func cloudEventHeaders(eventType, subject, contentType string) http.Header {
	h := http.Header{}
	h.Set("Ce-Specversion", "1.0")
	h.Set("Ce-Id", "ce-1")
	h.Set("Ce-Type", eventType)
	h.Set("Ce-Source", "//firestore.googleapis.com/projects/p/databases/(default)")
	h.Set("Ce-Time", "2026-05-06T07:08:09.5Z")
	if subject != "" {
		h.Set("Ce-Subject", subject)
	}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return h
}

func TestDecodeRequestProtobufCloudEvent(t *testing.T) {
	body, err := proto.Marshal(&firestoredata.DocumentEventData{
		Value: &firestoredata.Document{
			Name: "projects/p/databases/(default)/documents/tenants/t1/users/new@x.com",
			Fields: map[string]*firestoredata.Value{
				"email": stringValue("new@x.com"),
				"role":  stringValue("invited"),
			},
		},
	})
	require.NoError(t, err)

	h := cloudEventHeaders("google.cloud.firestore.document.v1.created", "documents/tenants/t1/users/new@x.com", ContentTypeProtobuf)
	env, err := DecodeRequest(h, body)
	require.NoError(t, err)

	require.Equal(t, "ce-1", env.Context.EventID)
	require.Equal(t, time.Date(2026, 5, 6, 7, 8, 9, 500000000, time.UTC), env.Context.Timestamp)
	require.Equal(t, KindCreate, env.Kind())
	require.Equal(t, "tenants/t1/users/new@x.com", env.Path())

	data, err := env.Data.Value.Data()
	require.NoError(t, err)
	require.Equal(t, map[string]any{"email": "new@x.com", "role": "invited"}, data)
}

func TestDecodeRequestJSONCloudEvent(t *testing.T) {
	body := []byte(`{"value": {
		"name": "projects/p/databases/(default)/documents/tenants/t1/users/new@x.com",
		"fields": {"email": {"stringValue": "new@x.com"}}
	}}`)

	h := cloudEventHeaders("google.cloud.firestore.document.v1.created", "documents/tenants/t1/users/new%40x.com", "application/json; charset=utf-8")
	env, err := DecodeRequest(h, body)
	require.NoError(t, err)
	require.Equal(t, KindCreate, env.Kind())
	require.Equal(t, "tenants/t1/users/new@x.com", env.Path())
}

func TestDecodeRequestCloudEventWithoutSubject(t *testing.T) {
	body, err := proto.Marshal(&firestoredata.DocumentEventData{
		OldValue: &firestoredata.Document{Name: "projects/p/databases/(default)/documents/users/a@x.com"},
	})
	require.NoError(t, err)

	env, err := DecodeRequest(cloudEventHeaders("google.cloud.firestore.document.v1.deleted.withAuthContext", "", ""), body)
	require.NoError(t, err)
	require.Equal(t, KindDelete, env.Kind())
	require.Equal(t, "users/a@x.com", env.Path())
	require.False(t, env.Data.Value.Exists())
}

func TestDecodeRequestCloudEventErrors(t *testing.T) {
	_, err := DecodeRequest(cloudEventHeaders("google.cloud.firestore.document.v1.created", "documents/users/a@x.com", "text/plain"), []byte("x"))
	require.ErrorContains(t, err, "unsupported content type")

	_, err = DecodeRequest(cloudEventHeaders("google.cloud.firestore.document.v1.created", "", ContentTypeJSON), []byte(`{}`))
	require.ErrorIs(t, err, ErrMissingResource)

	_, err = DecodeRequest(cloudEventHeaders("google.cloud.firestore.document.v1.created", "documents/users/a@x.com", ContentTypeJSON), []byte(`not json`))
	require.Error(t, err)
}

func TestDecodeRequestFallsBackToLegacyEnvelope(t *testing.T) {
	env, err := DecodeRequest(http.Header{"Content-Type": []string{"application/json"}}, []byte(deleteEvent))
	require.NoError(t, err)
	require.Equal(t, KindDelete, env.Kind())
	require.Equal(t, "users/a@x.com", env.Path())
}
