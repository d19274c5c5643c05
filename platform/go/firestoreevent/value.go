package firestoreevent

import (
	"errors"
	"fmt"

	"github.com/googleapis/google-cloudevents-go/cloud/firestoredata"
)

// GeoPoint mirrors the Firestore geoPointValue.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// DecodeFields converts document fields into plain Go values.
// Strings, booleans, doubles and references map to their Go counterparts,
// integers to int64, timestamps to time.Time, bytes to []byte, nulls to nil,
// arrays to []any and maps to map[string]any.
func DecodeFields(fields map[string]*firestoredata.Value) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for name, v := range fields {
		decoded, err := DecodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = decoded
	}
	return out, nil
}

// DecodeValue converts a single Firestore value. A value with no type set is
// an error.
func DecodeValue(v *firestoredata.Value) (any, error) {
	switch t := v.GetValueType().(type) {
	case *firestoredata.Value_NullValue:
		return nil, nil
	case *firestoredata.Value_BooleanValue:
		return t.BooleanValue, nil
	case *firestoredata.Value_IntegerValue:
		return t.IntegerValue, nil
	case *firestoredata.Value_DoubleValue:
		return t.DoubleValue, nil
	case *firestoredata.Value_TimestampValue:
		return t.TimestampValue.AsTime(), nil
	case *firestoredata.Value_StringValue:
		return t.StringValue, nil
	case *firestoredata.Value_ReferenceValue:
		return t.ReferenceValue, nil
	case *firestoredata.Value_BytesValue:
		return t.BytesValue, nil
	case *firestoredata.Value_GeoPointValue:
		return GeoPoint{Latitude: t.GeoPointValue.GetLatitude(), Longitude: t.GeoPointValue.GetLongitude()}, nil
	case *firestoredata.Value_ArrayValue:
		values := t.ArrayValue.GetValues()
		items := make([]any, 0, len(values))
		for i, item := range values {
			decoded, err := DecodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, decoded)
		}
		return items, nil
	case *firestoredata.Value_MapValue:
		return DecodeFields(t.MapValue.GetFields())
	case nil:
		return nil, errors.New("value carries no type")
	default:
		return nil, fmt.Errorf("unsupported value type %T", t)
	}
}
