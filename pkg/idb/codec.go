package idb

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec turns records into bytes and back. Normalize returns the generic
// form (maps, slices, float64, string, bool, nil) that key paths are
// evaluated against; Unmarshal must return the same form.
type Codec interface {
	Normalize(v any) (any, error)
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

// ProtoCodec stores records as protobuf google.protobuf.Value messages.
// Numbers come back as float64, []byte as base64 strings and time.Time as
// RFC 3339 strings. Structs are not supported; supply another Codec for them.
type ProtoCodec struct{}

var _ Codec = ProtoCodec{}

func (ProtoCodec) Normalize(v any) (any, error) {
	pv, err := toValue(v, 0)
	if err != nil {
		return nil, err
	}
	return pv.AsInterface(), nil
}

func (ProtoCodec) Marshal(v any) ([]byte, error) {
	pv, err := toValue(v, 0)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(pv)
}

func (ProtoCodec) Unmarshal(data []byte) (any, error) {
	var pv structpb.Value
	if err := proto.Unmarshal(data, &pv); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return pv.AsInterface(), nil
}

const maxValueDepth = 64

// toValue is structpb.NewValue extended to typed maps, slices and pointers.
func toValue(v any, depth int) (*structpb.Value, error) {
	if depth > maxValueDepth {
		return nil, fmt.Errorf("record nested too deeply")
	}
	switch x := v.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case []byte:
		return structpb.NewStringValue(base64.StdEncoding.EncodeToString(x)), nil
	case time.Time:
		return structpb.NewStringValue(x.UTC().Format(time.RFC3339Nano)), nil
	case *structpb.Value:
		return x, nil
	case bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return structpb.NewValue(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return structpb.NewNullValue(), nil
		}
		return toValue(rv.Elem().Interface(), depth+1)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		fields := make(map[string]*structpb.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			fv, err := toValue(iter.Value().Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			fields[iter.Key().String()] = fv
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
	case reflect.Slice, reflect.Array:
		values := make([]*structpb.Value, rv.Len())
		for i := range values {
			ev, err := toValue(rv.Index(i).Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			values[i] = ev
		}
		return structpb.NewListValue(&structpb.ListValue{Values: values}), nil
	case reflect.String:
		return structpb.NewStringValue(rv.String()), nil
	case reflect.Bool:
		return structpb.NewBoolValue(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return structpb.NewNumberValue(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return structpb.NewNumberValue(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return structpb.NewNumberValue(rv.Float()), nil
	}
	return nil, fmt.Errorf("unsupported record type %T", v)
}
