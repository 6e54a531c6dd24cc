package storage

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// record is the protobuf Struct stored as a badger value.
// Times are kept as RFC3339Nano strings since Struct numbers are float64.
type record struct {
	fields map[string]*structpb.Value
}

func marshalRecord(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return proto.Marshal(s)
}

func unmarshalRecord(b []byte) (record, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return record{}, fmt.Errorf("decode record: %w", err)
	}
	return record{fields: s.GetFields()}, nil
}

func (r record) str(key string) string {
	return r.fields[key].GetStringValue()
}

func (r record) time(key string) (time.Time, error) {
	raw := r.str(key)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

func (r record) list(key string) []record {
	values := r.fields[key].GetListValue().GetValues()
	out := make([]record, 0, len(values))
	for _, v := range values {
		out = append(out, record{fields: v.GetStructValue().GetFields()})
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
