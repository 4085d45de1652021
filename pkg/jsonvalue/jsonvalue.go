// Package jsonvalue decodes loosely typed JSON values (variables, tags,
// options, metadata) so that integral numbers come back as int instead of
// float64.
package jsonvalue

import (
	"bytes"
	"encoding/json"
	"math"
)

// Decode unmarshals data into a generic value.
func Decode(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

// DecodeMap unmarshals a JSON object. A JSON null yields an empty map.
func DecodeMap(data []byte) (map[string]any, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return map[string]any{}, nil
	}
	return m, nil
}

// Normalize converts json.Number leaves to int or float64 and recurses into
// lists and objects.
func Normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil && i >= math.MinInt && i <= math.MaxInt {
			return int(i)
		}
		f, _ := val.Float64()
		return f
	case []any:
		for i := range val {
			val[i] = Normalize(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = Normalize(val[k])
		}
		return val
	default:
		return v
	}
}

// Copy deep-copies a JSON-compatible value through a marshal round trip.
func Copy(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
