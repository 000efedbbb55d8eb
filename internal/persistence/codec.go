package persistence

import (
	"encoding/json"
	"fmt"
)

// EncodeValue serializes v as JSON so stored records stay readable from
// redis-cli and mongosh.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, nil
}

// DecodeValue decodes a payload produced by EncodeValue into a T.
// An empty payload yields the zero value.
func DecodeValue[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}
