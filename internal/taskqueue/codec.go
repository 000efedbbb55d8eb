package taskqueue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EncodeTask serializes t for the durable queues.
func EncodeTask(t Task) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	return data, nil
}

// DecodeTask parses a payload written by EncodeTask. A payload without a
// task ID is rejected.
func DecodeTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	if t.ID == "" {
		return nil, errors.New("decode task: missing id")
	}
	return &t, nil
}
