package distributed

import (
	"encoding/json"
	"fmt"
	"time"
)

// envelope is the worker-written record stored as the asynq task result.
type envelope struct {
	Result     json.RawMessage `json:"result,omitempty"`
	FirstError string          `json:"first_error,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
}

// decodeEnvelope parses a stored envelope. Empty input yields an empty
// envelope.
func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if len(data) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("failed to decode task envelope: %w", err)
	}
	return env, nil
}

func (e envelope) encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task envelope: %w", err)
	}
	return data, nil
}
