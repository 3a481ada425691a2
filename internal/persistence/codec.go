package persistence

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/volvoxlabs/weft/pkg/api"
)

func init() {
	// Context values travel inside interface slots, so their concrete
	// container types must be known to gob. Scalars are covered by gob's
	// built-in types.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register(time.Time{})
}

// EncodeContext serializes a context snapshot. Values must be
// gob-encodable; tool outputs decoded from JSON always are.
func EncodeContext(values map[string]any) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(values); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeContext deserializes a context snapshot produced by EncodeContext.
func DecodeContext(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var values map[string]any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&values); err != nil {
		return nil, err
	}
	return values, nil
}

// EncodeHistory serializes a run's step history.
func EncodeHistory(history []api.StepRecord) ([]byte, error) {
	if len(history) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(history); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeHistory deserializes a step history produced by EncodeHistory.
func DecodeHistory(data []byte) ([]api.StepRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var history []api.StepRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&history); err != nil {
		return nil, err
	}
	return history, nil
}
