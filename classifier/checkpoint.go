package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Parameter names accepted for the head, in lookup order.
var (
	weightKeys = []string{"classifier.1.0.weight", "classifier.1.weight", "fc.weight", "weight"}
	biasKeys   = []string{"classifier.1.0.bias", "classifier.1.bias", "fc.bias", "bias"}

	// Wrapper keys under which the parameter map may be nested.
	wrapperKeys = []string{"model_state_dict", "state_dict"}
)

var errNoParameters = errors.New("checkpoint has no head parameters")

// LoadCheckpoint reads the head parameters from a JSON state map. The map
// may sit at the top level or under "model_state_dict" / "state_dict".
func LoadCheckpoint(path string, dim int) (Head, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Head{}, fmt.Errorf("read checkpoint: %w", err)
	}
	return ParseCheckpoint(data, dim)
}

// ParseCheckpoint is LoadCheckpoint on an in-memory document.
func ParseCheckpoint(data []byte, dim int) (Head, error) {
	var state map[string]json.RawMessage
	if err := json.Unmarshal(data, &state); err != nil {
		return Head{}, fmt.Errorf("parse checkpoint: %w", err)
	}

	for _, key := range wrapperKeys {
		raw, ok := state[key]
		if !ok {
			continue
		}
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err != nil {
			return Head{}, fmt.Errorf("parse %s: %w", key, err)
		}
		state = inner
		break
	}

	rawWeight, ok := lookup(state, weightKeys)
	if !ok {
		return Head{}, errNoParameters
	}
	rawBias, ok := lookup(state, biasKeys)
	if !ok {
		return Head{}, errNoParameters
	}

	weight, err := parseWeight(rawWeight)
	if err != nil {
		return Head{}, fmt.Errorf("parse weight: %w", err)
	}
	bias, err := parseBias(rawBias)
	if err != nil {
		return Head{}, fmt.Errorf("parse bias: %w", err)
	}

	return NewHead(weight, bias, dim)
}

func lookup(state map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := state[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// parseWeight accepts a [1][dim] matrix or a flat [dim] vector.
func parseWeight(raw json.RawMessage) ([]float32, error) {
	var matrix [][]float32
	if err := json.Unmarshal(raw, &matrix); err == nil {
		if len(matrix) != 1 {
			return nil, fmt.Errorf("expected 1 output row, got %d", len(matrix))
		}
		return matrix[0], nil
	}

	var vector []float32
	if err := json.Unmarshal(raw, &vector); err != nil {
		return nil, err
	}
	return vector, nil
}

// parseBias accepts [b] or a bare number.
func parseBias(raw json.RawMessage) (float32, error) {
	var vector []float32
	if err := json.Unmarshal(raw, &vector); err == nil {
		if len(vector) != 1 {
			return 0, fmt.Errorf("expected 1 bias, got %d", len(vector))
		}
		return vector[0], nil
	}

	var scalar float32
	if err := json.Unmarshal(raw, &scalar); err != nil {
		return 0, err
	}
	return scalar, nil
}
