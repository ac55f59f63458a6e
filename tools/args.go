package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeArgs unmarshals tool arguments into T. Unknown fields are rejected
// so that a model calling a tool with the wrong shape gets a clear error.
// Empty arguments decode to the zero value.
func DecodeArgs[T any](args json.RawMessage) (T, error) {
	var out T
	if len(bytes.TrimSpace(args)) == 0 {
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return out, nil
}
