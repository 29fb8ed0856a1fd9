// Package rpcjson is a connect codec for plain Go structs. connect's built-in
// JSON codec only accepts protobuf messages.
package rpcjson

import (
	"encoding/json"
	"fmt"
)

// Name is the codec name, matching the application/json content type.
const Name = "json"

// Codec marshals connect messages with encoding/json.
type Codec struct{}

func (Codec) Name() string { return Name }

func (Codec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", msg, err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", msg, err)
	}
	return nil
}
