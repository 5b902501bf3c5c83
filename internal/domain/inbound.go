package domain

import (
	"encoding/json"
	"fmt"
)

// Inbound is a client frame. Only KindText is acted upon.
type Inbound struct {
	Type    Kind    `json:"type"`
	Content *string `json:"content"`
}

// DecodeInbound parses one client frame. Frames of unknown type decode
// successfully and are left to the caller to ignore.
func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if in.Type == KindText && in.Content == nil {
		return Inbound{}, fmt.Errorf("%w: text frame without content", ErrDecode)
	}
	return in, nil
}
