package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when a credential or room code is rejected.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrDecode marks an inbound frame that could not be decoded.
	ErrDecode = errors.New("malformed frame")
	// ErrRateLimited ends a session that sent text frames above its limit.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrDelivery marks a failed send to a single connection.
	ErrDelivery = errors.New("delivery failed")

	ErrBackpressure = fmt.Errorf("%w: backpressure", ErrDelivery)
	ErrConnClosed   = fmt.Errorf("%w: connection closed", ErrDelivery)
)
