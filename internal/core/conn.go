// Package core holds the room's shared membership and fan-out machinery.
// It never owns transport resources: adapters create and close connections.
package core

// Frame is one serialized outbound message.
type Frame []byte

type ConnID string

// Connection abstracts a live bidirectional channel to one participant.
// TrySend must not block; it is called while the Registry is read-locked.
type Connection interface {
	ID() ConnID
	TrySend(Frame) error
	Close()
}
