// Package domain contains the room's wire entities without transport logic.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is ISO-8601 with microseconds and zone offset.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

type Kind string

const (
	KindText     Kind = "text"
	KindFile     Kind = "file"
	KindPresence Kind = "presence"
)

// Message is the outbound tagged variant. Only the fields of its Kind are
// serialized.
type Message struct {
	Kind      Kind
	Timestamp time.Time

	// text
	Content string
	Self    bool

	// file
	Filename   string
	StoredName string
	Size       int64

	// presence
	Count int
}

func NewText(content string, at time.Time) Message {
	return Message{Kind: KindText, Content: content, Timestamp: at}
}

func NewFile(filename, storedName string, size int64, at time.Time) Message {
	return Message{Kind: KindFile, Filename: filename, StoredName: storedName, Size: size, Timestamp: at}
}

func NewPresence(count int) Message {
	return Message{Kind: KindPresence, Count: count}
}

// Echo returns the copy sent back to the originating connection.
func (m Message) Echo() Message {
	m.Self = true
	return m
}

func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case KindText:
		return json.Marshal(struct {
			Type      Kind   `json:"type"`
			Content   string `json:"content"`
			Timestamp string `json:"timestamp"`
			Self      bool   `json:"self,omitempty"`
		}{m.Kind, m.Content, m.Timestamp.Format(TimestampLayout), m.Self})
	case KindFile:
		return json.Marshal(struct {
			Type       Kind   `json:"type"`
			Filename   string `json:"filename"`
			StoredName string `json:"stored_name"`
			Size       int64  `json:"size"`
			Timestamp  string `json:"timestamp"`
		}{m.Kind, m.Filename, m.StoredName, m.Size, m.Timestamp.Format(TimestampLayout)})
	case KindPresence:
		return json.Marshal(struct {
			Type  Kind `json:"type"`
			Count int  `json:"count"`
		}{m.Kind, m.Count})
	default:
		return nil, fmt.Errorf("unknown message kind %q", m.Kind)
	}
}
