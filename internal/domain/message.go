package domain

import (
	"strings"
	"time"
)

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// LocalIDPrefix marks ids generated on this device before the server assigns one.
const LocalIDPrefix = "local-"

// Message belongs to exactly one thread. SentAt is epoch milliseconds.
type Message struct {
	ID            string
	ThreadID      string
	SenderID      string
	Text          string
	SentAt        int64
	Direction     Direction
	DeliveryState DeliveryState

	// Error holds the failure reason when DeliveryState is failed.
	Error string
}

// IsUnsent reports whether the server has not acknowledged the message.
func (m *Message) IsUnsent() bool {
	return m.DeliveryState == DeliveryPending || m.DeliveryState == DeliveryFailed
}

func (m *Message) Time() time.Time {
	return time.UnixMilli(m.SentAt)
}

// IsLocalID reports whether id was assigned on this side before the server
// confirmed the message.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
