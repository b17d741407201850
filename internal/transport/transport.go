// Package transport owns the chat-channel connection: its lifecycle,
// recovery policy and the send capability handed to the rest of the system.
package transport

import (
	"context"
	"errors"
)

var ErrTransportUnavailable = errors.New("transport unavailable")

// Message is outbound content: plain text, or a captioned image. An image
// send that fails falls back to sending the caption as text.
type Message struct {
	Text     string
	ImageURL string
	Caption  string
}

type EventKind int

const (
	EventOpen EventKind = iota
	EventClosed
	EventMessage
	EventPairing
)

// Event is one item of the connection's inbound stream.
type Event struct {
	Kind EventKind

	// EventMessage
	From string
	Text string

	// EventClosed
	Code int
	Err  error

	// EventPairing: challenge to present to the operator (QR payload).
	Challenge string
}

// Conn is a live connection to the chat channel. Its Events channel closes
// when the connection is gone.
type Conn interface {
	Events() <-chan Event
	Send(ctx context.Context, to string, msg Message) error
	Close() error
}

// Dialer authenticates against the channel using credentials persisted
// under authDir. An empty dir forces a fresh pairing challenge.
type Dialer interface {
	Dial(ctx context.Context, authDir string) (Conn, error)
}

// Sender is the live send capability published by the supervisor while the
// connection is open.
type Sender interface {
	Send(ctx context.Context, to string, msg Message) error
}
