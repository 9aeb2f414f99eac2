package model

import "time"

// Message is a raw notification as delivered by a message source.
type Message struct {
	Sender   string // empty when the source does not know it
	Body     string
	Received time.Time // zero when unknown
}

// HasSender reports whether the source supplied a sender identifier.
func (m Message) HasSender() bool {
	return m.Sender != ""
}
