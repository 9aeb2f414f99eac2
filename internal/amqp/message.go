package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smsledger/smsledger/internal/model"
)

// Envelope is the JSON body of a queued SMS.
type Envelope struct {
	Sender     string     `json:"sender,omitempty"`
	Body       string     `json:"body"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}

// NewEnvelope wraps msg for publishing.
func NewEnvelope(msg model.Message) Envelope {
	e := Envelope{Sender: msg.Sender, Body: msg.Body}
	if !msg.Received.IsZero() {
		ts := msg.Received
		e.ReceivedAt = &ts
	}
	return e
}

// Message converts the envelope back into a model.Message.
func (e Envelope) Message() model.Message {
	msg := model.Message{Sender: e.Sender, Body: e.Body}
	if e.ReceivedAt != nil {
		msg.Received = *e.ReceivedAt
	}
	return msg
}

// ToJSON encodes the envelope.
func (e Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EnvelopeFromJSON decodes and checks an envelope. A blank body is an error.
func EnvelopeFromJSON(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if strings.TrimSpace(e.Body) == "" {
		return Envelope{}, errors.New("envelope has empty body")
	}
	return e, nil
}
