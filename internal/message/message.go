package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidMessage is returned for envelopes which cannot be encoded
// or decoded. Handlers reject the single message and keep the
// connection open.
var ErrInvalidMessage = errors.New("invalid message")

// Type enumerates the message types carried over the wire.
type Type int

const (
	TypeSignalling Type = iota
	TypeEvent
	TypeJoin
	TypeAnnounce
	TypeAction
	TypeLeave
)

var typeCodes = map[Type]string{
	TypeSignalling: "s",
	TypeEvent:      "e",
	TypeJoin:       "j",
	TypeAnnounce:   "a",
	TypeAction:     "A",
	TypeLeave:      "l",
}

var typesByCode = map[string]Type{
	"s": TypeSignalling,
	"e": TypeEvent,
	"j": TypeJoin,
	"a": TypeAnnounce,
	"A": TypeAction,
	"l": TypeLeave,
}

// Code returns the single character wire code for the type.
func (t Type) Code() string {
	return typeCodes[t]
}

func (t Type) String() string {
	switch t {
	case TypeSignalling:
		return "signalling"
	case TypeEvent:
		return "event"
	case TypeJoin:
		return "join"
	case TypeAnnounce:
		return "announce"
	case TypeAction:
		return "action"
	case TypeLeave:
		return "leave"
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

func TypeFromCode(code string) (Type, bool) {
	t, ok := typesByCode[code]
	return t, ok
}

// Message is the envelope exchanged over a room's connection. Id is
// set only once the message has been persisted.
type Message struct {
	Type          Type
	Payload       map[string]any
	Timestamp     time.Time
	ParticipantId int
	PeerId        string
	Id            int
}

// wireMessage is the compact form with one and two character keys.
type wireMessage struct {
	Type          string         `json:"t"`
	Payload       map[string]any `json:"p"`
	Timestamp     int64          `json:"T,omitempty"`
	PeerId        string         `json:"P,omitempty"`
	ParticipantId int            `json:"u,omitempty"`
	Id            int            `json:"i,omitempty"`
}

// Encode serializes the message to its wire form. Messages without a
// payload are invalid, as are payloads which cannot be serialized.
func Encode(m Message) ([]byte, error) {
	code, ok := typeCodes[m.Type]
	if !ok || len(m.Payload) == 0 {
		return nil, ErrInvalidMessage
	}

	wm := wireMessage{
		Type:          code,
		Payload:       m.Payload,
		PeerId:        m.PeerId,
		ParticipantId: m.ParticipantId,
		Id:            m.Id,
	}
	if !m.Timestamp.IsZero() {
		wm.Timestamp = m.Timestamp.UnixMilli()
	}

	b, err := json.Marshal(wm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return b, nil
}

// Decode parses a wire envelope. Decoding is all or nothing: a
// missing type or payload, or an unknown type code, fails the whole
// message.
func Decode(raw []byte) (Message, error) {
	var wm wireMessage
	if err := json.Unmarshal(raw, &wm); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	t, ok := typesByCode[wm.Type]
	if !ok || len(wm.Payload) == 0 {
		return Message{}, ErrInvalidMessage
	}

	m := Message{
		Type:          t,
		Payload:       wm.Payload,
		PeerId:        wm.PeerId,
		ParticipantId: wm.ParticipantId,
		Id:            wm.Id,
	}
	if wm.Timestamp != 0 {
		m.Timestamp = time.UnixMilli(wm.Timestamp).UTC()
	}
	return m, nil
}

// Now returns the current time at the millisecond granularity carried
// on the wire.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
