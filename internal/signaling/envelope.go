package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	MessageTypeOffer     MessageType = "offer"
	MessageTypeAnswer    MessageType = "answer"
	MessageTypeCandidate MessageType = "candidate"
	MessageTypePresence  MessageType = "presence"

	// MessageTypeHello announces the caller's user ID when it is not supplied
	// in the handshake query string.
	MessageTypeHello MessageType = "hello"
	// MessageTypeReady is sent by the hub as the first message on every route.
	MessageTypeReady MessageType = "ready"
	MessageTypeError MessageType = "error"
)

// Relayable reports whether clients may send this type to their peers.
func (t MessageType) Relayable() bool {
	switch t {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeCandidate, MessageTypePresence:
		return true
	default:
		return false
	}
}

// Envelope is the unit of signaling traffic. Payload is forwarded verbatim.
type Envelope struct {
	Type      MessageType     `json:"type"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`

	// Peers is only set on ready envelopes.
	Peers []string `json:"peers,omitempty"`

	// Code and Message are only set on error envelopes.
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ParseEnvelope decodes a client-originated envelope. Unknown fields,
// trailing data and hub-only message types are rejected.
func ParseEnvelope(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Envelope{}, fmt.Errorf("unexpected trailing data")
	}
	if err := env.validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (e Envelope) validate() error {
	if e.SessionID != "" || e.Peers != nil || e.Code != "" || e.Message != "" {
		return fmt.Errorf("%s message has hub-only fields", e.Type)
	}
	switch e.Type {
	case MessageTypeHello:
		if e.From == "" {
			return fmt.Errorf("hello message missing from")
		}
		if e.To != "" || len(e.Payload) != 0 {
			return fmt.Errorf("hello message has unexpected fields")
		}
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeCandidate:
		if len(e.Payload) == 0 {
			return fmt.Errorf("%s message missing payload", e.Type)
		}
	case MessageTypePresence:
	default:
		return fmt.Errorf("unsupported message type %q", e.Type)
	}
	return nil
}

// ValidatePayload checks that offer, answer and candidate payloads decode as
// WebRTC session descriptions and ICE candidates. Other types pass unchecked.
func ValidatePayload(e Envelope) error {
	switch e.Type {
	case MessageTypeOffer, MessageTypeAnswer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(e.Payload, &desc); err != nil {
			return fmt.Errorf("invalid %s payload: %w", e.Type, err)
		}
		want := webrtc.SDPTypeOffer
		if e.Type == MessageTypeAnswer {
			want = webrtc.SDPTypeAnswer
		}
		if desc.Type != want {
			return fmt.Errorf("%s message has sdp type %q", e.Type, desc.Type.String())
		}
		if _, err := desc.Unmarshal(); err != nil {
			return fmt.Errorf("invalid %s sdp: %w", e.Type, err)
		}
	case MessageTypeCandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(e.Payload, &cand); err != nil {
			return fmt.Errorf("invalid candidate payload: %w", err)
		}
	}
	return nil
}
