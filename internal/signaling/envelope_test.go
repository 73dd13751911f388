package signaling

import (
	"encoding/json"
	"strings"
	"testing"
)

const testSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func sdpPayload(t *testing.T, typ string) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(map[string]string{"type": typ, "sdp": testSDP})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestParseEnvelope_Offer(t *testing.T) {
	raw := []byte(`{"type":"offer","to":"u2","payload":{"type":"offer","sdp":"v=0"}}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Type != MessageTypeOffer || env.To != "u2" {
		t.Fatalf("unexpected envelope: %#v", env)
	}
	if string(env.Payload) != `{"type":"offer","sdp":"v=0"}` {
		t.Fatalf("payload=%s, want it forwarded verbatim", env.Payload)
	}
}

func TestParseEnvelope_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":      `{"type":"presence","unexpected":true}`,
		"trailing data":      `{"type":"presence"} {}`,
		"unknown type":       `{"type":"bye"}`,
		"hub-only ready":     `{"type":"ready"}`,
		"hub-only error":     `{"type":"error","code":"x","message":"y"}`,
		"session id":         `{"type":"presence","session_id":"d1"}`,
		"peers":              `{"type":"presence","peers":["u2"]}`,
		"offer no payload":   `{"type":"offer"}`,
		"candidate no body":  `{"type":"candidate"}`,
		"hello without from": `{"type":"hello"}`,
		"hello with payload": `{"type":"hello","from":"u1","payload":{}}`,
		"not json":           `offer`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseEnvelope([]byte(raw)); err == nil {
				t.Fatalf("expected error for %s", raw)
			}
		})
	}
}

func TestParseEnvelope_PresenceAndHello(t *testing.T) {
	if _, err := ParseEnvelope([]byte(`{"type":"presence"}`)); err != nil {
		t.Fatalf("presence without payload: %v", err)
	}
	env, err := ParseEnvelope([]byte(`{"type":"hello","from":"u1"}`))
	if err != nil {
		t.Fatalf("hello: %v", err)
	}
	if env.From != "u1" {
		t.Fatalf("From=%q, want u1", env.From)
	}
}

func TestValidatePayload(t *testing.T) {
	ok := []Envelope{
		{Type: MessageTypeOffer, Payload: sdpPayload(t, "offer")},
		{Type: MessageTypeAnswer, Payload: sdpPayload(t, "answer")},
		{Type: MessageTypeCandidate, Payload: json.RawMessage(`{"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host","sdpMid":"0","sdpMLineIndex":0}`)},
		{Type: MessageTypeCandidate, Payload: json.RawMessage(`{"candidate":""}`)},
		{Type: MessageTypePresence, Payload: json.RawMessage(`"anything"`)},
	}
	for _, env := range ok {
		if err := ValidatePayload(env); err != nil {
			t.Fatalf("ValidatePayload(%s): %v", env.Type, err)
		}
	}

	bad := []Envelope{
		{Type: MessageTypeOffer, Payload: sdpPayload(t, "answer")},
		{Type: MessageTypeAnswer, Payload: json.RawMessage(`"v=0"`)},
		{Type: MessageTypeOffer, Payload: json.RawMessage(`{"type":"offer","sdp":"not sdp"}`)},
		{Type: MessageTypeCandidate, Payload: json.RawMessage(`[1,2]`)},
	}
	for _, env := range bad {
		if err := ValidatePayload(env); err == nil {
			t.Fatalf("expected error for %s payload %s", env.Type, env.Payload)
		}
	}
}

func TestEnvelope_ReadyMarshalsPeers(t *testing.T) {
	b, err := json.Marshal(Envelope{Type: MessageTypeReady, From: "u1", SessionID: "d1", Peers: []string{"u2"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(b)
	for _, want := range []string{`"type":"ready"`, `"session_id":"d1"`, `"peers":["u2"]`} {
		if !strings.Contains(got, want) {
			t.Fatalf("ready envelope %s missing %s", got, want)
		}
	}
	if strings.Contains(got, "payload") {
		t.Fatalf("ready envelope %s has a payload", got)
	}
}
