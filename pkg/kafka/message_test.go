package kafka

import (
	"errors"
	"testing"
)

func TestMessageBuilder(t *testing.T) {
	msg, err := NewMessage().
		WithKey("user-1").
		WithValue(struct {
			Code string `json:"code"`
		}{"123456"}).
		WithEventType("identity.challenge.issued").
		WithSchemaVersion("1").
		WithSource("medislot").
		WithCorrelationID("").
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if msg.GetEventID() == "" {
		t.Error("expected generated event id")
	}
	if msg.Headers[HeaderTimestamp] == "" {
		t.Error("expected timestamp header")
	}
	if _, ok := msg.Headers[HeaderCorrelationID]; ok {
		t.Error("empty correlation id must not be set")
	}

	var decoded struct {
		Code string `json:"code"`
	}
	if err := msg.DecodeValue(&decoded); err != nil || decoded.Code != "123456" {
		t.Errorf("decode failed: %v %+v", err, decoded)
	}
}

func TestMessageBuilder_EncodeFailure(t *testing.T) {
	_, err := NewMessage().WithKey("k").WithValue(make(chan int)).Build()
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage, got %v", err)
	}
}
