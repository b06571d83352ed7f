package presentation

import (
	"errors"
	"strings"
	"testing"

	"github.com/kmlvn/beatrix/internal/bot"
)

func TestPingHandler_ReturnsMessage(t *testing.T) {
	handler := NewPingHandler()
	responder := &bot.MockResponder{}

	err := handler.Handle(nil, nil, responder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !responder.Responded {
		t.Fatal("expected a response")
	}
	if !strings.HasPrefix(responder.LastContent, "Pong!") {
		t.Errorf("expected content to start with %q, got %q", "Pong!", responder.LastContent)
	}
}

func TestPingHandler_ResponderError(t *testing.T) {
	handler := NewPingHandler()
	expectedErr := errors.New("responder failed")
	responder := &bot.MockResponder{RespondErr: expectedErr}

	err := handler.Handle(nil, nil, responder)
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
}
