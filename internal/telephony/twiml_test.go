package telephony

import (
	"errors"
	"strings"
	"testing"
)

func TestRenderTwiMLGatherWithPrompt(t *testing.T) {
	xml, err := RenderTwiML(
		Say{Text: "Hi, this is Acme."},
		Gather{Input: "dtmf", NumDigits: 1, Action: "/webhooks/twilio/gather", Method: "POST", Prompt: &Say{Text: "Press 1 if interested."}},
		Hangup{},
	)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{
		"<Response>",
		"<Say>Hi, this is Acme.</Say>",
		`<Gather input="dtmf" numDigits="1" action="/webhooks/twilio/gather" method="POST">`,
		"<Say>Press 1 if interested.</Say>",
		"<Hangup></Hangup>",
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml:\n%s", want, xml)
		}
	}
}

func TestRenderTwiMLConnectRequiresURL(t *testing.T) {
	if _, err := RenderTwiML(Connect{}); err == nil {
		t.Fatalf("expected error")
	}
	xml, err := RenderTwiML(Connect{Stream: Stream{URL: "wss://media.example.com/stream"}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(xml, `<Stream url="wss://media.example.com/stream">`) {
		t.Fatalf("missing stream: %s", xml)
	}
}

func TestRenderTwiMLRejectsEmptyMessage(t *testing.T) {
	if _, err := RenderTwiML(Message{}); !errors.Is(err, ErrEmptyTwiML) {
		t.Fatalf("expected ErrEmptyTwiML, got %v", err)
	}
}

func TestRenderTwiMLEmptyResponse(t *testing.T) {
	xml, err := RenderTwiML()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(xml, "<Response></Response>") {
		t.Fatalf("expected empty response: %s", xml)
	}
}
