package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTwilioClient_InitiateDial(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		got = r
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA0001","status":"queued"}`))
	}))
	defer srv.Close()

	c := NewTwilioClient(TwilioConfig{
		AccountSID:       "AC1",
		AuthToken:        "tok",
		FromNumber:       "+15550000000",
		PublicBaseURL:    "https://dialer.example.com/",
		BaseURL:          srv.URL,
		MachineDetection: true,
		Record:           true,
	}, srv.Client())

	sid, err := c.InitiateDial(context.Background(), DialRequest{To: "+15551112222", ScriptID: "solar"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sid != "CA0001" {
		t.Fatalf("unexpected sid %q", sid)
	}
	if got.URL.Path != "/2010-04-01/Accounts/AC1/Calls.json" {
		t.Fatalf("unexpected path %q", got.URL.Path)
	}
	user, pass, ok := got.BasicAuth()
	if !ok || user != "AC1" || pass != "tok" {
		t.Fatalf("expected basic auth")
	}
	if got.PostForm.Get("Url") != "https://dialer.example.com/webhooks/twilio/voice?script=solar" {
		t.Fatalf("unexpected answer url %q", got.PostForm.Get("Url"))
	}
	if got.PostForm.Get("StatusCallback") != "https://dialer.example.com/webhooks/twilio/status" {
		t.Fatalf("unexpected status callback %q", got.PostForm.Get("StatusCallback"))
	}
	if len(got.PostForm["StatusCallbackEvent"]) != 4 {
		t.Fatalf("expected 4 status callback events, got %v", got.PostForm["StatusCallbackEvent"])
	}
	if got.PostForm.Get("AsyncAmdStatusCallback") == "" || got.PostForm.Get("RecordingStatusCallback") == "" {
		t.Fatalf("expected amd and recording callbacks")
	}
}

func TestTwilioClient_ErrorIsAdapterError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	c := NewTwilioClient(TwilioConfig{AccountSID: "AC1", BaseURL: srv.URL}, srv.Client())
	err := c.SendSMS(context.Background(), "+1", "hi")
	var ae *AdapterError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AdapterError, got %v", err)
	}
	if ae.StatusCode != http.StatusBadRequest || ae.Op != "sms" || ae.Provider != "twilio" {
		t.Fatalf("unexpected adapter error: %+v", ae)
	}
}

func TestTwilioClient_DialRequiresDestination(t *testing.T) {
	c := NewTwilioClient(TwilioConfig{}, nil)
	if _, err := c.InitiateDial(context.Background(), DialRequest{}); err == nil {
		t.Fatalf("expected error")
	}
}
