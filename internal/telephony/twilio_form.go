package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// TwilioCallback captures the subset of Twilio webhook fields the dialer
// reads. Twilio posts application/x-www-form-urlencoded.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
type TwilioCallback struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	Direction  string
	CallStatus string

	// CallDuration is only present on the completed callback.
	CallDuration int

	Digits string

	RecordingURL      string
	RecordingDuration int

	AnsweredBy string

	// SMS fields.
	MessageSid string
	Body       string
}

// ParseTwilioCallback reads a Twilio voice, status, gather, recording, AMD or
// SMS callback.
func ParseTwilioCallback(r *http.Request) (TwilioCallback, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioCallback{}, err
	}
	return TwilioCallback{
		CallSid:           r.PostFormValue("CallSid"),
		AccountSid:        r.PostFormValue("AccountSid"),
		From:              strings.TrimSpace(r.PostFormValue("From")),
		To:                strings.TrimSpace(r.PostFormValue("To")),
		Direction:         r.PostFormValue("Direction"),
		CallStatus:        strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus"))),
		CallDuration:      atoiOrZero(r.PostFormValue("CallDuration")),
		Digits:            strings.TrimSpace(r.PostFormValue("Digits")),
		RecordingURL:      r.PostFormValue("RecordingUrl"),
		RecordingDuration: atoiOrZero(r.PostFormValue("RecordingDuration")),
		AnsweredBy:        strings.ToLower(strings.TrimSpace(r.PostFormValue("AnsweredBy"))),
		MessageSid:        r.PostFormValue("MessageSid"),
		Body:              r.PostFormValue("Body"),
	}, nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
