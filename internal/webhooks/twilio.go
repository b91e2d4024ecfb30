package webhooks

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"campaign-dialer/internal/calls"
	"campaign-dialer/internal/telephony"
	"campaign-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

const providerTwilio = "twilio"

func loggerFor(c *gin.Context) *slog.Logger { return logger.FromGin(c) }

func parseTwilio(c *gin.Context) (telephony.TwilioCallback, bool) {
	cb, err := telephony.ParseTwilioCallback(c.Request)
	if err != nil {
		loggerFor(c).Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return telephony.TwilioCallback{}, false
	}
	return cb, true
}

func (h Handlers) twilioEvent(cb telephony.TwilioCallback, body calls.EventBody) calls.CallEvent {
	return calls.CallEvent{ProviderCallID: cb.CallSid, Provider: providerTwilio, OccurredAt: h.now(), Body: body}
}

// TwilioVoice is the answer URL: greet, then gather one keypress.
func (h Handlers) TwilioVoice(c *gin.Context) {
	cb, ok := parseTwilio(c)
	if !ok {
		return
	}
	if st, known := twilioStatus(cb.CallStatus); known && cb.CallSid != "" {
		h.apply(c, h.twilioEvent(cb, calls.StatusChanged{Status: st}))
	}

	sc := h.Scripts.Get(c.Query("script"))
	writeTwiML(c,
		telephony.Say{Voice: sc.Voice, Text: sc.Greeting},
		gatherFor(sc),
		telephony.Say{Voice: sc.Voice, Text: sc.Goodbye},
		telephony.Hangup{},
	)
}

func gatherFor(sc telephony.Script) telephony.Gather {
	return telephony.Gather{
		Input:     "dtmf",
		NumDigits: 1,
		Timeout:   6,
		Action:    "/webhooks/twilio/gather?script=" + url.QueryEscape(sc.ID),
		Method:    http.MethodPost,
		Prompt:    &telephony.Say{Voice: sc.Voice, Text: sc.GatherPrompt},
	}
}

// keypressOutcomes maps the gather digit to an outcome.
var keypressOutcomes = map[string]struct {
	outcome   calls.Outcome
	sentiment calls.Sentiment
}{
	"1": {calls.OutcomeInterested, calls.SentimentPositive},
	"2": {calls.OutcomeNotInterested, calls.SentimentNegative},
	"3": {calls.OutcomeCallback, calls.SentimentNeutral},
}

// TwilioGather turns a keypress into an outcome and speaks the scripted reply.
// Unrecognized digits re-prompt.
func (h Handlers) TwilioGather(c *gin.Context) {
	cb, ok := parseTwilio(c)
	if !ok {
		return
	}
	sc := h.Scripts.Get(c.Query("script"))

	k, known := keypressOutcomes[cb.Digits]
	if !known {
		writeTwiML(c,
			telephony.Say{Voice: sc.Voice, Text: sc.Reprompt},
			gatherFor(sc),
			telephony.Hangup{},
		)
		return
	}
	if cb.CallSid != "" {
		h.apply(c, h.twilioEvent(cb, calls.OutcomeDetected{Outcome: k.outcome, Sentiment: k.sentiment, Source: "keypress"}))
	}
	writeTwiML(c,
		telephony.Say{Voice: sc.Voice, Text: sc.Responses[cb.Digits]},
		telephony.Hangup{},
	)
}

// TwilioStatus applies call progress callbacks.
func (h Handlers) TwilioStatus(c *gin.Context) {
	cb, ok := parseTwilio(c)
	if !ok {
		return
	}
	st, known := twilioStatus(cb.CallStatus)
	if !known || cb.CallSid == "" {
		loggerFor(c).Warn("twilio status ignored", "call_sid", cb.CallSid, "call_status", cb.CallStatus)
		c.Status(http.StatusNoContent)
		return
	}
	ev := calls.StatusChanged{Status: st, DurationSeconds: cb.CallDuration}
	if st == calls.StatusFailed {
		ev.Reason = cb.CallStatus
	}
	h.apply(c, h.twilioEvent(cb, ev))
	c.Status(http.StatusNoContent)
}

// TwilioRecording attaches the recording once it is available.
func (h Handlers) TwilioRecording(c *gin.Context) {
	cb, ok := parseTwilio(c)
	if !ok {
		return
	}
	if cb.CallSid != "" && cb.RecordingURL != "" {
		h.apply(c, h.twilioEvent(cb, calls.RecordingReady{URL: cb.RecordingURL, DurationSeconds: cb.RecordingDuration}))
	}
	c.Status(http.StatusNoContent)
}

func isMachine(answeredBy string) bool {
	return strings.HasPrefix(answeredBy, "machine") || answeredBy == "fax"
}

// TwilioAMD short-circuits answering machines to the voicemail message.
func (h Handlers) TwilioAMD(c *gin.Context) {
	cb, ok := parseTwilio(c)
	if !ok {
		return
	}
	if !isMachine(cb.AnsweredBy) {
		writeTwiML(c)
		return
	}
	if cb.CallSid != "" {
		h.apply(c, h.twilioEvent(cb, calls.OutcomeDetected{Outcome: calls.OutcomeVoicemail, Sentiment: calls.SentimentNeutral, Source: "amd"}))
	}
	if cb.AnsweredBy == "fax" {
		writeTwiML(c, telephony.Hangup{})
		return
	}
	sc := h.Scripts.Get(c.Query("script"))
	writeTwiML(c,
		telephony.Say{Voice: sc.Voice, Text: sc.Voicemail},
		telephony.Hangup{},
	)
}

// TwilioStream connects the call audio to the media stream endpoint.
func (h Handlers) TwilioStream(c *gin.Context) {
	cb, ok := parseTwilio(c)
	if !ok {
		return
	}
	if h.StreamURL == "" {
		loggerFor(c).Warn("media stream requested but no stream url configured", "call_sid", cb.CallSid)
		writeTwiML(c, telephony.Hangup{})
		return
	}
	writeTwiML(c, telephony.Connect{Stream: telephony.Stream{
		URL:        h.StreamURL,
		Parameters: []telephony.StreamParam{{Name: "callSid", Value: cb.CallSid}},
	}})
}

type smsKeyword int

const (
	smsUnknown smsKeyword = iota
	smsYes
	smsNo
	smsStop
)

func parseSMSKeyword(body string) smsKeyword {
	fields := strings.Fields(strings.ToLower(body))
	if len(fields) == 0 {
		return smsUnknown
	}
	switch strings.Trim(fields[0], ".!,") {
	case "yes", "y":
		return smsYes
	case "no", "n":
		return smsNo
	case "stop", "stopall", "unsubscribe", "cancel", "end", "quit":
		return smsStop
	}
	return smsUnknown
}

// TwilioSMS handles inbound replies. STOP registers the sender in DNC before
// the reply is sent; yes/no set the outcome on the sender's latest call.
func (h Handlers) TwilioSMS(c *gin.Context) {
	cb, ok := parseTwilio(c)
	if !ok {
		return
	}
	log := loggerFor(c).With("message_sid", cb.MessageSid)
	ctx := c.Request.Context()
	sc := h.Scripts.Get("")

	kw := parseSMSKeyword(cb.Body)
	if kw == smsUnknown || cb.From == "" {
		writeTwiML(c)
		return
	}

	if kw == smsStop {
		if h.DNC == nil {
			log.Error("sms stop received but dnc registry not configured")
		} else if err := h.DNC.Add(ctx, cb.From, "sms stop"); err != nil {
			log.Error("dnc add from sms failed", "err", err)
		}
	}

	var body calls.OutcomeDetected
	reply := ""
	switch kw {
	case smsYes:
		body = calls.OutcomeDetected{Outcome: calls.OutcomeInterested, Sentiment: calls.SentimentPositive, Source: "sms"}
		reply = sc.SMSYesReply
	case smsNo:
		body = calls.OutcomeDetected{Outcome: calls.OutcomeNotInterested, Sentiment: calls.SentimentNegative, Source: "sms"}
		reply = sc.SMSNoReply
	case smsStop:
		body = calls.OutcomeDetected{Outcome: calls.OutcomeNotInterested, Sentiment: calls.SentimentNegative, OptedOut: true, Source: "sms"}
		reply = sc.SMSStopReply
	}

	call, err := h.Ledger.LatestByPhone(ctx, cb.From)
	switch {
	case errors.Is(err, calls.ErrNotFound):
		log.Debug("sms from phone with no call", "from", cb.From)
	case err != nil:
		log.Error("latest call lookup failed", "err", err)
	case call.ProviderCallID == "":
		log.Debug("latest call not yet bound", "call_id", call.ID)
	default:
		h.apply(c, calls.CallEvent{ProviderCallID: call.ProviderCallID, Provider: call.Provider, OccurredAt: h.now(), Body: body})
	}

	// Twilio answers STOP itself on long codes; replying again is harmless.
	writeTwiML(c, telephony.Message{Body: reply})
}
