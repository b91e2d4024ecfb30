package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language builder. Only the verbs the
// webhooks return are modeled.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

// Say speaks text to the callee.
type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

// Gather collects DTMF digits and posts them to Action.
type Gather struct {
	XMLName   xml.Name `xml:"Gather"`
	Input     string   `xml:"input,attr,omitempty"`
	NumDigits int      `xml:"numDigits,attr,omitempty"`
	Timeout   int      `xml:"timeout,attr,omitempty"`
	Action    string   `xml:"action,attr,omitempty"`
	Method    string   `xml:"method,attr,omitempty"`
	Prompt    *Say     `xml:"Say,omitempty"`
}

type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type Pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

// Redirect sends the call back to a TwiML URL, used to re-prompt.
type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Message replies to an inbound SMS.
type Message struct {
	XMLName xml.Name `xml:"Message"`
	Body    string   `xml:",chardata"`
}

// Connect opens a bidirectional media stream to URL.
type Connect struct {
	XMLName xml.Name `xml:"Connect"`
	Stream  Stream   `xml:"Stream"`
}

type Stream struct {
	URL        string        `xml:"url,attr"`
	Parameters []StreamParam `xml:"Parameter,omitempty"`
}

type StreamParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

var ErrEmptyTwiML = errors.New("telephony: empty twiml value")

// RenderTwiML encodes verbs as a TwiML document. An empty verb list renders an
// empty <Response/>, which Twilio treats as "do nothing".
func RenderTwiML(verbs ...any) (string, error) {
	r := twimlResponse{Verbs: verbs}
	for _, v := range verbs {
		switch v := v.(type) {
		case Say:
			if strings.TrimSpace(v.Text) == "" {
				return "", ErrEmptyTwiML
			}
		case Message:
			if strings.TrimSpace(v.Body) == "" {
				return "", ErrEmptyTwiML
			}
		case Connect:
			if strings.TrimSpace(v.Stream.URL) == "" {
				return "", errors.New("telephony: stream url required for connect")
			}
		}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
