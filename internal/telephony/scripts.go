package telephony

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Script is the spoken and texted content for one campaign.
type Script struct {
	ID           string            `yaml:"-"`
	Voice        string            `yaml:"voice"`
	Greeting     string            `yaml:"greeting"`
	GatherPrompt string            `yaml:"gather_prompt"`
	Reprompt     string            `yaml:"reprompt"`
	Responses    map[string]string `yaml:"responses"`
	Voicemail    string            `yaml:"voicemail"`
	Goodbye      string            `yaml:"goodbye"`

	SMSFollowUp  string `yaml:"sms_followup"`
	EmailSubject string `yaml:"email_subject"`
	EmailBody    string `yaml:"email_body"`

	// SMS keyword replies.
	SMSYesReply  string `yaml:"sms_yes_reply"`
	SMSNoReply   string `yaml:"sms_no_reply"`
	SMSStopReply string `yaml:"sms_stop_reply"`
}

// DefaultScriptID is used when a dial carries no script or an unknown one.
const DefaultScriptID = "default"

// DefaultScript is used when no scripts file is configured.
var DefaultScript = Script{
	ID:           DefaultScriptID,
	Greeting:     "Hello, this is a quick call about our service.",
	GatherPrompt: "Press 1 if you are interested, 2 if you are not, or 3 to be called back later.",
	Reprompt:     "Sorry, I didn't get that.",
	Responses: map[string]string{
		"1": "Great, we will follow up with more details shortly.",
		"2": "Understood. Thank you for your time.",
		"3": "No problem, we will call you back at a better time.",
	},
	Voicemail:    "Sorry we missed you. We will try again later.",
	Goodbye:      "Goodbye.",
	SMSFollowUp:  "Thanks for your interest! Reply STOP to opt out.",
	EmailSubject: "Following up on our call",
	EmailBody:    "Thanks for taking our call. Here are the details we promised.",
	SMSYesReply:  "Thanks! We will be in touch.",
	SMSNoReply:   "Understood, thanks for letting us know.",
	SMSStopReply: "You have been unsubscribed and will not be contacted again.",
}

// Scripts is a lookup of scripts by id.
type Scripts struct {
	byID map[string]Script
}

type scriptsFile struct {
	Scripts map[string]Script `yaml:"scripts"`
}

// LoadScripts reads a YAML scripts file. An empty path yields only the
// default script.
func LoadScripts(path string) (*Scripts, error) {
	if strings.TrimSpace(path) == "" {
		return ParseScripts(nil)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scripts: %w", err)
	}
	return ParseScripts(b)
}

// ParseScripts decodes scripts YAML. Missing fields fall back to the default
// script's values; unknown keys are an error.
func ParseScripts(b []byte) (*Scripts, error) {
	var f scriptsFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse scripts: %w", err)
	}
	s := &Scripts{byID: map[string]Script{DefaultScriptID: DefaultScript}}
	for id, sc := range f.Scripts {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, errors.New("parse scripts: empty script id")
		}
		sc.ID = id
		s.byID[id] = withDefaults(sc)
	}
	return s, nil
}

// Get returns the script for id, or the default script.
func (s *Scripts) Get(id string) Script {
	if s != nil {
		if sc, ok := s.byID[id]; ok {
			return sc
		}
		if sc, ok := s.byID[DefaultScriptID]; ok {
			return sc
		}
	}
	return DefaultScript
}

// Has reports whether id is a configured script.
func (s *Scripts) Has(id string) bool {
	if s == nil {
		return id == DefaultScriptID
	}
	_, ok := s.byID[id]
	return ok
}

func withDefaults(sc Script) Script {
	d := DefaultScript
	def := func(v *string, fallback string) {
		if strings.TrimSpace(*v) == "" {
			*v = fallback
		}
	}
	def(&sc.Greeting, d.Greeting)
	def(&sc.GatherPrompt, d.GatherPrompt)
	def(&sc.Reprompt, d.Reprompt)
	def(&sc.Voicemail, d.Voicemail)
	def(&sc.Goodbye, d.Goodbye)
	def(&sc.SMSFollowUp, d.SMSFollowUp)
	def(&sc.EmailSubject, d.EmailSubject)
	def(&sc.EmailBody, d.EmailBody)
	def(&sc.SMSYesReply, d.SMSYesReply)
	def(&sc.SMSNoReply, d.SMSNoReply)
	def(&sc.SMSStopReply, d.SMSStopReply)
	if sc.Responses == nil {
		sc.Responses = map[string]string{}
	}
	for k, v := range d.Responses {
		if _, ok := sc.Responses[k]; !ok {
			sc.Responses[k] = v
		}
	}
	return sc
}
