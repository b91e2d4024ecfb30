// Package classifier turns a finished conversation into a call outcome.
//
// Classify is pure: identical input always yields identical output.
package classifier

import (
	"strings"

	"campaign-dialer/internal/calls"
)

// Result is the classifier verdict for one call.
type Result struct {
	Outcome     calls.Outcome
	Sentiment   calls.Sentiment
	OptedOut    bool
	ActionItems []string
	Decisions   []string

	// Shortcut is set when the ended reason decided the outcome and the
	// keyword scan never ran.
	Shortcut bool
}

var positiveKeywords = []string{
	"sounds good",
	"sounds great",
	"tell me more",
	"i'm interested",
	"i am interested",
	"sign me up",
	"let's do it",
	"yes please",
	"book",
	"schedule a",
	"love to",
}

var negativeKeywords = []string{
	"not interested",
	"no thanks",
	"no thank you",
	"stop calling",
	"remove me",
	"do not call",
	"don't call",
	"unsubscribe",
	"take me off",
}

var callbackKeywords = []string{
	"call back",
	"call me back",
	"call me later",
	"another time",
	"next week",
	"tomorrow",
	"busy right now",
	"not a good time",
}

// optOutPhrases is the subset of negative phrases that counts as an explicit
// request to stop contact.
var optOutPhrases = []string{
	"stop calling",
	"remove me",
	"do not call",
	"don't call",
	"unsubscribe",
	"take me off",
}

const (
	ActionCallBack = "call back"
	ActionFollowUp = "send follow-up"
)

// Classify applies end-reason shortcuts, then keyword counting with a fixed
// priority: negative over positive, then callback, then positive, then
// follow-up.
func Classify(transcript, summary, endedReason string) Result {
	if r, ok := shortcut(endedReason); ok {
		return r
	}

	text := strings.ToLower(transcript + " " + summary)
	pos := count(text, positiveKeywords)
	neg := count(text, negativeKeywords)
	cb := count(text, callbackKeywords)

	switch {
	case neg > pos:
		r := Result{
			Outcome:   calls.OutcomeNotInterested,
			Sentiment: calls.SentimentNegative,
			OptedOut:  count(text, optOutPhrases) > 0,
			Decisions: []string{"lead declined"},
		}
		if r.OptedOut {
			r.Decisions = append(r.Decisions, "lead asked not to be contacted")
		}
		return r
	case cb > 0 && pos == 0:
		return Result{
			Outcome:     calls.OutcomeCallback,
			Sentiment:   calls.SentimentNeutral,
			ActionItems: []string{ActionCallBack},
			Decisions:   []string{"lead asked for a call back"},
		}
	case pos > 0:
		return Result{
			Outcome:     calls.OutcomeInterested,
			Sentiment:   calls.SentimentPositive,
			ActionItems: []string{ActionFollowUp},
			Decisions:   []string{"lead expressed interest"},
		}
	default:
		return Result{
			Outcome:   calls.OutcomeFollowUp,
			Sentiment: calls.SentimentNeutral,
		}
	}
}

func shortcut(endedReason string) (Result, bool) {
	reason := strings.ToLower(endedReason)
	switch {
	case reason == "":
		return Result{}, false
	case strings.Contains(reason, "no-answer"),
		strings.Contains(reason, "did-not-answer"),
		strings.Contains(reason, "busy"):
		return Result{Outcome: calls.OutcomeNoAnswer, Sentiment: calls.SentimentNeutral, Shortcut: true}, true
	case strings.Contains(reason, "voicemail"):
		return Result{Outcome: calls.OutcomeVoicemail, Sentiment: calls.SentimentNeutral, Shortcut: true}, true
	}
	return Result{}, false
}

// count returns how many distinct keywords occur in text.
func count(text string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			n++
		}
	}
	return n
}
