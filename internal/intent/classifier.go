// Package intent classifies what a candidate meant by a chat utterance.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the purpose of an utterance.
type Intent string

const (
	Next     Intent = "next"
	Feedback Intent = "feedback"
	Summary  Intent = "summary"
	Answer   Intent = "answer"
)

// Rules are checked in order; the first match wins. \s* between words
// accepts "move on", "moveon" and "move   on" alike.
var rules = []struct {
	intent  Intent
	pattern *regexp.Regexp
}{
	{Next, regexp.MustCompile(`(?i)\b(next|skip|move\s*on|continue)\b`)},
	{Feedback, regexp.MustCompile(`(?i)\b(feedback|how\s*did\s*i\s*do|rate\s*my|evaluate\s*my|score\s*my|review\s*my)\b`)},
	{Summary, regexp.MustCompile(`(?i)\b(summary|overall|final\s*score|results|show\s*summary|end\s*interview)\b`)},
}

// Classify returns the intent of utterance. Anything that matches no rule
// is an Answer to the current question.
func Classify(utterance string) Intent {
	text := strings.TrimSpace(utterance)
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return r.intent
		}
	}
	return Answer
}
