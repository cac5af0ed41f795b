package gateway

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/mockmate/internal/interview"
)

const (
	maxExtractCandidates = 10
	minExtractedLen      = 20
)

var questionSentence = regexp.MustCompile(`[^.!?]*\?`)

// MalformedResponseError is a model reply that should have been JSON but
// was not.
type MalformedResponseError struct {
	Op  string
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// extractQuestions pulls question sentences out of free text. Only the first
// ten candidates are looked at, and each must be longer than 20 characters.
func extractQuestions(text string) []interview.InterviewQuestion {
	qs := []interview.InterviewQuestion{}
	for _, m := range questionSentence.FindAllString(text, maxExtractCandidates) {
		q := strings.TrimSpace(m)
		if utf8.RuneCountInString(q) <= minExtractedLen {
			continue
		}
		qs = append(qs, interview.InterviewQuestion{
			Question:       q,
			Category:       interview.CategoryGeneral,
			Difficulty:     interview.DifficultyMedium,
			SkillFocus:     "",
			ExpectedTopics: []string{},
		})
	}
	return qs
}
