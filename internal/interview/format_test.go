package interview

import (
	"strings"
	"testing"
)

func TestQuestionHeader(t *testing.T) {
	got := questionHeader(2, 7, InterviewQuestion{Category: "behavioral", Difficulty: "hard"})
	want := "**Question 2 of 7**\n*Category: Behavioral* | *Difficulty: Hard*"
	if got != want {
		t.Errorf("questionHeader = %q, want %q", got, want)
	}
}

func TestQuickFeedback_HighScoreHidesImprove(t *testing.T) {
	e := EvaluationResult{OverallScore: 9, Verdict: "Excellent", Strengths: []string{"Precise"}, Weaknesses: []string{"Minor"}}
	got := quickFeedback(e, 2, 5)

	if !strings.HasPrefix(got, "✅ **Answer Recorded**") {
		t.Errorf("prefix: %q", got)
	}
	if strings.Contains(got, "**Improve:**") {
		t.Error("Improve line shown for a score of 8 or more")
	}
	if !strings.HasSuffix(got, "(2/5 answered)*") {
		t.Errorf("suffix: %q", got)
	}
}

func TestDetailedEvaluation(t *testing.T) {
	long := strings.Repeat("é", 250)
	a := AnswerRecord{Question: InterviewQuestion{Question: "Why?"}, Answer: long}

	got := detailedEvaluation(EvaluationResult{OverallScore: 2}, a)

	if !strings.Contains(got, "**Your Answer:** "+strings.Repeat("é", 200)+"...") {
		t.Error("answer preview not cut at 200 characters")
	}
	if !strings.Contains(got, "### ❌ Score: 2/10 - Not evaluated") {
		t.Errorf("score line missing:\n%s", got)
	}
	if strings.Contains(got, "| Relevance |") {
		t.Error("category table shown without category scores")
	}
	for _, fallback := range []string{"- Answer provided", "- Keep practicing!", "- Try to be more specific with examples"} {
		if !strings.Contains(got, fallback) {
			t.Errorf("missing fallback %q", fallback)
		}
	}
}

func TestScoreIcon(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{10, "🌟"}, {8, "🌟"}, {7.9, "✅"}, {6, "✅"}, {4, "⚠️"}, {3.9, "❌"}, {0, "❌"},
	}
	for _, tt := range tests {
		if got := scoreIcon(tt.score); got != tt.want {
			t.Errorf("scoreIcon(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestFormatScore(t *testing.T) {
	for in, want := range map[float64]string{7: "7", 7.5: "7.5", 0: "0"} {
		if got := formatScore(in); got != want {
			t.Errorf("formatScore(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestProgress(t *testing.T) {
	var nilSession *Session
	if p := nilSession.Progress(); p != (Progress{}) {
		t.Errorf("nil Progress = %+v", p)
	}

	s := &Session{
		Questions:            make([]InterviewQuestion, 3),
		CurrentQuestionIndex: 2,
		Answers:              make([]AnswerRecord, 2),
	}
	if p := s.Progress(); p != (Progress{Current: 3, Total: 3, Percentage: 67, Answered: 2}) {
		t.Errorf("Progress = %+v", p)
	}
}

func TestClone_Independent(t *testing.T) {
	s := &Session{
		Questions: []InterviewQuestion{{Question: "q", ExpectedTopics: []string{"a"}}},
		Answers:   []AnswerRecord{{Answer: "x", Question: InterviewQuestion{ExpectedTopics: []string{"b"}}}},
	}
	c := s.Clone()
	c.Questions[0].ExpectedTopics[0] = "changed"
	c.Answers[0].Answer = "y"
	c.Answers[0].Question.ExpectedTopics[0] = "changed"

	if s.Questions[0].ExpectedTopics[0] != "a" || s.Answers[0].Answer != "x" || s.Answers[0].Question.ExpectedTopics[0] != "b" {
		t.Errorf("Clone shares memory with the original: %+v", s)
	}
	if c.Messages == nil {
		t.Error("Clone produced a nil Messages slice")
	}
}
