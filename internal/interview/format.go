package interview

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const answerPreviewLen = 200

func welcomeMessage(questions []InterviewQuestion) string {
	first := questions[0]
	n := len(questions)

	return fmt.Sprintf(`👋 **Welcome to your MockMate interview session!**

I've analyzed your resume and prepared **%d personalized questions** based on your experience and skills.

**How this works:**
- I'll ask you questions one at a time
- Type your answer and press Enter to submit
- I'll evaluate your answer and provide feedback
- Say "next question" to move to the next one
- Ask for "feedback" for detailed evaluation of your last answer

**Important:** Your answers will be evaluated for correctness, completeness, and clarity.

---

%s

%s`, n, questionHeader(1, n, first), first.Question)
}

func questionHeader(number, total int, q InterviewQuestion) string {
	return fmt.Sprintf("**Question %d of %d**\n*Category: %s* | *Difficulty: %s*",
		number, total, capitalize(q.Category), capitalize(q.Difficulty))
}

func nextQuestionMessage(number, total int, q InterviewQuestion) string {
	return fmt.Sprintf("%s\n\n%s\n\nTake your time to think about this.", questionHeader(number, total, q), q.Question)
}

func completionMessage(answered, total int) string {
	return fmt.Sprintf(`🎉 **Congratulations!** You've completed all the interview questions!

**Questions Answered:** %d out of %d

Click "End Session" to see your detailed performance report.`, answered, total)
}

const noAnswerFeedbackMessage = "❌ You haven't answered any questions yet. Please answer the current question first, then ask for feedback!"

// quickFeedback is the short reply appended after each recorded answer.
func quickFeedback(e EvaluationResult, answered, total int) string {
	icon := "⚠️"
	if e.OverallScore >= 6 {
		icon = "✅"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s **Answer Recorded**\n\n**Score:** %s/10 | **Verdict:** %s\n\n",
		icon, formatScore(e.OverallScore), verdictOrDefault(e.Verdict))

	if len(e.Strengths) > 0 {
		fmt.Fprintf(&b, "**Good:** %s\n", e.Strengths[0])
	}
	if len(e.Weaknesses) > 0 && e.OverallScore < 8 {
		fmt.Fprintf(&b, "**Improve:** %s\n", e.Weaknesses[0])
	}

	fmt.Fprintf(&b, "\n---\n📊 *Say \"feedback\" for detailed evaluation*\n➡️ *Say \"next question\" to continue (%d/%d answered)*", answered, total)
	return b.String()
}

// detailedEvaluation renders the full Markdown report for one answer.
func detailedEvaluation(e EvaluationResult, a AnswerRecord) string {
	var b strings.Builder

	b.WriteString("## 📊 Detailed Answer Evaluation\n\n")
	fmt.Fprintf(&b, "**Question:** %s\n\n", a.Question.Question)
	fmt.Fprintf(&b, "**Your Answer:** %s\n\n", previewAnswer(a.Answer))
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "### %s Score: %s/10 - %s\n\n", scoreIcon(e.OverallScore), formatScore(e.OverallScore), verdictOrDefault(e.Verdict))

	if cs := e.CategoryScores; cs != nil && cs.Relevance != 0 {
		b.WriteString("| Relevance | Depth | Clarity | Structure |\n")
		b.WriteString("|:---------:|:-----:|:-------:|:---------:|\n")
		fmt.Fprintf(&b, "| %s/10 | %s/10 | %s/10 | %s/10 |",
			formatScore(cs.Relevance), formatScore(cs.Depth), formatScore(cs.Clarity), formatScore(cs.Structure))
	}
	b.WriteString("\n\n")

	b.WriteString("### ✅ What You Did Well\n")
	b.WriteString(bulletList(e.Strengths, "Answer provided"))
	b.WriteString("\n\n### 🔧 Areas to Improve\n")
	b.WriteString(bulletList(e.Weaknesses, "Keep practicing!"))
	b.WriteString("\n\n### 💡 Suggestions\n")
	b.WriteString(bulletList(e.Suggestions, "Try to be more specific with examples"))
	b.WriteString("\n\n---\n*Say \"next question\" to continue.*")

	return b.String()
}

func scoreIcon(score float64) string {
	switch {
	case score >= 8:
		return "🌟"
	case score >= 6:
		return "✅"
	case score >= 4:
		return "⚠️"
	default:
		return "❌"
	}
}

func bulletList(items []string, fallback string) string {
	if len(items) == 0 {
		return "- " + fallback
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}

func previewAnswer(answer string) string {
	if utf8.RuneCountInString(answer) <= answerPreviewLen {
		return answer
	}
	return string([]rune(answer)[:answerPreviewLen]) + "..."
}

func verdictOrDefault(v string) string {
	if v == "" {
		return defaultVerdict
	}
	return v
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
