package history

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/mockmate/internal/interview"
)

// AnswerSummary is one graded answer, joined with the question and answer
// text from the session.
type AnswerSummary struct {
	QuestionNumber int     `json:"questionNumber"`
	Question       string  `json:"question"`
	Answer         string  `json:"answer"`
	Score          float64 `json:"score"`
	IsCorrect      bool    `json:"isCorrect"`
	Feedback       string  `json:"feedback"`
}

// Record is one finished interview in a user's log.
type Record struct {
	ID                  string                                   `json:"id"`
	Date                time.Time                                `json:"date"`
	Mode                string                                   `json:"mode"`
	QuestionsAnswered   int                                      `json:"questionsAnswered"`
	TotalQuestions      int                                      `json:"totalQuestions"`
	OverallScore        float64                                  `json:"overallScore"`
	Grade               string                                   `json:"grade"`
	Summary             string                                   `json:"summary"`
	ReadyForInterview   bool                                     `json:"readyForInterview"`
	Duration            int                                      `json:"duration"` // minutes
	Strengths           []interview.Strength                     `json:"strengths"`
	ImprovementAreas    []interview.ImprovementArea              `json:"improvementAreas"`
	KeyGaps             []string                                 `json:"keyGaps"`
	Recommendations     []string                                 `json:"recommendations"`
	AnswersEvaluation   []AnswerSummary                          `json:"answersEvaluation"`
	CategoryPerformance map[string]interview.CategoryPerformance `json:"categoryPerformance"`
}

// Stats are a user's running interview statistics.
type Stats struct {
	InterviewCount int `json:"interviewCount"`
	AverageScore   int `json:"averageScore"`
}

// UserStatsPayload is the payload of a user_stats job.
type UserStatsPayload struct {
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
}

func newRecord(s *interview.Session, eval interview.SessionEvaluation, now time.Time) Record {
	rec := Record{
		ID:                  uuid.NewString(),
		Date:                now,
		Mode:                s.Mode,
		QuestionsAnswered:   eval.QuestionsAnswered,
		TotalQuestions:      eval.TotalQuestions,
		OverallScore:        eval.OverallScore,
		Grade:               eval.Grade,
		Summary:             eval.Summary,
		ReadyForInterview:   eval.ReadyForInterview,
		Duration:            int(math.Round(now.Sub(s.CreatedAt).Minutes())),
		Strengths:           eval.Strengths,
		ImprovementAreas:    eval.ImprovementAreas,
		KeyGaps:             eval.KeyGaps,
		Recommendations:     eval.Recommendations,
		AnswersEvaluation:   make([]AnswerSummary, len(eval.AnswersEvaluation)),
		CategoryPerformance: eval.CategoryPerformance,
	}
	if rec.Mode == "" {
		rec.Mode = "all"
	}
	if rec.QuestionsAnswered == 0 {
		rec.QuestionsAnswered = len(s.Answers)
	}
	if rec.TotalQuestions == 0 {
		rec.TotalQuestions = len(s.Questions)
	}
	if rec.Grade == "" {
		rec.Grade = "N/A"
	}
	if rec.Strengths == nil {
		rec.Strengths = []interview.Strength{}
	}
	if rec.ImprovementAreas == nil {
		rec.ImprovementAreas = []interview.ImprovementArea{}
	}
	if rec.KeyGaps == nil {
		rec.KeyGaps = []string{}
	}
	if rec.Recommendations == nil {
		rec.Recommendations = []string{}
	}
	if rec.CategoryPerformance == nil {
		rec.CategoryPerformance = map[string]interview.CategoryPerformance{}
	}

	// Entry i is paired with the i-th recorded answer, not with
	// question_number.
	for i, ae := range eval.AnswersEvaluation {
		sum := AnswerSummary{
			QuestionNumber: ae.QuestionNumber,
			Question:       fmt.Sprintf("Question %d", ae.QuestionNumber),
			Score:          ae.Score,
			IsCorrect:      ae.IsCorrect,
			Feedback:       ae.BriefFeedback,
		}
		if i < len(s.Answers) {
			if q := s.Answers[i].Question.Question; q != "" {
				sum.Question = q
			}
			sum.Answer = s.Answers[i].Answer
		}
		rec.AnswersEvaluation[i] = sum
	}
	return rec
}
