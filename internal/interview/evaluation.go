package interview

import (
	"encoding/json"
	"math"
)

// ReadyThreshold is the session score at or above which a candidate is
// considered ready for a real interview.
const ReadyThreshold = 60

const defaultVerdict = "Not evaluated"

type CategoryScores struct {
	Relevance float64 `json:"relevance"`
	Depth     float64 `json:"depth"`
	Clarity   float64 `json:"clarity"`
	Structure float64 `json:"structure"`
}

// EvaluationResult grades a single answer on a 1-10 scale.
type EvaluationResult struct {
	OverallScore      float64         `json:"overall_score"`
	IsCorrect         bool            `json:"is_correct"`
	CategoryScores    *CategoryScores `json:"category_scores,omitempty"`
	Strengths         []string        `json:"strengths"`
	Weaknesses        []string        `json:"weaknesses"`
	MissingTopics     []string        `json:"missing_topics"`
	FactualErrors     []string        `json:"factual_errors"`
	Suggestions       []string        `json:"suggestions"`
	Verdict           string          `json:"verdict"`
	CorrectAnswerHint string          `json:"correct_answer_hint"`
}

// Normalize fills absent collections and clamps scores to 0-10.
func (e *EvaluationResult) Normalize() {
	e.OverallScore = clamp(e.OverallScore, 0, 10)
	if e.CategoryScores != nil {
		e.CategoryScores.Relevance = clamp(e.CategoryScores.Relevance, 0, 10)
		e.CategoryScores.Depth = clamp(e.CategoryScores.Depth, 0, 10)
		e.CategoryScores.Clarity = clamp(e.CategoryScores.Clarity, 0, 10)
		e.CategoryScores.Structure = clamp(e.CategoryScores.Structure, 0, 10)
	}
	e.Strengths = orEmpty(e.Strengths)
	e.Weaknesses = orEmpty(e.Weaknesses)
	e.MissingTopics = orEmpty(e.MissingTopics)
	e.FactualErrors = orEmpty(e.FactualErrors)
	e.Suggestions = orEmpty(e.Suggestions)
	if e.Verdict == "" {
		e.Verdict = defaultVerdict
	}
}

type AnswerEvaluation struct {
	QuestionNumber int     `json:"question_number"`
	Score          float64 `json:"score"`
	IsCorrect      bool    `json:"is_correct"`
	BriefFeedback  string  `json:"brief_feedback"`
}

// Strength is a highlighted area of the session. The model sometimes sends
// plain strings instead of objects; both decode.
type Strength struct {
	Area  string   `json:"area"`
	Score *float64 `json:"score,omitempty"`
	Note  string   `json:"note,omitempty"`
}

func (s *Strength) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*s = Strength{Area: text}
		return nil
	}
	type plain Strength
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Strength(p)
	return nil
}

type ImprovementArea struct {
	Area       string `json:"area"`
	Priority   string `json:"priority"`
	Suggestion string `json:"suggestion"`
}

type CategoryPerformance struct {
	Score float64 `json:"score"`
	Note  string  `json:"note"`
}

// SessionEvaluation grades a whole session on a 0-100 scale.
type SessionEvaluation struct {
	OverallScore        float64                        `json:"overall_score"`
	Grade               string                         `json:"grade"`
	Summary             string                         `json:"summary"`
	AnswersEvaluation   []AnswerEvaluation             `json:"answers_evaluation"`
	Strengths           []Strength                     `json:"strengths"`
	ImprovementAreas    []ImprovementArea              `json:"improvement_areas"`
	CategoryPerformance map[string]CategoryPerformance `json:"category_performance"`
	Recommendations     []string                       `json:"recommendations"`
	ReadyForInterview   bool                           `json:"ready_for_interview"`
	KeyGaps             []string                       `json:"key_gaps"`

	QuestionsAnswered int `json:"questions_answered"`
	TotalQuestions    int `json:"total_questions"`
	CompletionRate    int `json:"completion_rate"`
}

// Normalize fills absent collections, clamps the score to 0-100 and
// derives ReadyForInterview from the score. The model's own readiness
// flag is not trusted.
func (e *SessionEvaluation) Normalize() {
	e.OverallScore = clamp(e.OverallScore, 0, 100)
	if e.Grade == "" {
		e.Grade = "N/A"
	}
	if e.AnswersEvaluation == nil {
		e.AnswersEvaluation = []AnswerEvaluation{}
	}
	if e.Strengths == nil {
		e.Strengths = []Strength{}
	}
	if e.ImprovementAreas == nil {
		e.ImprovementAreas = []ImprovementArea{}
	}
	if e.CategoryPerformance == nil {
		e.CategoryPerformance = map[string]CategoryPerformance{}
	}
	e.Recommendations = orEmpty(e.Recommendations)
	e.KeyGaps = orEmpty(e.KeyGaps)
	e.ReadyForInterview = e.OverallScore >= ReadyThreshold
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
