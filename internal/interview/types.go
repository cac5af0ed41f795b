package interview

import "time"

// Question categories.
const (
	CategoryTechnical   = "technical"
	CategoryBehavioral  = "behavioral"
	CategorySituational = "situational"
	CategoryGeneral     = "general"
)

// Question difficulties. DifficultyMixed is only valid as a generation request.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
	DifficultyMixed  = "mixed"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Assistant message types.
const (
	TypeQuestion       = "question"
	TypeResponse       = "response"
	TypeFeedback       = "feedback"
	TypeAnswerFeedback = "answer_feedback"
	TypeComplete       = "complete"
)

// Session statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// ResumeData is a parsed resume. It is replaced as a whole, never edited.
type ResumeData struct {
	ID              string            `json:"id"`
	Filename        string            `json:"filename"`
	RawText         string            `json:"rawText"`
	Skills          []string          `json:"skills"`
	ExperienceYears *int              `json:"experienceYears"`
	Sections        map[string]string `json:"sections"`
	UploadedAt      time.Time         `json:"uploadedAt"`
}

type InterviewQuestion struct {
	Question       string   `json:"question"`
	Category       string   `json:"category"`
	Difficulty     string   `json:"difficulty"`
	SkillFocus     string   `json:"skillFocus"`
	ExpectedTopics []string `json:"expectedTopics"`
}

type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type,omitempty"`
}

// AnswerRecord is the answer given to the question at QuestionIndex.
// A session holds at most one record per index.
type AnswerRecord struct {
	QuestionIndex int               `json:"questionIndex"`
	Question      InterviewQuestion `json:"question"`
	Answer        string            `json:"answer"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Session is one interview attempt. Questions is fixed at creation;
// CurrentQuestionIndex ranges over [0, len(Questions)], where
// len(Questions) means every question has been passed.
type Session struct {
	ID                   string              `json:"id"`
	ResumeID             string              `json:"resumeId"`
	Questions            []InterviewQuestion `json:"questions"`
	CurrentQuestionIndex int                 `json:"currentQuestionIndex"`
	Messages             []ChatMessage       `json:"messages"`
	Answers              []AnswerRecord      `json:"answers"`
	Mode                 string              `json:"mode"`
	CreatedAt            time.Time           `json:"createdAt"`
	Status               string              `json:"status"`

	// Evaluation is set by the first successful summary; RecordID once
	// that summary has been archived to history.
	Evaluation *SessionEvaluation `json:"evaluation,omitempty"`
	RecordID   string             `json:"recordId,omitempty"`
}

// QAPair is an answered question handed to session evaluation.
type QAPair struct {
	Question InterviewQuestion
	Answer   string
}

// Progress summarizes how far a session has advanced.
type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
	Answered   int `json:"answered"`
}

// CurrentQuestion returns the question at the current index, or nil once
// the index has reached len(Questions).
func (s *Session) CurrentQuestion() *InterviewQuestion {
	if s == nil || s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return nil
	}
	q := s.Questions[s.CurrentQuestionIndex]
	return &q
}

func (s *Session) Progress() Progress {
	if s == nil || len(s.Questions) == 0 {
		return Progress{}
	}
	return Progress{
		Current:    s.CurrentQuestionIndex + 1,
		Total:      len(s.Questions),
		Percentage: roundPercent(len(s.Answers), len(s.Questions)),
		Answered:   len(s.Answers),
	}
}

// upsertAnswer records answer for the current question. An existing record
// for the same index is updated in place.
func (s *Session) upsertAnswer(q InterviewQuestion, answer string, at time.Time) {
	for i := range s.Answers {
		if s.Answers[i].QuestionIndex == s.CurrentQuestionIndex {
			s.Answers[i].Answer = answer
			s.Answers[i].Timestamp = at
			return
		}
	}
	s.Answers = append(s.Answers, AnswerRecord{
		QuestionIndex: s.CurrentQuestionIndex,
		Question:      q,
		Answer:        answer,
		Timestamp:     at,
	})
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Questions = make([]InterviewQuestion, len(s.Questions))
	for i, q := range s.Questions {
		c.Questions[i] = q.clone()
	}
	c.Messages = make([]ChatMessage, len(s.Messages))
	copy(c.Messages, s.Messages)
	c.Answers = make([]AnswerRecord, len(s.Answers))
	for i, a := range s.Answers {
		a.Question = a.Question.clone()
		c.Answers[i] = a
	}
	if s.Evaluation != nil {
		e := *s.Evaluation
		c.Evaluation = &e
	}
	return &c
}

func (q InterviewQuestion) clone() InterviewQuestion {
	topics := make([]string, len(q.ExpectedTopics))
	copy(topics, q.ExpectedTopics)
	q.ExpectedTopics = topics
	return q
}

// Pairs returns the answered questions in recording order.
func (s *Session) Pairs() []QAPair {
	pairs := make([]QAPair, len(s.Answers))
	for i, a := range s.Answers {
		pairs[i] = QAPair{Question: a.Question, Answer: a.Answer}
	}
	return pairs
}

func roundPercent(part, total int) int {
	if total == 0 {
		return 0
	}
	return (200*part + total) / (2 * total)
}
