// Package gateway turns interview operations into LLM prompts and parses
// the replies into interview types.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kalambet/mockmate/internal/interview"
	"github.com/kalambet/mockmate/internal/llm"
	"github.com/kalambet/mockmate/internal/prompts"
)

// chatWindow is how many trailing messages Chat sends.
const chatWindow = 10

// Completer sends a transcript to a chat completion endpoint.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

type Gateway struct {
	client  Completer
	prompts *prompts.Manager
	logger  *slog.Logger
}

func New(client Completer, pm *prompts.Manager, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{client: client, prompts: pm, logger: logger}
}

// rawQuestion accepts both camelCase and snake_case field names.
type rawQuestion struct {
	Question            string   `json:"question"`
	Category            string   `json:"category"`
	Difficulty          string   `json:"difficulty"`
	SkillFocus          string   `json:"skillFocus"`
	SkillFocusSnake     string   `json:"skill_focus"`
	ExpectedTopics      []string `json:"expectedTopics"`
	ExpectedTopicsSnake []string `json:"expected_topics"`
}

func (r rawQuestion) toQuestion() interview.InterviewQuestion {
	q := interview.InterviewQuestion{
		Question:       r.Question,
		Category:       r.Category,
		Difficulty:     r.Difficulty,
		SkillFocus:     r.SkillFocus,
		ExpectedTopics: r.ExpectedTopics,
	}
	if q.Category == "" {
		q.Category = interview.CategoryGeneral
	}
	if q.Difficulty == "" {
		q.Difficulty = interview.DifficultyMedium
	}
	if q.SkillFocus == "" {
		q.SkillFocus = r.SkillFocusSnake
	}
	if q.ExpectedTopics == nil {
		q.ExpectedTopics = r.ExpectedTopicsSnake
	}
	if q.ExpectedTopics == nil {
		q.ExpectedTopics = []string{}
	}
	return q
}

// GenerateQuestions asks for count questions tailored to resume. A reply
// that is not a JSON array is mined for question sentences instead.
func (g *Gateway) GenerateQuestions(ctx context.Context, resume interview.ResumeData, questionType string, count int, difficulty string) ([]interview.InterviewQuestion, error) {
	typeInstruction, ok := g.prompts.Variant(prompts.Questions, "type", questionType)
	if !ok {
		typeInstruction, _ = g.prompts.Variant(prompts.Questions, "type", "all")
	}
	difficultyInstruction, ok := g.prompts.Variant(prompts.Questions, "difficulty", difficulty)
	if !ok {
		difficultyInstruction, _ = g.prompts.Variant(prompts.Questions, "difficulty", interview.DifficultyMedium)
	}

	prompt, err := g.prompts.Render(prompts.Questions, map[string]any{
		"Count":                 count,
		"Skills":                resume.Skills,
		"Experience":            experience(resume),
		"Summary":               resume.Sections["summary"],
		"WorkExperience":        resume.Sections["experience"],
		"Education":             resume.Sections["education"],
		"Projects":              resume.Sections["projects"],
		"TypeInstruction":       typeInstruction,
		"DifficultyInstruction": difficultyInstruction,
	})
	if err != nil {
		return nil, err
	}

	reply, err := g.completeJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var raw []rawQuestion
	if err := json.Unmarshal([]byte(stripFences(reply)), &raw); err != nil {
		qs := extractQuestions(reply)
		g.logger.Warn("question reply is not a JSON array, extracted questions from text",
			"error", err, "extracted", len(qs), "reply", reply)
		return qs, nil
	}

	qs := make([]interview.InterviewQuestion, len(raw))
	for i, r := range raw {
		qs[i] = r.toQuestion()
	}
	return qs, nil
}

// Chat returns the assistant's free-form reply to the conversation.
func (g *Gateway) Chat(ctx context.Context, history []interview.ChatMessage, resume interview.ResumeData, current *interview.InterviewQuestion) (string, error) {
	system, err := g.prompts.Render(prompts.Chat, struct {
		Skills     []string
		Experience string
		Summary    string
		Question   *interview.InterviewQuestion
	}{resume.Skills, experience(resume), resume.Sections["summary"], current})
	if err != nil {
		return "", err
	}

	if len(history) > chatWindow {
		history = history[len(history)-chatWindow:]
	}
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: "system", Content: system})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return g.client.Complete(ctx, msgs)
}

// EvaluateAnswer grades one answer. An unparseable reply yields the
// "Not Evaluated" result rather than an error.
func (g *Gateway) EvaluateAnswer(ctx context.Context, question interview.InterviewQuestion, answer string, resume interview.ResumeData) (interview.EvaluationResult, error) {
	prompt, err := g.prompts.Render(prompts.EvaluateAnswer, map[string]any{
		"Question": question,
		"Answer":   answer,
		"Skills":   resume.Skills,
	})
	if err != nil {
		return interview.EvaluationResult{}, err
	}

	reply, err := g.completeJSON(ctx, prompt)
	if err != nil {
		return interview.EvaluationResult{}, err
	}

	var eval interview.EvaluationResult
	if err := json.Unmarshal([]byte(stripFences(reply)), &eval); err != nil {
		g.logger.Warn("answer evaluation reply is not valid JSON", "error", &MalformedResponseError{Op: "evaluate answer", Raw: reply, Err: err})
		return notEvaluated(), nil
	}
	eval.Normalize()
	return eval, nil
}

// GetSessionEvaluation grades every answered pair at once. With no pairs
// it returns a zero result without calling the model.
func (g *Gateway) GetSessionEvaluation(ctx context.Context, pairs []interview.QAPair, resume interview.ResumeData) (interview.SessionEvaluation, error) {
	if len(pairs) == 0 {
		return emptySessionEvaluation(), nil
	}

	prompt, err := g.prompts.Render(prompts.SessionEvaluation, map[string]any{
		"Skills":     resume.Skills,
		"Experience": experience(resume),
		"Pairs":      pairs,
	})
	if err != nil {
		return interview.SessionEvaluation{}, err
	}

	reply, err := g.completeJSON(ctx, prompt)
	if err != nil {
		return interview.SessionEvaluation{}, err
	}

	var eval interview.SessionEvaluation
	if err := json.Unmarshal([]byte(stripFences(reply)), &eval); err != nil {
		return interview.SessionEvaluation{}, &MalformedResponseError{Op: "session evaluation", Raw: reply, Err: err}
	}
	eval.Normalize()
	return eval, nil
}

func (g *Gateway) completeJSON(ctx context.Context, prompt string) (string, error) {
	system, err := g.prompts.Render(prompts.System, nil)
	if err != nil {
		return "", err
	}
	return g.client.Complete(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	})
}

func experience(r interview.ResumeData) string {
	if r.ExperienceYears == nil || *r.ExperienceYears == 0 {
		return "Not specified"
	}
	return strconv.Itoa(*r.ExperienceYears)
}

// stripFences removes a Markdown code fence around a JSON reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func notEvaluated() interview.EvaluationResult {
	e := interview.EvaluationResult{
		OverallScore: 0,
		IsCorrect:    false,
		Strengths:    []string{},
		Weaknesses:   []string{"Could not evaluate answer"},
		Suggestions:  []string{"Please try again with a clearer answer"},
		Verdict:      "Not Evaluated",
	}
	e.Normalize()
	return e
}

func emptySessionEvaluation() interview.SessionEvaluation {
	e := interview.SessionEvaluation{
		OverallScore:    0,
		Grade:           "N/A",
		Summary:         "No questions were answered.",
		Recommendations: []string{"Answer questions to receive evaluation"},
	}
	e.Normalize()
	return e
}
