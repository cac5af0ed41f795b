package interview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/mockmate/internal/intent"
)

// Gateway is the LLM backend used to generate, chat and evaluate.
type Gateway interface {
	GenerateQuestions(ctx context.Context, resume ResumeData, questionType string, count int, difficulty string) ([]InterviewQuestion, error)
	Chat(ctx context.Context, history []ChatMessage, resume ResumeData, current *InterviewQuestion) (string, error)
	EvaluateAnswer(ctx context.Context, question InterviewQuestion, answer string, resume ResumeData) (EvaluationResult, error)
	GetSessionEvaluation(ctx context.Context, pairs []QAPair, resume ResumeData) (SessionEvaluation, error)
}

// SessionStore holds one user's current session and resumes. Get returns a
// copy; Save must be durable before it returns.
type SessionStore interface {
	Create(resume ResumeData, questions []InterviewQuestion, mode string) *Session
	Get() *Session
	Save(ctx context.Context, s *Session) error
	Clear(ctx context.Context, keepResume bool) error
	SaveResume(ctx context.Context, r ResumeData) error
	Resume(ctx context.Context, id string) (*ResumeData, error)
	CurrentResume() *ResumeData
}

// Archiver stores a summarized session, typically in history, and returns
// the id it was stored under.
type Archiver func(ctx context.Context, s *Session, eval SessionEvaluation) (string, error)

// StartInput configures a new session. Zero values select the defaults
// (all question types, 10 questions, medium difficulty).
type StartInput struct {
	Resume       ResumeData
	QuestionType string
	NumQuestions int
	Difficulty   string
}

// Snapshot is what subscribers see after each persisted change. Session is
// nil once the session has been cleared.
type Snapshot struct {
	Session  *Session
	Progress Progress
}

// Orchestrator runs the interview state machine. Mutating operations are
// serialized; a call made while another is in flight fails with ErrBusy
// instead of waiting.
type Orchestrator struct {
	store   SessionStore
	gateway Gateway
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	busy atomic.Bool

	subMu  sync.Mutex
	subs   map[int]func(Snapshot)
	nextID int
}

func New(store SessionStore, gateway Gateway, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:   store,
		gateway: gateway,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		subs:    make(map[int]func(Snapshot)),
	}
}

func (o *Orchestrator) acquire() bool {
	if !o.mu.TryLock() {
		return false
	}
	o.busy.Store(true)
	return true
}

func (o *Orchestrator) release() {
	o.busy.Store(false)
	o.mu.Unlock()
}

// Busy reports whether an operation is in flight.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// Session returns a copy of the current session, or nil.
func (o *Orchestrator) Session() *Session {
	return o.store.Get()
}

func (o *Orchestrator) CurrentQuestion() *InterviewQuestion {
	return o.store.Get().CurrentQuestion()
}

func (o *Orchestrator) Progress() Progress {
	return o.store.Get().Progress()
}

// SaveResume stores r and makes it the current resume.
func (o *Orchestrator) SaveResume(ctx context.Context, r ResumeData) error {
	return o.store.SaveResume(ctx, r)
}

// Resume returns the stored resume with id, or nil.
func (o *Orchestrator) Resume(ctx context.Context, id string) (*ResumeData, error) {
	return o.store.Resume(ctx, id)
}

func (o *Orchestrator) CurrentResume() *ResumeData {
	return o.store.CurrentResume()
}

// Subscribe registers fn to be called after every persisted mutation.
// The returned func removes the subscription.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	o.subMu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.subMu.Unlock()

	return func() {
		o.subMu.Lock()
		delete(o.subs, id)
		o.subMu.Unlock()
	}
}

func (o *Orchestrator) notify(s *Session) {
	o.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.subMu.Unlock()

	for _, fn := range fns {
		fn(Snapshot{Session: s.Clone(), Progress: s.Progress()})
	}
}

func (o *Orchestrator) save(ctx context.Context, s *Session) error {
	if err := o.store.Save(ctx, s); err != nil {
		return err
	}
	o.notify(s)
	return nil
}

// Start generates questions for in.Resume and opens a new session at the
// first question. A completed current session does not block a new start.
func (o *Orchestrator) Start(ctx context.Context, in StartInput) (*Session, error) {
	if !o.acquire() {
		return nil, ErrBusy
	}
	defer o.release()

	if cur := o.store.Get(); cur != nil && cur.Status == StatusActive {
		return nil, ErrSessionActive
	}

	if in.QuestionType == "" {
		in.QuestionType = "all"
	}
	if in.NumQuestions <= 0 {
		in.NumQuestions = 10
	}
	if in.Difficulty == "" {
		in.Difficulty = DifficultyMedium
	}
	resume := in.Resume
	if resume.ID == "" {
		resume.ID = uuid.NewString()
	}
	if resume.UploadedAt.IsZero() {
		resume.UploadedAt = o.now()
	}

	questions, err := o.gateway.GenerateQuestions(ctx, resume, in.QuestionType, in.NumQuestions, in.Difficulty)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrEmptyQuestionSet
	}

	if err := o.store.SaveResume(ctx, resume); err != nil {
		return nil, err
	}

	s := o.store.Create(resume, questions, in.QuestionType)
	s.Messages = append(s.Messages, ChatMessage{
		Role:      RoleAssistant,
		Content:   welcomeMessage(questions),
		Timestamp: o.now(),
		Type:      TypeQuestion,
	})
	if err := o.save(ctx, s); err != nil {
		return nil, err
	}

	o.logger.Info("interview started",
		"session_id", s.ID,
		"questions", len(questions),
		"mode", in.QuestionType,
		"difficulty", in.Difficulty,
	)
	return s.Clone(), nil
}

// Submit handles one user utterance and returns the assistant reply.
//
// The user message is persisted before any LLM call. If the call fails the
// error is returned as is and the session stays as it was right after that
// append: no answer record, no index change, no reply.
func (o *Orchestrator) Submit(ctx context.Context, utterance string) (ChatMessage, error) {
	if !o.acquire() {
		return ChatMessage{}, ErrBusy
	}
	defer o.release()

	cur := o.store.Get()
	if cur == nil {
		return ChatMessage{}, ErrNoActiveSession
	}

	cur.Messages = append(cur.Messages, ChatMessage{
		Role:      RoleUser,
		Content:   utterance,
		Timestamp: o.now(),
	})
	if err := o.save(ctx, cur); err != nil {
		return ChatMessage{}, err
	}

	s := cur.Clone()
	in := intent.Classify(utterance)
	log := o.logger.With("session_id", s.ID, "intent", string(in), "question_index", s.CurrentQuestionIndex)

	content, typ, err := o.respond(ctx, s, in, utterance)
	if err != nil {
		log.Warn("submit failed", "error", err)
		return ChatMessage{}, err
	}

	reply := ChatMessage{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: o.now(),
		Type:      typ,
	}
	s.Messages = append(s.Messages, reply)
	if err := o.save(ctx, s); err != nil {
		return ChatMessage{}, err
	}

	log.Debug("submit handled", "reply_type", typ, "answered", len(s.Answers))
	return reply, nil
}

// respond mutates s according to the intent and returns the reply content
// and message type.
func (o *Orchestrator) respond(ctx context.Context, s *Session, in intent.Intent, utterance string) (string, string, error) {
	n := len(s.Questions)

	switch in {
	case intent.Next:
		if s.CurrentQuestionIndex < n-1 {
			s.CurrentQuestionIndex++
			return nextQuestionMessage(s.CurrentQuestionIndex+1, n, s.Questions[s.CurrentQuestionIndex]), TypeQuestion, nil
		}
		s.Status = StatusCompleted
		o.logger.Info("interview completed", "session_id", s.ID, "answered", len(s.Answers), "total", n)
		return completionMessage(len(s.Answers), n), TypeComplete, nil

	case intent.Feedback:
		if len(s.Answers) == 0 {
			return noAnswerFeedbackMessage, TypeResponse, nil
		}
		last := s.Answers[len(s.Answers)-1]
		resume, err := o.resumeFor(ctx, s)
		if err != nil {
			return "", "", err
		}
		eval, err := o.gateway.EvaluateAnswer(ctx, last.Question, last.Answer, resume)
		if err != nil {
			return "", "", err
		}
		return detailedEvaluation(eval, last), TypeFeedback, nil
	}

	// Answer, and Summary which has no branch of its own.
	q := s.CurrentQuestion()
	resume, err := o.resumeFor(ctx, s)
	if err != nil {
		return "", "", err
	}
	if q == nil {
		reply, err := o.gateway.Chat(ctx, s.Messages, resume, nil)
		if err != nil {
			return "", "", err
		}
		return reply, TypeResponse, nil
	}

	s.upsertAnswer(*q, utterance, o.now())
	eval, err := o.gateway.EvaluateAnswer(ctx, *q, utterance, resume)
	if err != nil {
		return "", "", err
	}
	return quickFeedback(eval, len(s.Answers), n), TypeAnswerFeedback, nil
}

// resumeFor loads the resume the session was started with. A resume that
// has since been deleted is treated as empty.
func (o *Orchestrator) resumeFor(ctx context.Context, s *Session) (ResumeData, error) {
	r, err := o.store.Resume(ctx, s.ResumeID)
	if err != nil {
		return ResumeData{}, err
	}
	if r == nil {
		o.logger.Warn("session resume not found", "session_id", s.ID, "resume_id", s.ResumeID)
		return ResumeData{ID: s.ResumeID}, nil
	}
	return *r, nil
}

// EndSession marks the current session completed. The session stays
// current until Clear.
func (o *Orchestrator) EndSession(ctx context.Context) (*Session, error) {
	if !o.acquire() {
		return nil, ErrBusy
	}
	defer o.release()

	s := o.store.Get()
	if s == nil {
		return nil, ErrNoActiveSession
	}
	s.Status = StatusCompleted
	if err := o.save(ctx, s); err != nil {
		return nil, err
	}
	o.logger.Info("interview ended", "session_id", s.ID, "answered", len(s.Answers), "total", len(s.Questions))
	return s.Clone(), nil
}

// Summarize evaluates every recorded answer of the current session and
// completes it. Without answers it returns a fixed result and makes no LLM
// call.
//
// The first evaluation is kept on the session; later calls return it
// without calling the gateway again. If archive is non-nil and the session
// has not been archived yet, it is called once and its id is kept as
// RecordID. An archive failure is returned wrapped in ErrArchive together
// with the evaluation, and the next call retries it.
func (o *Orchestrator) Summarize(ctx context.Context, archive Archiver) (SessionEvaluation, error) {
	if !o.acquire() {
		return SessionEvaluation{}, ErrBusy
	}
	defer o.release()

	s := o.store.Get()
	if s == nil {
		return SessionEvaluation{}, ErrNoActiveSession
	}

	if s.Evaluation == nil {
		eval, err := o.evaluate(ctx, s)
		if err != nil {
			return SessionEvaluation{}, err
		}
		s.Evaluation = &eval
		if s.Status == StatusActive {
			s.Status = StatusCompleted
		}
		if err := o.save(ctx, s); err != nil {
			return SessionEvaluation{}, err
		}
		o.logger.Info("interview summarized", "session_id", s.ID, "score", eval.OverallScore, "grade", eval.Grade)
	}
	eval := *s.Evaluation

	if archive == nil || s.RecordID != "" {
		return eval, nil
	}
	id, err := archive(ctx, s.Clone(), eval)
	if err != nil {
		return eval, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	s.RecordID = id
	if err := o.save(ctx, s); err != nil {
		return eval, err
	}
	return eval, nil
}

func (o *Orchestrator) evaluate(ctx context.Context, s *Session) (SessionEvaluation, error) {
	total := len(s.Questions)
	if len(s.Answers) == 0 {
		return noAnswersEvaluation(total), nil
	}

	resume, err := o.resumeFor(ctx, s)
	if err != nil {
		return SessionEvaluation{}, err
	}
	eval, err := o.gateway.GetSessionEvaluation(ctx, s.Pairs(), resume)
	if err != nil {
		return SessionEvaluation{}, err
	}

	eval.QuestionsAnswered = len(s.Answers)
	eval.TotalQuestions = total
	eval.CompletionRate = roundPercent(len(s.Answers), total)
	return eval, nil
}

// Clear drops the current session and, unless keepResume is set, the
// current resume.
func (o *Orchestrator) Clear(ctx context.Context, keepResume bool) error {
	if !o.acquire() {
		return ErrBusy
	}
	defer o.release()

	if err := o.store.Clear(ctx, keepResume); err != nil {
		return err
	}
	o.notify(nil)
	return nil
}

func noAnswersEvaluation(total int) SessionEvaluation {
	e := SessionEvaluation{
		OverallScore: 0,
		Grade:        "N/A",
		Summary:      "No questions were answered during this session. Please start a new interview and answer the questions to receive an evaluation.",
		ImprovementAreas: []ImprovementArea{{
			Area:       "Participation",
			Priority:   "high",
			Suggestion: "Make sure to answer each question before ending the session",
		}},
		Recommendations: []string{
			"Start a new interview session",
			"Answer each question thoroughly before moving to the next",
			"Take your time to provide complete answers",
		},
		QuestionsAnswered: 0,
		TotalQuestions:    total,
	}
	e.Normalize()
	return e
}
