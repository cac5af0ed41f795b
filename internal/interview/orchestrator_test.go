package interview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory SessionStore.
type memStore struct {
	mu      sync.Mutex
	current *Session
	resumes map[string]ResumeData
	resume  *ResumeData
	saves   int
}

func newMemStore() *memStore {
	return &memStore{resumes: map[string]ResumeData{}}
}

func (m *memStore) Create(resume ResumeData, questions []InterviewQuestion, mode string) *Session {
	return &Session{
		ID:        "s-1",
		ResumeID:  resume.ID,
		Questions: questions,
		Messages:  []ChatMessage{},
		Answers:   []AnswerRecord{},
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
		Status:    StatusActive,
	}
}

func (m *memStore) Get() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

func (m *memStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.current = s.Clone()
	return nil
}

func (m *memStore) Clear(_ context.Context, keepResume bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}

func (m *memStore) SaveResume(_ context.Context, r ResumeData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes[r.ID] = r
	m.resume = &r
	return nil
}

func (m *memStore) CurrentResume() *ResumeData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resume
}

func (m *memStore) Resume(_ context.Context, id string) (*ResumeData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resumes[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

type generateCall struct {
	questionType string
	count        int
	difficulty   string
}

// fakeGateway returns canned results and counts calls.
type fakeGateway struct {
	mu sync.Mutex

	questions []InterviewQuestion
	eval      EvaluationResult
	session   SessionEvaluation
	chat      string
	err       error

	// block, when set, stalls EvaluateAnswer until it is closed.
	block   chan struct{}
	entered chan struct{}

	generate    []generateCall
	evaluated   []string
	chats       int
	sessionEval [][]QAPair
	lastResume  ResumeData
}

func (f *fakeGateway) GenerateQuestions(_ context.Context, resume ResumeData, questionType string, count int, difficulty string) ([]InterviewQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generate = append(f.generate, generateCall{questionType, count, difficulty})
	f.lastResume = resume
	if f.err != nil {
		return nil, f.err
	}
	return f.questions, nil
}

func (f *fakeGateway) Chat(_ context.Context, _ []ChatMessage, _ ResumeData, _ *InterviewQuestion) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats++
	return f.chat, f.err
}

func (f *fakeGateway) EvaluateAnswer(_ context.Context, _ InterviewQuestion, answer string, resume ResumeData) (EvaluationResult, error) {
	if f.block != nil {
		close(f.entered)
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, answer)
	f.lastResume = resume
	if f.err != nil {
		return EvaluationResult{}, f.err
	}
	return f.eval, nil
}

func (f *fakeGateway) GetSessionEvaluation(_ context.Context, pairs []QAPair, _ ResumeData) (SessionEvaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionEval = append(f.sessionEval, pairs)
	if f.err != nil {
		return SessionEvaluation{}, f.err
	}
	return f.session, nil
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.generate) + len(f.evaluated) + f.chats + len(f.sessionEval)
}

func makeQuestions(n int) []InterviewQuestion {
	qs := make([]InterviewQuestion, n)
	for i := range qs {
		qs[i] = InterviewQuestion{
			Question:       "Question text " + string(rune('A'+i)),
			Category:       CategoryTechnical,
			Difficulty:     DifficultyEasy,
			ExpectedTopics: []string{},
		}
	}
	return qs
}

func goodEval() EvaluationResult {
	return EvaluationResult{
		OverallScore: 7,
		IsCorrect:    true,
		Strengths:    []string{"Clear structure"},
		Weaknesses:   []string{"Needs an example"},
		Suggestions:  []string{"Mention trade-offs"},
		Verdict:      "Good",
	}
}

func setup(t *testing.T, n int) (*Orchestrator, *memStore, *fakeGateway) {
	t.Helper()
	store := newMemStore()
	gw := &fakeGateway{questions: makeQuestions(n), eval: goodEval(), chat: "Happy to help."}
	return New(store, gw, nil), store, gw
}

func startSession(t *testing.T, o *Orchestrator, n int) *Session {
	t.Helper()
	s, err := o.Start(context.Background(), StartInput{
		Resume:       ResumeData{ID: "r-1", Skills: []string{"Go"}},
		QuestionType: "technical",
		NumQuestions: n,
		Difficulty:   DifficultyEasy,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func TestStart(t *testing.T) {
	o, store, gw := setup(t, 5)

	s := startSession(t, o, 5)

	if s.Status != StatusActive || s.CurrentQuestionIndex != 0 || s.Mode != "technical" {
		t.Errorf("session = %+v", s)
	}
	if len(s.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(s.Messages))
	}
	welcome := s.Messages[0]
	if welcome.Role != RoleAssistant || welcome.Type != TypeQuestion {
		t.Errorf("welcome role=%q type=%q", welcome.Role, welcome.Type)
	}
	if !strings.Contains(welcome.Content, "5 personalized questions") {
		t.Errorf("welcome does not announce 5 questions: %q", welcome.Content)
	}
	if !strings.Contains(welcome.Content, "**Question 1 of 5**") || !strings.Contains(welcome.Content, "Question text A") {
		t.Errorf("welcome does not show the first question: %q", welcome.Content)
	}

	want := generateCall{"technical", 5, DifficultyEasy}
	if len(gw.generate) != 1 || gw.generate[0] != want {
		t.Errorf("generate calls = %+v, want %+v", gw.generate, want)
	}
	if r, _ := store.Resume(context.Background(), "r-1"); r == nil {
		t.Error("resume not saved")
	}
	if got := o.Progress(); got != (Progress{Current: 1, Total: 5, Percentage: 0, Answered: 0}) {
		t.Errorf("Progress = %+v", got)
	}
	if q := o.CurrentQuestion(); q == nil || q.Question != "Question text A" {
		t.Errorf("CurrentQuestion = %+v", q)
	}
}

func TestStart_Defaults(t *testing.T) {
	o, store, gw := setup(t, 2)

	if _, err := o.Start(context.Background(), StartInput{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	want := generateCall{"all", 10, DifficultyMedium}
	if gw.generate[0] != want {
		t.Errorf("generate call = %+v, want %+v", gw.generate[0], want)
	}
	if gw.lastResume.ID == "" || gw.lastResume.UploadedAt.IsZero() {
		t.Errorf("resume id/upload time not filled: %+v", gw.lastResume)
	}
	if store.Get().ResumeID != gw.lastResume.ID {
		t.Error("session not linked to the generated resume id")
	}
}

func TestStart_EmptyQuestionSet(t *testing.T) {
	o, store, _ := setup(t, 0)

	_, err := o.Start(context.Background(), StartInput{Resume: ResumeData{ID: "r-1"}})
	if !errors.Is(err, ErrEmptyQuestionSet) {
		t.Fatalf("err = %v, want ErrEmptyQuestionSet", err)
	}
	if store.Get() != nil || store.saves != 0 {
		t.Error("session created from an empty question set")
	}
}

func TestStart_GatewayError(t *testing.T) {
	o, store, gw := setup(t, 3)
	gw.err = errors.New("upstream down")

	if _, err := o.Start(context.Background(), StartInput{}); err == nil {
		t.Fatal("expected error")
	}
	if store.Get() != nil {
		t.Error("session created despite generation failure")
	}
}

func TestStart_SessionActive(t *testing.T) {
	o, _, _ := setup(t, 3)
	startSession(t, o, 3)

	if _, err := o.Start(context.Background(), StartInput{}); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("err = %v, want ErrSessionActive", err)
	}

	if _, err := o.EndSession(context.Background()); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if _, err := o.Start(context.Background(), StartInput{}); err != nil {
		t.Errorf("Start after completion: %v", err)
	}
}

func TestSubmit_NoSession(t *testing.T) {
	o, _, _ := setup(t, 3)
	if _, err := o.Submit(context.Background(), "hello"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("err = %v, want ErrNoActiveSession", err)
	}
}

func TestSubmit_NextQuestion(t *testing.T) {
	o, store, gw := setup(t, 3)
	startSession(t, o, 3)
	before := gw.calls()

	reply, err := o.Submit(context.Background(), "next question please")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reply.Type != TypeQuestion || !strings.Contains(reply.Content, "Question 2 of 3") {
		t.Errorf("reply = %+v", reply)
	}
	if !strings.Contains(reply.Content, "Question text B") {
		t.Errorf("reply does not show question 2: %q", reply.Content)
	}
	if gw.calls() != before {
		t.Error("next made an LLM call")
	}

	s := store.Get()
	if s.CurrentQuestionIndex != 1 {
		t.Errorf("index = %d, want 1", s.CurrentQuestionIndex)
	}
	// welcome + user + reply
	if len(s.Messages) != 3 || s.Messages[1].Role != RoleUser || s.Messages[2].Content != reply.Content {
		t.Errorf("messages = %+v", s.Messages)
	}
}

func TestSubmit_NextAtLastQuestionCompletes(t *testing.T) {
	o, store, _ := setup(t, 3)
	startSession(t, o, 3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := o.Submit(ctx, "skip"); err != nil {
			t.Fatal(err)
		}
	}
	if store.Get().CurrentQuestionIndex != 2 {
		t.Fatalf("index = %d, want 2", store.Get().CurrentQuestionIndex)
	}

	reply, err := o.Submit(ctx, "next")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reply.Type != TypeComplete || !strings.Contains(reply.Content, "0 out of 3") {
		t.Errorf("reply = %+v", reply)
	}
	s := store.Get()
	if s.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", s.Status)
	}
	if s.CurrentQuestionIndex != 2 {
		t.Errorf("index moved past the last question: %d", s.CurrentQuestionIndex)
	}
}

func TestSubmit_Answer(t *testing.T) {
	o, store, gw := setup(t, 3)
	startSession(t, o, 3)

	reply, err := o.Submit(context.Background(), "A goroutine is a lightweight thread managed by the runtime.")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reply.Type != TypeAnswerFeedback {
		t.Errorf("type = %q", reply.Type)
	}
	for _, want := range []string{"✅ **Answer Recorded**", "**Score:** 7/10", "**Verdict:** Good", "**Good:** Clear structure", "**Improve:** Needs an example", "(1/3 answered)"} {
		if !strings.Contains(reply.Content, want) {
			t.Errorf("reply missing %q:\n%s", want, reply.Content)
		}
	}

	s := store.Get()
	if len(s.Answers) != 1 {
		t.Fatalf("answers = %d, want 1", len(s.Answers))
	}
	a := s.Answers[0]
	if a.QuestionIndex != 0 || a.Question.Question != "Question text A" || a.Answer != "A goroutine is a lightweight thread managed by the runtime." {
		t.Errorf("answer = %+v", a)
	}
	if len(gw.evaluated) != 1 {
		t.Errorf("evaluate calls = %d", len(gw.evaluated))
	}
	if gw.lastResume.ID != "r-1" || gw.lastResume.Skills[0] != "Go" {
		t.Errorf("evaluation used resume %+v", gw.lastResume)
	}
	if got := o.Progress(); got.Answered != 1 || got.Percentage != 33 {
		t.Errorf("Progress = %+v", got)
	}
}

func TestSubmit_AnswerReplacedInPlace(t *testing.T) {
	o, store, _ := setup(t, 3)
	startSession(t, o, 3)
	ctx := context.Background()

	if _, err := o.Submit(ctx, "first attempt at an answer"); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Submit(ctx, "skip"); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Submit(ctx, "answer to the second one"); err != nil {
		t.Fatal(err)
	}

	if _, err := o.Submit(ctx, "better answer to the second one"); err != nil {
		t.Fatal(err)
	}

	s := store.Get()
	if len(s.Answers) != 2 {
		t.Fatalf("answers = %d, want 2", len(s.Answers))
	}
	if s.Answers[0].QuestionIndex != 0 || s.Answers[1].QuestionIndex != 1 {
		t.Errorf("answer order = %d,%d", s.Answers[0].QuestionIndex, s.Answers[1].QuestionIndex)
	}
	if s.Answers[1].Answer != "better answer to the second one" {
		t.Errorf("answer not replaced: %q", s.Answers[1].Answer)
	}
}

func TestSubmit_LowScoreQuickFeedback(t *testing.T) {
	o, _, gw := setup(t, 2)
	gw.eval = EvaluationResult{OverallScore: 3.5, Weaknesses: []string{"Off topic"}}
	startSession(t, o, 2)

	reply, err := o.Submit(context.Background(), "bananas")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply.Content, "⚠️ **Answer Recorded**") || !strings.Contains(reply.Content, "3.5/10") {
		t.Errorf("reply = %q", reply.Content)
	}
	if !strings.Contains(reply.Content, "**Verdict:** Not evaluated") {
		t.Errorf("missing default verdict: %q", reply.Content)
	}
	if strings.Contains(reply.Content, "**Good:**") {
		t.Error("Good line shown without strengths")
	}
}

func TestSubmit_FeedbackWithoutAnswers(t *testing.T) {
	o, _, gw := setup(t, 3)
	startSession(t, o, 3)
	before := gw.calls()

	reply, err := o.Submit(context.Background(), "can I get some feedback?")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Content != noAnswerFeedbackMessage || reply.Type != TypeResponse {
		t.Errorf("reply = %+v", reply)
	}
	if gw.calls() != before {
		t.Error("feedback without answers made an LLM call")
	}
}

func TestSubmit_Feedback(t *testing.T) {
	o, _, gw := setup(t, 3)
	gw.eval.CategoryScores = &CategoryScores{Relevance: 8, Depth: 6, Clarity: 7, Structure: 5}
	startSession(t, o, 3)
	ctx := context.Background()

	if _, err := o.Submit(ctx, "channels pass values between goroutines"); err != nil {
		t.Fatal(err)
	}
	reply, err := o.Submit(ctx, "how did I do?")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Type != TypeFeedback {
		t.Errorf("type = %q", reply.Type)
	}
	for _, want := range []string{"Detailed Answer Evaluation", "**Question:** Question text A", "**Your Answer:** channels pass values", "| 8/10 | 6/10 | 7/10 | 5/10 |", "- Mention trade-offs"} {
		if !strings.Contains(reply.Content, want) {
			t.Errorf("reply missing %q:\n%s", want, reply.Content)
		}
	}
	if len(gw.evaluated) != 2 || gw.evaluated[1] != "channels pass values between goroutines" {
		t.Errorf("evaluated = %v", gw.evaluated)
	}
}

func TestSubmit_SummaryIntentIsAnswered(t *testing.T) {
	o, store, _ := setup(t, 2)
	startSession(t, o, 2)

	reply, err := o.Submit(context.Background(), "show summary")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Type != TypeAnswerFeedback || len(store.Get().Answers) != 1 {
		t.Errorf("summary intent not handled as an answer: %+v", reply)
	}
}

func TestSubmit_ChatWhenNoCurrentQuestion(t *testing.T) {
	o, store, gw := setup(t, 2)
	startSession(t, o, 2)

	s := store.Get()
	s.CurrentQuestionIndex = len(s.Questions)
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	reply, err := o.Submit(context.Background(), "what should I study this week")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Type != TypeResponse || reply.Content != "Happy to help." || gw.chats != 1 {
		t.Errorf("reply = %+v, chats = %d", reply, gw.chats)
	}
	if len(store.Get().Answers) != 0 {
		t.Error("answer recorded without a current question")
	}
}

func TestSubmit_GatewayFailureKeepsUserMessage(t *testing.T) {
	o, store, gw := setup(t, 3)
	startSession(t, o, 3)
	gw.err = errors.New("503 from upstream")

	if _, err := o.Submit(context.Background(), "my answer"); err == nil {
		t.Fatal("expected error")
	}

	s := store.Get()
	if len(s.Answers) != 0 {
		t.Errorf("answer recorded despite failure: %+v", s.Answers)
	}
	if len(s.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 (welcome + user)", len(s.Messages))
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role != RoleUser || last.Content != "my answer" {
		t.Errorf("last message = %+v", last)
	}
	if s.CurrentQuestionIndex != 0 {
		t.Errorf("index = %d", s.CurrentQuestionIndex)
	}
}

func TestSubmit_MissingResume(t *testing.T) {
	o, store, gw := setup(t, 2)
	startSession(t, o, 2)
	delete(store.resumes, "r-1")

	if _, err := o.Submit(context.Background(), "an answer"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if gw.lastResume.ID != "r-1" || gw.lastResume.Skills != nil {
		t.Errorf("expected an empty resume, got %+v", gw.lastResume)
	}
}

func TestBusy(t *testing.T) {
	o, _, gw := setup(t, 3)
	startSession(t, o, 3)
	gw.block = make(chan struct{})
	gw.entered = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), "slow answer")
		done <- err
	}()

	<-gw.entered
	if !o.Busy() {
		t.Error("Busy() = false during a submit")
	}
	if _, err := o.Submit(context.Background(), "next"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Submit err = %v, want ErrBusy", err)
	}
	if _, err := o.Summarize(context.Background(), nil); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Summarize err = %v, want ErrBusy", err)
	}

	close(gw.block)
	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if o.Busy() {
		t.Error("Busy() = true after completion")
	}
}

func TestEndSession(t *testing.T) {
	o, store, _ := setup(t, 3)
	if _, err := o.EndSession(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("err = %v, want ErrNoActiveSession", err)
	}

	startSession(t, o, 3)
	s, err := o.EndSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != StatusCompleted || store.Get().Status != StatusCompleted {
		t.Errorf("status = %q", s.Status)
	}
}

func TestSummarize_NoAnswers(t *testing.T) {
	o, _, gw := setup(t, 4)
	startSession(t, o, 4)
	before := gw.calls()

	eval, err := o.Summarize(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if gw.calls() != before {
		t.Error("summary without answers made an LLM call")
	}
	if eval.OverallScore != 0 || eval.Grade != "N/A" || eval.ReadyForInterview {
		t.Errorf("eval = %+v", eval)
	}
	if eval.TotalQuestions != 4 || eval.QuestionsAnswered != 0 || eval.CompletionRate != 0 {
		t.Errorf("counts = %d/%d %d%%", eval.QuestionsAnswered, eval.TotalQuestions, eval.CompletionRate)
	}
	if len(eval.ImprovementAreas) != 1 || eval.ImprovementAreas[0].Area != "Participation" {
		t.Errorf("improvement areas = %+v", eval.ImprovementAreas)
	}
	if len(eval.Recommendations) != 3 {
		t.Errorf("recommendations = %v", eval.Recommendations)
	}
}

func TestSummarize(t *testing.T) {
	o, _, gw := setup(t, 3)
	gw.session = SessionEvaluation{OverallScore: 65, Grade: "B"}
	gw.session.Normalize()
	startSession(t, o, 3)

	if _, err := o.Submit(context.Background(), "my only answer"); err != nil {
		t.Fatal(err)
	}

	eval, err := o.Summarize(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if eval.QuestionsAnswered != 1 || eval.TotalQuestions != 3 || eval.CompletionRate != 33 {
		t.Errorf("counts = %d/%d %d%%", eval.QuestionsAnswered, eval.TotalQuestions, eval.CompletionRate)
	}
	if !eval.ReadyForInterview || eval.Grade != "B" {
		t.Errorf("eval = %+v", eval)
	}
	if len(gw.sessionEval) != 1 || len(gw.sessionEval[0]) != 1 || gw.sessionEval[0][0].Answer != "my only answer" {
		t.Errorf("pairs = %+v", gw.sessionEval)
	}
}

func TestSummarize_Error(t *testing.T) {
	o, _, gw := setup(t, 2)
	startSession(t, o, 2)
	if _, err := o.Submit(context.Background(), "an answer"); err != nil {
		t.Fatal(err)
	}
	gw.err = errors.New("bad gateway")

	if _, err := o.Summarize(context.Background(), nil); err == nil {
		t.Error("expected error")
	}
}

func TestSummarize_CompletesAndKeepsEvaluation(t *testing.T) {
	o, store, gw := setup(t, 3)
	gw.session = SessionEvaluation{OverallScore: 80, Grade: "A"}
	startSession(t, o, 3)
	if _, err := o.Submit(context.Background(), "an answer worth grading"); err != nil {
		t.Fatal(err)
	}

	first, err := o.Summarize(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	cur := store.Get()
	if cur.Status != StatusCompleted {
		t.Errorf("status = %q, want completed after summary", cur.Status)
	}
	if cur.Evaluation == nil || cur.Evaluation.OverallScore != 80 {
		t.Fatalf("stored evaluation = %+v", cur.Evaluation)
	}

	gw.session = SessionEvaluation{OverallScore: 10, Grade: "F"}
	second, err := o.Summarize(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.OverallScore != first.OverallScore || len(gw.sessionEval) != 1 {
		t.Errorf("second summary = %v after %d gateway calls, want the stored result", second.OverallScore, len(gw.sessionEval))
	}
}

func TestSummarize_ArchivesOnce(t *testing.T) {
	o, store, gw := setup(t, 2)
	gw.session = SessionEvaluation{OverallScore: 70, Grade: "B"}
	startSession(t, o, 2)
	if _, err := o.Submit(context.Background(), "an answer"); err != nil {
		t.Fatal(err)
	}

	var archived []string
	archive := func(_ context.Context, s *Session, eval SessionEvaluation) (string, error) {
		archived = append(archived, s.ID)
		if s.Evaluation == nil || eval.OverallScore != 70 {
			t.Errorf("archived session without its evaluation: %+v", s.Evaluation)
		}
		return "rec-1", nil
	}

	for i := 0; i < 3; i++ {
		if _, err := o.Summarize(context.Background(), archive); err != nil {
			t.Fatalf("Summarize #%d: %v", i+1, err)
		}
	}
	if len(archived) != 1 {
		t.Errorf("archived %d times, want 1", len(archived))
	}
	if got := store.Get().RecordID; got != "rec-1" {
		t.Errorf("record id = %q, want rec-1", got)
	}
}

func TestSummarize_ArchiveFailureRetried(t *testing.T) {
	o, store, _ := setup(t, 2)
	startSession(t, o, 2)

	fail := true
	archive := func(context.Context, *Session, SessionEvaluation) (string, error) {
		if fail {
			return "", errors.New("disk full")
		}
		return "rec-2", nil
	}

	eval, err := o.Summarize(context.Background(), archive)
	if !errors.Is(err, ErrArchive) {
		t.Fatalf("err = %v, want ErrArchive", err)
	}
	if eval.Grade != "N/A" {
		t.Errorf("grade = %q, want the evaluation alongside the error", eval.Grade)
	}
	if store.Get().RecordID != "" {
		t.Error("record id set after a failed archive")
	}

	fail = false
	if _, err := o.Summarize(context.Background(), archive); err != nil {
		t.Fatal(err)
	}
	if got := store.Get().RecordID; got != "rec-2" {
		t.Errorf("record id = %q, want rec-2", got)
	}
}

func TestUsers_SeparateSessions(t *testing.T) {
	stores := map[string]*memStore{}
	open := func(_ context.Context, userID string) (SessionStore, error) {
		st := newMemStore()
		stores[userID] = st
		return st, nil
	}
	gw := &fakeGateway{questions: makeQuestions(2), eval: goodEval()}
	users := NewUsers(open, gw, nil)

	alice, err := users.For(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := users.For(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	if again, _ := users.For(context.Background(), "alice"); again != alice {
		t.Error("For returned a different orchestrator for the same user")
	}

	startSession(t, alice, 2)
	if bob.Session() != nil {
		t.Error("bob sees alice's session")
	}
	if _, err := bob.Submit(context.Background(), "hello"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("bob Submit err = %v, want ErrNoActiveSession", err)
	}
	startSession(t, bob, 2)
	if stores["alice"].Get().ID == "" || stores["bob"].Get() == nil {
		t.Error("each user should have a current session")
	}
}

func TestUsers_OpenError(t *testing.T) {
	open := func(context.Context, string) (SessionStore, error) {
		return nil, errors.New("store unavailable")
	}
	users := NewUsers(open, &fakeGateway{}, nil)
	if _, err := users.For(context.Background(), "alice"); err == nil {
		t.Error("expected error from a failing store")
	}
}

func TestSubscribe(t *testing.T) {
	o, _, _ := setup(t, 2)

	var mu sync.Mutex
	var got []Snapshot
	unsubscribe := o.Subscribe(func(s Snapshot) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	startSession(t, o, 2)
	if _, err := o.Submit(context.Background(), "an answer"); err != nil {
		t.Fatal(err)
	}

	// Start, then user message and reply.
	if len(got) != 3 {
		t.Fatalf("notifications = %d, want 3", len(got))
	}
	if got[1].Session.Messages[len(got[1].Session.Messages)-1].Role != RoleUser {
		t.Error("second notification should follow the user message save")
	}
	if got[2].Progress.Answered != 1 {
		t.Errorf("progress = %+v", got[2].Progress)
	}

	if err := o.Clear(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[3].Session != nil {
		t.Errorf("Clear notification = %+v", got[len(got)-1])
	}

	unsubscribe()
	startSession(t, o, 2)
	if len(got) != 4 {
		t.Errorf("notified after unsubscribe: %d", len(got))
	}
}
