package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/kalambet/mockmate/internal/history"
	"github.com/kalambet/mockmate/internal/interview"
	"github.com/kalambet/mockmate/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

const maxNumQuestions = 50

// Defaults fill start requests that leave a setting out.
type Defaults struct {
	QuestionType string
	NumQuestions int
	Difficulty   string
	UserID       string
}

type AppDeps struct {
	Interviews     *interview.Users
	History        *history.Recorder
	Token          string
	AllowedOrigins []string
	Defaults       Defaults
	Logger         *slog.Logger
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", UserIDHeader},
		}))
	}
	r.Use(middleware.RequestID, middleware.Logger, middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Use(UserID(deps.Defaults.UserID))

		r.Post("/resume", handlePostResume(deps))
		r.Get("/resume", handleGetResume(deps))

		r.Post("/interview", handleStartInterview(deps))
		r.Get("/interview", handleGetInterview(deps))
		r.Delete("/interview", handleClearInterview(deps))
		r.Post("/interview/messages", handleSendMessage(deps))
		r.Post("/interview/end", handleEndInterview(deps))
		r.Post("/interview/summary", handleSummary(deps))

		r.Get("/history", handleListHistory(deps))
		r.Delete("/history", handleClearHistory(deps))
		r.Get("/history/{id}", handleGetHistory(deps))
		r.Delete("/history/{id}", handleDeleteHistory(deps))
		r.Get("/stats", handleStats(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// orchestratorFor returns the orchestrator of the request's user. On
// failure it writes the error response and returns nil.
func orchestratorFor(w http.ResponseWriter, r *http.Request, deps AppDeps) *interview.Orchestrator {
	o, err := deps.Interviews.For(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to load sessions: %v", err)
		return nil
	}
	return o
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// completeResume fills the id and upload time of a posted resume.
func completeResume(res *interview.ResumeData) {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.UploadedAt.IsZero() {
		res.UploadedAt = time.Now().UTC()
	}
	if res.Skills == nil {
		res.Skills = []string{}
	}
}

func validateResume(res interview.ResumeData) error {
	if strings.TrimSpace(res.RawText) == "" && len(res.Skills) == 0 {
		return errors.New("resume must include rawText or skills")
	}
	return nil
}

func handlePostResume(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var res interview.ResumeData
		if !decodeBody(w, r, &res) {
			return
		}
		if err := validateResume(res); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		completeResume(&res)

		o := orchestratorFor(w, r, deps)
		if o == nil {
			return
		}
		if err := o.SaveResume(r.Context(), res); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save resume: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

func handleGetResume(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o := orchestratorFor(w, r, deps)
		if o == nil {
			return
		}
		res := o.CurrentResume()
		if res == nil {
			httpError(w, http.StatusNotFound, "not_found", "no resume loaded")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type StartRequest struct {
	ResumeID     string                `json:"resume_id"`
	Resume       *interview.ResumeData `json:"resume"`
	QuestionType string                `json:"question_type"`
	NumQuestions int                   `json:"num_questions"`
	Difficulty   string                `json:"difficulty"`
}

var (
	validQuestionTypes = map[string]bool{"all": true, interview.CategoryTechnical: true, interview.CategoryBehavioral: true, interview.CategorySituational: true}
	validDifficulties  = map[string]bool{interview.DifficultyEasy: true, interview.DifficultyMedium: true, interview.DifficultyHard: true, interview.DifficultyMixed: true}
)

// startInput resolves a start request against the defaults and the resumes
// stored for o's user. The returned status is only meaningful when err is
// non-nil.
func startInput(ctx context.Context, o *interview.Orchestrator, defaults Defaults, req StartRequest) (interview.StartInput, int, error) {
	in := interview.StartInput{
		QuestionType: req.QuestionType,
		NumQuestions: req.NumQuestions,
		Difficulty:   req.Difficulty,
	}
	if in.QuestionType == "" {
		in.QuestionType = defaults.QuestionType
	}
	if in.NumQuestions == 0 {
		in.NumQuestions = defaults.NumQuestions
	}
	if in.Difficulty == "" {
		in.Difficulty = defaults.Difficulty
	}

	if in.QuestionType != "" && !validQuestionTypes[in.QuestionType] {
		return in, http.StatusBadRequest, errors.New("question_type must be one of technical, behavioral, situational, all")
	}
	if in.Difficulty != "" && !validDifficulties[in.Difficulty] {
		return in, http.StatusBadRequest, errors.New("difficulty must be one of easy, medium, hard, mixed")
	}
	if in.NumQuestions < 0 || in.NumQuestions > maxNumQuestions {
		return in, http.StatusBadRequest, errors.New("num_questions must be between 1 and " + strconv.Itoa(maxNumQuestions))
	}

	switch {
	case req.Resume != nil:
		if err := validateResume(*req.Resume); err != nil {
			return in, http.StatusBadRequest, err
		}
		in.Resume = *req.Resume
		completeResume(&in.Resume)
	case req.ResumeID != "":
		res, err := o.Resume(ctx, req.ResumeID)
		if err != nil {
			return in, http.StatusInternalServerError, err
		}
		if res == nil {
			return in, http.StatusNotFound, errors.New("resume " + req.ResumeID + " not found")
		}
		in.Resume = *res
	default:
		res := o.CurrentResume()
		if res == nil {
			return in, http.StatusBadRequest, errors.New("no resume loaded: post one to /resume or include it in the request")
		}
		in.Resume = *res
	}
	return in, 0, nil
}

type sessionView struct {
	Session         *interview.Session           `json:"session"`
	Progress        interview.Progress           `json:"progress"`
	CurrentQuestion *interview.InterviewQuestion `json:"current_question"`
}

func viewOf(s *interview.Session) sessionView {
	return sessionView{Session: s, Progress: s.Progress(), CurrentQuestion: s.CurrentQuestion()}
}

func handleStartInterview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}

		o := orchestratorFor(w, r, deps)
		if o == nil {
			return
		}
		in, code, err := startInput(r.Context(), o, deps.Defaults, req)
		if err != nil {
			errType := "invalid_request_error"
			if code == http.StatusNotFound {
				errType = "not_found"
			}
			httpError(w, code, errType, "%v", err)
			return
		}

		s, err := o.Start(r.Context(), in)
		if err != nil {
			deps.Logger.Warn("starting interview failed", "error", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(s))
	}
}

func handleGetInterview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o := orchestratorFor(w, r, deps)
		if o == nil {
			return
		}
		s := o.Session()
		if s == nil {
			writeError(w, interview.ErrNoActiveSession)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(s))
	}
}

type MessageRequest struct {
	Content string `json:"content"`
}

type messageResponse struct {
	Message  interview.ChatMessage `json:"message"`
	Progress interview.Progress    `json:"progress"`
	Status   string                `json:"status"`
}

func handleSendMessage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MessageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		o := orchestratorFor(w, r, deps)
		if o == nil {
			return
		}
		msg, err := o.Submit(r.Context(), req.Content)
		if err != nil {
			writeError(w, err)
			return
		}

		resp := messageResponse{Message: msg}
		if s := o.Session(); s != nil {
			resp.Progress = s.Progress()
			resp.Status = s.Status
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleEndInterview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o := orchestratorFor(w, r, deps)
		if o == nil {
			return
		}
		s, err := o.EndSession(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(s))
	}
}

type summaryResponse struct {
	Evaluation interview.SessionEvaluation `json:"evaluation"`
	Record     *history.Record             `json:"record,omitempty"`
}

// archiveTo records summaries in userID's history.
func archiveTo(h *history.Recorder, userID string) interview.Archiver {
	return func(ctx context.Context, s *interview.Session, eval interview.SessionEvaluation) (string, error) {
		rec, err := h.Record(ctx, userID, s, eval)
		if err != nil {
			return "", err
		}
		return rec.ID, nil
	}
}

// handleSummary evaluates the caller's interview. Repeated calls return the
// same evaluation and history record.
func handleSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o := orchestratorFor(w, r, deps)
		if o == nil {
			return
		}
		userID := userIDFrom(r.Context())

		var archive interview.Archiver
		if r.URL.Query().Get("record") != "false" {
			archive = archiveTo(deps.History, userID)
		}

		eval, err := o.Summarize(r.Context(), archive)
		if errors.Is(err, interview.ErrArchive) {
			deps.Logger.Error("recording history failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "evaluation succeeded but saving history failed: %v", err)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}

		resp := summaryResponse{Evaluation: eval}
		if s := o.Session(); archive != nil && s != nil && s.RecordID != "" {
			rec, err := deps.History.Get(r.Context(), userID, s.RecordID)
			switch {
			case err == nil:
				resp.Record = &rec
			case !errors.Is(err, storage.ErrNotFound):
				deps.Logger.Warn("loading history record failed", "record_id", s.RecordID, "error", err)
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleClearInterview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o := orchestratorFor(w, r, deps)
		if o == nil {
			return
		}
		keep, _ := strconv.ParseBool(r.URL.Query().Get("keep_resume"))
		if err := o.Clear(r.Context(), keep); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

func handleListHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := deps.History.List(r.Context(), userIDFrom(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list history: %v", err)
			return
		}

		limit := parseIntParam(r, "limit", history.MaxRecords, history.MaxRecords)
		offset := parseIntParam(r, "offset", 0, 0)
		if offset > len(records) {
			offset = len(records)
		}
		records = records[offset:]
		if limit < len(records) {
			records = records[:limit]
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func handleGetHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := deps.History.Get(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleDeleteHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.History.Delete(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete record: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleClearHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.History.Clear(r.Context(), userIDFrom(r.Context())); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear history: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.History.Stats(r.Context(), userIDFrom(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
