package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/mockmate/internal/history"
	"github.com/kalambet/mockmate/internal/interview"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Interviews *interview.Users
	History    *history.Recorder
	Defaults   Defaults
	Logger     *slog.Logger
}

// orchestrator returns the orchestrator of the tool call's user_id
// argument, or of the configured user.
func (deps MCPDeps) orchestrator(ctx context.Context, req mcp.CallToolRequest) (*interview.Orchestrator, string, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		userID = deps.Defaults.UserID
	}
	o, err := deps.Interviews.For(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	return o, userID, nil
}

// NewMCPServer creates an MCP server with the interview tools and resources registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := server.NewMCPServer(
		"mockmate",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("mockmate runs mock job interviews tailored to a resume: start an interview, answer questions with send_message, then request a summary."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("start_interview",
			mcp.WithDescription("Start a mock interview. Uses the given resume, or the last uploaded one."),
			mcp.WithString("resume", mcp.Description("Resume as a JSON object with rawText, skills, experienceYears and sections")),
			mcp.WithArray("skills", mcp.Description("Candidate skills, used when no resume is given")),
			mcp.WithString("question_type", mcp.Description("technical, behavioral, situational or all")),
			mcp.WithNumber("num_questions", mcp.Description("Number of questions (default 10)")),
			mcp.WithString("difficulty", mcp.Description("easy, medium, hard or mixed")),
			withUserID(),
		),
		mcpStartInterview(deps),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send the candidate's message: an answer, \"next question\", or a request for feedback."),
			mcp.WithString("content", mcp.Description("Message text"), mcp.Required()),
			withUserID(),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("end_interview",
			mcp.WithDescription("Mark the current interview as completed."),
			withUserID(),
		),
		mcpEndInterview(deps),
	)

	s.AddTool(
		mcp.NewTool("interview_summary",
			mcp.WithDescription("Evaluate every answer of the current interview and save the result to history. Repeated calls return the same result."),
			withUserID(),
		),
		mcpInterviewSummary(deps),
	)

	s.AddTool(
		mcp.NewTool("list_history",
			mcp.WithDescription("List past interviews, newest first."),
			withUserID(),
			mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 10)")),
		),
		mcpListHistory(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"interview://current",
			"Current Interview",
			mcp.WithResourceDescription("Current interview session with progress as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCurrent(deps),
	)

	return s
}

func withUserID() mcp.ToolOption {
	return mcp.WithString("user_id", mcp.Description("Interviewee (defaults to the configured user)"))
}

func mcpStartInterview(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := StartRequest{
			QuestionType: req.GetString("question_type", ""),
			NumQuestions: req.GetInt("num_questions", 0),
			Difficulty:   req.GetString("difficulty", ""),
		}

		if raw := req.GetString("resume", ""); raw != "" {
			var res interview.ResumeData
			if err := json.Unmarshal([]byte(raw), &res); err != nil {
				return mcpError(fmt.Sprintf("invalid resume JSON: %v", err)), nil
			}
			start.Resume = &res
		} else if skills := req.GetStringSlice("skills", nil); len(skills) > 0 {
			start.Resume = &interview.ResumeData{Skills: skills}
		}

		o, _, err := deps.orchestrator(ctx, req)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		in, _, err := startInput(ctx, o, deps.Defaults, start)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		s, err := o.Start(ctx, in)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to start interview: %v", err)), nil
		}
		return mcpText(s.Messages[len(s.Messages)-1].Content), nil
	}
}

func mcpSendMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil || content == "" {
			return mcpError("content is required"), nil
		}

		o, _, err := deps.orchestrator(ctx, req)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		msg, err := o.Submit(ctx, content)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(msg.Content), nil
	}
}

func mcpEndInterview(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		o, _, err := deps.orchestrator(ctx, req)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		s, err := o.EndSession(ctx)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Interview ended. %d of %d questions answered.", len(s.Answers), len(s.Questions))), nil
	}
}

func mcpInterviewSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		o, userID, err := deps.orchestrator(ctx, req)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		eval, err := o.Summarize(ctx, archiveTo(deps.History, userID))
		switch {
		case errors.Is(err, interview.ErrArchive):
			deps.Logger.Error("recording history failed", "user_id", userID, "error", err)
		case err != nil:
			return mcpError(fmt.Sprintf("summary failed: %v", err)), nil
		}

		b, err := json.Marshal(eval)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal evaluation: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := req.GetString("user_id", "")
		if userID == "" {
			userID = deps.Defaults.UserID
		}
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}

		records, err := deps.History.List(ctx, userID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list history: %v", err)), nil
		}
		if len(records) > limit {
			records = records[:limit]
		}

		type recordSummary struct {
			ID           string  `json:"id"`
			Date         string  `json:"date"`
			Mode         string  `json:"mode"`
			OverallScore float64 `json:"overall_score"`
			Grade        string  `json:"grade"`
			Answered     string  `json:"answered"`
			Summary      string  `json:"summary"`
		}

		summaries := make([]recordSummary, len(records))
		for i, rec := range records {
			summary := rec.Summary
			if utf8.RuneCountInString(summary) > 200 {
				runes := []rune(summary)
				summary = string(runes[:200]) + "..."
			}
			summaries[i] = recordSummary{
				ID:           rec.ID,
				Date:         rec.Date.Format(time.RFC3339),
				Mode:         rec.Mode,
				OverallScore: rec.OverallScore,
				Grade:        rec.Grade,
				Answered:     fmt.Sprintf("%d/%d", rec.QuestionsAnswered, rec.TotalQuestions),
				Summary:      summary,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceCurrent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		o, err := deps.Interviews.For(ctx, deps.Defaults.UserID)
		if err != nil {
			return nil, err
		}
		s := o.Session()
		if s == nil {
			return nil, interview.ErrNoActiveSession
		}

		b, err := json.Marshal(viewOf(s))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
