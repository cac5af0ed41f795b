package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/mockmate/internal/config"
	"github.com/kalambet/mockmate/internal/history"
	"github.com/kalambet/mockmate/internal/interview"
)

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// --- resume ---

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Load or show the resume interviews are based on",
}

var resumeLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a resume",
	Long: `Load a resume from a text file, a parsed resume JSON file, or inline text.

Examples:
  mockmate resume load --file ./resume.json
  mockmate resume load --file ./resume.txt --skills "Go,Postgres,Kubernetes" --experience 5
  mockmate resume load --text "Backend engineer, 5 years of Go" --skills Go`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		text, _ := cmd.Flags().GetString("text")
		skills, _ := cmd.Flags().GetString("skills")
		years, _ := cmd.Flags().GetInt("experience")

		res, err := buildResume(file, text, skills, years, cmd.Flags().Changed("experience"))
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/resume", res)
		if err != nil {
			return err
		}
		var saved interview.ResumeData
		if err := decodeJSON(resp, &saved); err != nil {
			return err
		}

		printSuccess("Loaded resume %s (%d skills)", saved.ID, len(saved.Skills))
		return nil
	},
}

func buildResume(file, text, skills string, years int, haveYears bool) (interview.ResumeData, error) {
	if file == "" && text == "" && skills == "" {
		return interview.ResumeData{}, fmt.Errorf("one of --file, --text, or --skills is required")
	}

	res := interview.ResumeData{
		RawText: text,
		Skills:  splitList(skills),
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return interview.ResumeData{}, fmt.Errorf("reading file: %w", err)
		}
		if strings.EqualFold(filepath.Ext(file), ".json") {
			// A parsed resume; flags only fill what it leaves out.
			var parsed interview.ResumeData
			if err := json.Unmarshal(data, &parsed); err != nil {
				return interview.ResumeData{}, fmt.Errorf("parsing %s: %w", file, err)
			}
			if len(parsed.Skills) == 0 {
				parsed.Skills = res.Skills
			}
			if parsed.RawText == "" {
				parsed.RawText = res.RawText
			}
			res = parsed
		} else {
			res.RawText = string(data)
		}
		if res.Filename == "" {
			res.Filename = filepath.Base(file)
		}
	}
	if haveYears && res.ExperienceYears == nil {
		res.ExperienceYears = &years
	}
	return res, nil
}

var resumeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current resume as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/resume")
		if err != nil {
			return err
		}
		var res any
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		return printJSON(res)
	},
}

func init() {
	resumeLoadCmd.Flags().String("file", "", "resume file: plain text, or .json with ResumeData fields")
	resumeLoadCmd.Flags().String("text", "", "resume text")
	resumeLoadCmd.Flags().String("skills", "", "comma-separated skills")
	resumeLoadCmd.Flags().Int("experience", 0, "years of experience")
	resumeCmd.AddCommand(resumeLoadCmd, resumeShowCmd)
}

// --- interview ---

type sessionView struct {
	Session         *interview.Session           `json:"session"`
	Progress        interview.Progress           `json:"progress"`
	CurrentQuestion *interview.InterviewQuestion `json:"current_question"`
}

type messageResponse struct {
	Message  interview.ChatMessage `json:"message"`
	Progress interview.Progress    `json:"progress"`
	Status   string                `json:"status"`
}

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Run a mock interview",
}

var interviewStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new interview from the current resume",
	RunE: func(cmd *cobra.Command, args []string) error {
		qtype, _ := cmd.Flags().GetString("type")
		num, _ := cmd.Flags().GetInt("questions")
		difficulty, _ := cmd.Flags().GetString("difficulty")
		resumeID, _ := cmd.Flags().GetString("resume-id")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{}
		if qtype != "" {
			body["question_type"] = qtype
		}
		if num > 0 {
			body["num_questions"] = num
		}
		if difficulty != "" {
			body["difficulty"] = difficulty
		}
		if resumeID != "" {
			body["resume_id"] = resumeID
		}

		printStep("Generating questions...")
		resp, err := client.post(cmd.Context(), "/interview", body)
		if err != nil {
			return err
		}
		var view sessionView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}

		if n := len(view.Session.Messages); n > 0 {
			fmt.Println(view.Session.Messages[n-1].Content)
		}
		return nil
	},
}

func sendMessage(ctx context.Context, content string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.post(ctx, "/interview/messages", map[string]string{"content": content})
	if err != nil {
		return err
	}
	var mr messageResponse
	if err := decodeJSON(resp, &mr); err != nil {
		return err
	}

	fmt.Println(mr.Message.Content)
	p := mr.Progress
	fmt.Fprintln(os.Stderr, colorize(colorCyan, progressLine(p.Current, p.Total, p.Answered, p.Percentage)))
	return nil
}

var interviewSayCmd = &cobra.Command{
	Use:   "say [message]",
	Short: "Answer the current question or talk to the interviewer",
	Long: `Send a message to the interviewer. Without arguments the message is
read from stdin, which allows multi-line answers:

  mockmate interview say "I would start by profiling the hot path"
  mockmate interview say < answer.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		content := strings.Join(args, " ")
		if content == "" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			content = string(data)
		}
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("message is required")
		}
		return sendMessage(cmd.Context(), content)
	},
}

var interviewNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Move to the next question",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendMessage(cmd.Context(), "next question")
	},
}

var interviewFeedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Get a detailed evaluation of your last answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendMessage(cmd.Context(), "feedback")
	},
}

var interviewEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the current interview",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/interview/end", nil)
		if err != nil {
			return err
		}
		var view sessionView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		printSuccess("Interview ended: %d of %d questions answered", view.Progress.Answered, view.Progress.Total)
		return nil
	},
}

var interviewSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Evaluate the whole interview and save it to history",
	RunE: func(cmd *cobra.Command, args []string) error {
		noRecord, _ := cmd.Flags().GetBool("no-record")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/interview/summary"
		if noRecord {
			path += "?record=false"
		}
		printStep("Evaluating your answers...")
		resp, err := client.post(cmd.Context(), path, nil)
		if err != nil {
			return err
		}
		var out struct {
			Evaluation interview.SessionEvaluation `json:"evaluation"`
			Record     *history.Record             `json:"record"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if asJSON {
			return printJSON(out)
		}
		printEvaluation(out.Evaluation)
		if out.Record != nil {
			printSuccess("Saved to history as %s", out.Record.ID)
		}
		return nil
	},
}

func printEvaluation(e interview.SessionEvaluation) {
	fmt.Printf("%s %.0f/100 (grade %s)\n", colorize(colorBold, "Overall score:"), e.OverallScore, e.Grade)
	fmt.Printf("Answered %d of %d questions (%d%%)\n", e.QuestionsAnswered, e.TotalQuestions, e.CompletionRate)
	if e.ReadyForInterview {
		fmt.Println(colorize(colorGreen, "Ready for a real interview"))
	} else {
		fmt.Println(colorize(colorYellow, "More practice recommended"))
	}
	if e.Summary != "" {
		fmt.Printf("\n%s\n", e.Summary)
	}

	if len(e.Strengths) > 0 {
		fmt.Printf("\n%s\n", colorize(colorBold, "Strengths"))
		for _, s := range e.Strengths {
			fmt.Printf("  + %s\n", s.Area)
		}
	}
	if len(e.ImprovementAreas) > 0 {
		fmt.Printf("\n%s\n", colorize(colorBold, "Improve"))
		for _, a := range e.ImprovementAreas {
			fmt.Printf("  - [%s] %s: %s\n", a.Priority, a.Area, a.Suggestion)
		}
	}
	if len(e.Recommendations) > 0 {
		fmt.Printf("\n%s\n", colorize(colorBold, "Next steps"))
		for _, r := range e.Recommendations {
			fmt.Printf("  → %s\n", r)
		}
	}
}

var interviewShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current interview session as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/interview")
		if err != nil {
			return err
		}
		var view any
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		return printJSON(view)
	},
}

var interviewClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the current interview",
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetBool("keep-resume")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/interview"
		if keep {
			path += "?keep_resume=true"
		}
		resp, err := client.delete(cmd.Context(), path)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Interview cleared")
		return nil
	},
}

func init() {
	interviewStartCmd.Flags().String("type", "", "question type: technical, behavioral, situational or all")
	interviewStartCmd.Flags().Int("questions", 0, "number of questions")
	interviewStartCmd.Flags().String("difficulty", "", "easy, medium, hard or mixed")
	interviewStartCmd.Flags().String("resume-id", "", "start from a stored resume instead of the current one")
	interviewSummaryCmd.Flags().Bool("no-record", false, "do not save the evaluation to history")
	interviewSummaryCmd.Flags().Bool("json", false, "print the raw evaluation")
	interviewClearCmd.Flags().Bool("keep-resume", false, "keep the current resume loaded")

	interviewCmd.AddCommand(
		interviewStartCmd,
		interviewSayCmd,
		interviewNextCmd,
		interviewFeedbackCmd,
		interviewEndCmd,
		interviewSummaryCmd,
		interviewShowCmd,
		interviewClearCmd,
	)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse past interviews",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past interviews, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}
		var records []history.Record
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No interviews recorded yet.")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  %s  %-11s %5.1f  %-3s %d/%d\n",
				colorize(colorCyan, shortID(r.ID)),
				r.Date.Local().Format("2006-01-02 15:04"),
				r.Mode,
				r.OverallScore,
				r.Grade,
				r.QuestionsAnswered,
				r.TotalQuestions,
			)
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one past interview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/history/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var rec any
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one past interview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/history/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all past interviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete your whole interview history. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/history")
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("History cleared")
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show interview statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/stats")
		if err != nil {
			return err
		}
		var st history.Stats
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}
		printStatus("Interviews", "%d", st.InterviewCount)
		printStatus("Average score", "%d/100", st.AverageScore)
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of interviews to list")
	historyClearCmd.Flags().Bool("confirm", false, "confirm deletion")
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyClearCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [api-key]",
	Short: "Store the LLM provider API key in the secrets file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := ""
		if len(args) == 1 {
			key = args[0]
		} else {
			fmt.Fprint(os.Stderr, "API key: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading API key: %w", err)
			}
			key = line
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("API key must not be empty")
		}

		if err := config.SetLLMAPIKey(config.NewKeychain(), key); err != nil {
			return fmt.Errorf("storing API key: %w", err)
		}
		printSuccess("API key stored; restart the server to use it")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configSetKeyCmd)
}
