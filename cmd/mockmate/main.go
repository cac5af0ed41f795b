package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor bool
	userID  string
)

var rootCmd = &cobra.Command{
	Use:   "mockmate",
	Short: "Resume-driven mock interview coach",
	Long: `mockmate runs mock job interviews tailored to your resume.

Start the server with "mockmate start", load a resume, then drive the
interview from the command line or from an MCP client.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mockmate version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mockmate version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "user id for history and stats (default from config)")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, versionCmd)
	rootCmd.AddCommand(resumeCmd, interviewCmd, historyCmd, statsCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
