package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "profilestack",
	Short: "Personal profile service and client",
	Long: `profilestack keeps a professional profile (fields, education, experience,
skills, projects, certifications) and generates platform content from it.

Run "profilestack serve" for the profile service. Every other command is a
client: start as a guest, then "profilestack login" to sync with an account.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(
		serveCmd,
		statusCmd,
		guestCmd,
		loginCmd,
		logoutCmd,
		profileCmd,
		addCmd,
		updateCmd,
		rmCmd,
		generateCmd,
		improveBioCmd,
		suggestSkillsCmd,
		historyCmd,
		mcpCmd,
		configCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError("%v", err)
		stop()
		os.Exit(1)
	}
}
