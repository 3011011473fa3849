package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guestlens/guestlens/internal/config"
	"github.com/guestlens/guestlens/internal/event"
	"github.com/guestlens/guestlens/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review [event-path]",
	Short: "Ask a vision model for a second opinion on candidates",
	Long: `Review the recorded candidate photos with a vision model: each
candidate is shown next to the guest's selfie and the model answers
whether they show the same person.

Verdicts are written to candidates_review.json in the event root. No
file is ever moved or promoted; the verdicts are advisory input for the
manual candidate review.

Providers:
  openai  requires OPENAI_TOKEN
  gemini  requires GEMINI_API_KEY
  ollama  local instance, OLLAMA_URL and OLLAMA_MODEL optional`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().String("provider", "openai", "Vision provider: openai, gemini, ollama")
	reviewCmd.Flags().Int("limit", 0, "Review only the first N candidates (0 = all)")
}

func runReview(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	layout, err := event.Open(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := review.New(ctx, cfg, mustGetString(cmd, "provider"))
	if err != nil {
		return err
	}

	reviewer := &review.Reviewer{
		Provider: provider,
		Layout:   layout,
		Limit:    mustGetInt(cmd, "limit"),
	}

	out, err := reviewer.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Reviewed %d candidates, %d confirmed as the matched guest\n", out.Reviewed, out.Confirmed)
	fmt.Printf("Verdicts written to %s\n", layout.ReviewPath())
	return nil
}
