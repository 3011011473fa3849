package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/guestlens/guestlens/internal/logging"
)

var (
	verbose bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "guestlens",
	Short: "Match event photos to guests by face",
	Long: `Guestlens sorts an event photo dump into per-guest folders by comparing
face embeddings against each guest's reference selfies. It runs fully
offline against a local directory tree:

  event/
    selfies/<guest>/   reference selfies, one folder per guest
    photos/            the unsorted photo dump

Matched photos are copied into matched/<guest>/, near misses into
candidates/<guest>/, and a machine-readable report is written to the
event root.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable per-decision debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log warnings and errors")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	logging.Init(verbose, quiet)
}
