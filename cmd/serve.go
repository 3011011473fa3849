package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/guestlens/guestlens/internal/event"
	"github.com/guestlens/guestlens/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve [event-path]",
	Short: "Browse a processed event in the browser",
	Long: `Start a local web server over a processed event directory.

The server exposes the processing report, per-guest galleries of
matched and candidate photos, and the photo files themselves. It is
read-only and meant for reviewing results on the same machine or LAN.`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind to")
}

func runServe(cmd *cobra.Command, args []string) error {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	layout, err := event.Open(args[0])
	if err != nil {
		return err
	}

	server := web.NewServer(layout, host, port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Serving %s on http://%s:%d\n", layout.Root, host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
