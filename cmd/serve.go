package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-gate/internal/session"
	"github.com/kozaktomas/face-gate/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Gate HTTP API.

Capture clients create a session, stream frame observations (embedding,
expression scores and landmarks) to it and receive progress and the final
verdict as JSON or over Server-Sent Events.

Host and port default to WEB_HOST and WEB_PORT.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		eng.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		eng.cfg.Web.Host = host
	}

	server := web.NewServer(eng.cfg, eng.dir, func(l session.Listener) *session.Controller {
		return eng.newController(l, true)
	}, eng.log.WithField("component", "web"))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Gate API on http://%s/api/v1 (%d identities enrolled)\n", eng.cfg.Web.Addr(), eng.dir.Store().Len())
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
