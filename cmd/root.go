package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "face-gate",
	Short: "Face identification with an active liveness challenge",
	Long: `Face Gate identifies people from face embeddings reported by an external
face-observation provider. Logins require a live gesture (a smile or an opened
mouth) before the face is matched against the enrolled population.

Run 'face-gate serve' for the HTTP API or use the identities, enroll, verify
and audit commands to manage the population from the command line.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
