package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jcmexdev/multihop-creator/internal/client"
	"github.com/jcmexdev/multihop-creator/internal/tracking"
)

var (
	serverURL      string
	idempotencyKey string
)

var rootCmd = &cobra.Command{
	Use:   "creator-cli",
	Short: "Talk to a running creator agent",
}

var submitCmd = &cobra.Command{
	Use:   "submit [instruction]",
	Short: "Submit an instruction and follow its progress",
	Long:  `Submit an instruction as a three-step multihop job and print every progress event until the job completes or fails.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSubmit,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", getEnv("CREATOR_SERVER", "http://localhost:3000"), "creator agent base URL")
	submitCmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "reject duplicate submissions with the same key")
	rootCmd.AddCommand(submitCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	last, err := client.New(serverURL, nil).Submit(ctx, strings.Join(args, " "), idempotencyKey, func(m client.Message) {
		fmt.Fprintf(out, "[%s] %s\n", m.Event, m.Data)
	})
	if err != nil {
		return err
	}
	switch last.Event {
	case tracking.EventAllComplete:
		return nil
	case tracking.EventError:
		return fmt.Errorf("job failed")
	default:
		return fmt.Errorf("stream ended before the job finished")
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
