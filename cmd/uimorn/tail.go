package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/venikman/ui-morn/internal/presentation/tui"
	"github.com/venikman/ui-morn/pkg/client"
	"github.com/venikman/ui-morn/pkg/domain"
)

var tailCmd = &cobra.Command{
	Use:   "tail [task-id]",
	Short: "Follow a task stream, or start a task with --prompt and follow it",
	Long: `Follows a task's events until it ends, reconnecting with Last-Event-ID
when the connection drops. With --prompt a new task is started first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, _ := cmd.Flags().GetString("prompt")
		scenarioName, _ := cmd.Flags().GetString("scenario")
		cursor, _ := cmd.Flags().GetInt64("cursor")
		jsonMode, _ := cmd.Flags().GetBool("json")

		if (len(args) == 0) == (prompt == "") {
			return errors.New("pass either a task id or --prompt")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c := client.New(serverURL(cmd), client.WithLogger(logger))
		out := cmd.OutOrStdout()
		handle := tui.NewPrinter(out).Update
		if jsonMode {
			enc := json.NewEncoder(out)
			handle = func(u client.Update) error { return enc.Encode(u) }
		}

		if len(args) == 1 {
			return c.Follow(ctx, args[0], cursor, handle)
		}

		msg := domain.Message{Role: "user", Parts: []domain.Part{domain.TextPart(prompt)}}
		if scenarioName != "" {
			raw, _ := json.Marshal(scenarioName)
			msg.Metadata = map[string]json.RawMessage{"scenario": raw}
		}
		taskID, err := c.Stream(ctx, msg, handle)
		if taskID != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "task %s\n", taskID)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(tailCmd)
	addServerFlag(tailCmd)
	tailCmd.Flags().StringP("prompt", "p", "", "Start a task with this prompt")
	tailCmd.Flags().String("scenario", "", "Scenario for --prompt: markdown or tools")
	tailCmd.Flags().Int64("cursor", 0, "Resume after this sequence")
	tailCmd.Flags().Bool("json", false, "Print updates as NDJSON")
}
