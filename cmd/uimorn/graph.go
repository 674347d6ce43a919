package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/venikman/ui-morn/internal/presentation/graph"
	"github.com/venikman/ui-morn/pkg/client"
	"github.com/venikman/ui-morn/pkg/domain"
)

var graphCmd = &cobra.Command{
	Use:   "graph <task-id>",
	Short: "Print a Mermaid flowchart of a task's timeline",
	Long:  "Replays the task's events from the start and prints them as a Mermaid flowchart once the task ends.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL(cmd), client.WithLogger(logger))
		var events []domain.Event
		err := c.Follow(cmd.Context(), args[0], 0, func(u client.Update) error {
			events = append(events, domain.Event{
				OwnerID:   u.TaskID,
				Sequence:  u.Sequence,
				Kind:      u.Status,
				Parts:     u.Parts,
				Timestamp: u.Timestamp,
			})
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(events))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	addServerFlag(graphCmd)
}
