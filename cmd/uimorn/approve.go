package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/venikman/ui-morn/pkg/client"
	"github.com/venikman/ui-morn/pkg/domain"
)

var approveCmd = &cobra.Command{
	Use:   "approve <task-id> <request-id>",
	Short: "Approve or deny the tool plan a task is waiting on",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		deny, _ := cmd.Flags().GetBool("deny")
		reason, _ := cmd.Flags().GetString("reason")

		c := client.New(serverURL(cmd), client.WithLogger(logger))
		decision := domain.ToolApproval{RequestID: args[1], Approved: !deny, Reason: reason}
		if err := c.Approve(cmd.Context(), args[0], decision); err != nil {
			return err
		}
		verb := "approved"
		if deny {
			verb = "denied"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, args[1])
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL(cmd), client.WithLogger(logger))
		if err := c.Cancel(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cancel requested for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(approveCmd, cancelCmd)
	addServerFlag(approveCmd)
	addServerFlag(cancelCmd)
	approveCmd.Flags().Bool("deny", false, "Deny instead of approving")
	approveCmd.Flags().String("reason", "", "Reason recorded with the decision")
}
