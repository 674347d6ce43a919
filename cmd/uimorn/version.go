package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	uimorn "github.com/venikman/ui-morn"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of uimorn",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "uimorn version %s\n", strings.TrimSpace(uimorn.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
