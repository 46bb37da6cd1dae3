package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/taskfence/taskfence/cmd/configure/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "taskfence-configure",
		Short: "Maintenance tool for taskfence",
		Long:  "CLI tool for inspecting and maintaining the taskfence store",
	}

	rootCmd.AddCommand(commands.NewListCmd())
	rootCmd.AddCommand(commands.NewIntegrityCmd())
	rootCmd.AddCommand(commands.NewHistoryCmd())
	rootCmd.AddCommand(commands.NewFencesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
