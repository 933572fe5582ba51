// Command rentctl is the operator tool for the rental core: schema
// migration, serial numbers, availability checks and lifecycle fixes.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rentctl",
		Short:         "Rental core operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		migrateCmd(),
		serialCmd(),
		conflictsCmd(),
		rentalCmd(),
		tokenCmd(),
	)
	return root
}
