package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sqlchatctl",
	Short: "Ask questions about a SQL database from the terminal",
	Long: `sqlchatctl turns questions into SQL with the configured language model,
runs them against the database named by DB_USER, DB1_PASSWORD, HOST, PORT
and DATABASE, and prints the answer.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to load env from")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at info level")

	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newSchemaCmd())
	rootCmd.AddCommand(newHashPasswordCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
