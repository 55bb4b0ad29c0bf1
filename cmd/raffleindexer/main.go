// Command raffleindexer runs the raffle event indexing core and its
// companion read API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "raffleindexer",
	Short: "Index a raffle protocol's on-chain events into a queryable projection",
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCheckCmd)
	serveCmd.Flags().String("config", "", "path to an optional config.json overlay")
	migrateCheckCmd.Flags().String("config", "", "path to an optional config.json overlay")
}
