// Package main implements the convref CLI: building summary trees, answering
// single samples, and evaluating the pipeline on preprocessed datasets.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the YAML configuration file
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "convref",
	Short: "Conversational document relevance and verbatim answering",
	Long: `convref decides whether in-scope documents are relevant to the latest
turn of a conversation and, when they are, answers with text found verbatim
in those documents.

Configuration is read from --config and overridden by CONVREF_* environment
variables (for example CONVREF_LLM_API_KEY).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(buildTreesCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(answerCmd)
}
