// Package main provides the entry point for the guideline knowledge-graph
// extraction CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "guidegraph",
	Short: "Clinical guideline knowledge-graph extraction pipeline",
	Long:  "guidegraph structures a clinical guideline PDF, extracts recommendations, interventions, conditions and cited studies with an LLM, infers typed relationships between them, and loads the result into a graph database.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
