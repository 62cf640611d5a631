package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"guidegraph/internal/pipeline"
	"guidegraph/internal/stages"
)

var listStagesCommand = &cobra.Command{
	Use:   "list-stages",
	Short: "Print the stage sequence with dependencies and artifacts",
	RunE:  listStagesCmd,
}

func init() {
	rootCmd.AddCommand(listStagesCommand)
}

func listStagesCmd(_ *cobra.Command, _ []string) error {
	registry := pipeline.NewRegistry()
	if err := stages.Register(registry, &stages.Deps{}); err != nil {
		return err
	}

	for i, def := range registry.Stages() {
		requires := "-"
		if len(def.Requires) > 0 {
			requires = strings.Join(def.Requires, ", ")
		}
		fmt.Printf("%d. %-18s produces: %-20s requires: %s\n", i+1, def.Name, def.Produces, requires)
	}
	return nil
}
