package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/kombi/pkg/diagram"
	"github.com/ormasoftchile/kombi/pkg/schema"
)

var diagramFormat string

var diagramCmd = &cobra.Command{
	Use:   "diagram <config>",
	Short: "Render the rule tree as a Mermaid flowchart or ASCII tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := schema.LoadPath(args[0])
		if err != nil {
			return err
		}
		holders, err := schema.Build(cfg)
		if err != nil {
			return err
		}
		out, err := diagram.Generate(holders, diagram.Format(diagramFormat))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	diagramCmd.Flags().StringVar(&diagramFormat, "format", string(diagram.FormatASCII), "Output format: ascii or mermaid")
	rootCmd.AddCommand(diagramCmd)
}
