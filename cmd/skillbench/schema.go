package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillbench/pkg/report"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [report|snapshot]",
	Short: "Print the JSON schema of the report or snapshot format",
	Args:  cobra.MaximumNArgs(1),
	ValidArgs: []string{
		report.SchemaReport,
		report.SchemaSnapshot,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		name := report.SchemaReport
		if len(args) == 1 {
			name = args[0]
		}
		schema, err := report.Schema(name)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}
