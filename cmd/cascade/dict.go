package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var dictCmd = &cobra.Command{
	Use:   "dict [entity]",
	Short: "Print the full snapshot of an entity as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := newEngine()
		if err != nil {
			fatal("Error initializing engine", err)
		}
		defer engine.Close()

		ent, err := engine.Entity(args[0])
		if err != nil {
			fatal("Error resolving entity", err)
		}

		snap, err := ent.Snapshot(context.Background())
		if err != nil {
			fatal("Error reading entity", err)
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(map[string]any{
			"name":  snap.Name,
			"props": snap.Props,
			"ext":   snap.Ext,
		}); err != nil {
			fatal("Error encoding snapshot", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(dictCmd)
}
