package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var flushCmd = &cobra.Command{
	Use:   "flush [entity]",
	Short: "Delete an entity and all its properties",
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

		if err := ent.Flush(context.Background()); err != nil {
			fatal("Error flushing entity", err)
		}
		fmt.Printf("entity %q flushed\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(flushCmd)
}
