package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/cascadekit/cascade"
)

var delExt bool

var delCmd = &cobra.Command{
	Use:   "del [entity] [property]",
	Short: "Delete one property of an entity",
	Args:  cobra.ExactArgs(2),
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

		var opts []cascade.PropertyOption
		if delExt {
			opts = append(opts, cascade.Ext())
		}

		ctx := context.Background()
		if err := ent.Delete(ctx, args[1], opts...); err != nil {
			fatal("Error deleting property", err)
		}
		if err := ent.Store(ctx); err != nil {
			fatal("Error persisting entity", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(delCmd)
	delCmd.Flags().BoolVar(&delExt, "ext", false, "Delete from the extended namespace")
}
