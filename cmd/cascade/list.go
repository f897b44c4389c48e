package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [glob]",
	Short: "List stored entity names",
	Long: `List the entity names present in the backend, optionally filtered by a
glob pattern (e.g. "device-*" or "sensors/**").`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := newEngine()
		if err != nil {
			fatal("Error initializing engine", err)
		}
		defer engine.Close()

		names, err := engine.List(context.Background())
		if err != nil {
			fatal("Error listing entities", err)
		}
		sort.Strings(names)

		for _, name := range names {
			if len(args) == 1 {
				ok, err := doublestar.Match(args[0], name)
				if err != nil {
					fatal("Invalid glob pattern", err)
				}
				if !ok {
					continue
				}
			}
			fmt.Println(name)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
