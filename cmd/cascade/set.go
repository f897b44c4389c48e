package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cascadekit/cascade"
)

var setExt bool

var setCmd = &cobra.Command{
	Use:   "set [entity] [property] [value]",
	Short: "Write one property of an entity",
	Long: `Write one property and persist it. The value is parsed as JSON first
(numbers, booleans, objects, arrays); anything that does not parse is
stored as a plain string.`,
	Args: cobra.ExactArgs(3),
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
		if setExt {
			opts = append(opts, cascade.Ext())
		}

		value := parseValue(args[2])
		ctx := context.Background()
		_, old, err := ent.Set(ctx, args[1], value, opts...)
		if err != nil {
			fatal("Error writing property", err)
		}
		if err := ent.Store(ctx); err != nil {
			fatal("Error persisting entity", err)
		}
		if old != nil {
			fmt.Fprintf(os.Stderr, "replaced previous value %v\n", old)
		}
	},
}

// parseValue interprets a CLI argument as JSON, falling back to a string.
func parseValue(raw string) cascade.Value {
	var v cascade.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.Flags().BoolVar(&setExt, "ext", false, "Write to the extended namespace")
}
