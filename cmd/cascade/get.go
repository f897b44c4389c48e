package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cascadekit/cascade"
)

var (
	getExt    bool
	getBypass bool
)

var getCmd = &cobra.Command{
	Use:   "get [entity] [property]",
	Short: "Read one property of an entity",
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
		if getExt {
			opts = append(opts, cascade.Ext())
		}
		if getBypass {
			opts = append(opts, cascade.Bypass())
		}

		v, err := ent.Get(context.Background(), args[1], opts...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading property: %v\n", err)
			os.Exit(1)
		}

		encoder := json.NewEncoder(os.Stdout)
		if err := encoder.Encode(v); err != nil {
			fatal("Error encoding value", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().BoolVar(&getExt, "ext", false, "Read from the extended namespace")
	getCmd.Flags().BoolVar(&getBypass, "bypass", false, "Read from the backend, skipping the cache")
}
