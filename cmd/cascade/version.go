package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cascadekit/cascade"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of cascade",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cascade version %s\n", cascade.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
