package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmgilman/go/imgex"
)

func (a *app) versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), imgex.Version)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imgex %s\n%s\n", imgex.Version, imgex.Description)
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "show only the version number")
	return cmd
}
