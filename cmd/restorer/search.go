package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scripthost-io/restorer/internal/search"
)

func searchCmd() *cobra.Command {
	var (
		prerelease bool
		exact      bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the configured sources for packages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			federator := search.NewFederator(newRegistry(), logger)

			results, err := federator.Search(cmd.Context(), args[0], prerelease, exact)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Println("no packages found")

				return nil
			}

			for _, sum := range results {
				fmt.Printf("%s %s\n", sum.ID, sum.Version)

				if len(sum.Versions) > 1 {
					others := make([]string, 0, len(sum.Versions))
					for _, v := range sum.Versions {
						others = append(others, v.String())
					}

					fmt.Printf("  versions: %s\n", strings.Join(others, ", "))
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&prerelease, "prerelease", false, "include prerelease versions")
	cmd.Flags().BoolVar(&exact, "exact", false, "match the package id exactly")

	return cmd
}
