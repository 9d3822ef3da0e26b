package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print document counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		users, err := app.Users.Count(ctx)
		if err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		posts, err := app.Posts.Count(ctx)
		if err != nil {
			return fmt.Errorf("count posts: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "users: %d\nposts: %d\n", users, posts)
		return nil
	},
}
