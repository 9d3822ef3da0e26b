package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	feedPage     int
	feedPageSize int
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print one page of the feed as JSON",
	Args:  cobra.NoArgs,
	RunE:  runFeed,
}

func init() {
	feedCmd.Flags().IntVar(&feedPage, "page", 1, "1-based page number")
	feedCmd.Flags().IntVar(&feedPageSize, "page-size", 0, "posts per page (default: $FEED_PAGE_SIZE)")
}

func runFeed(cmd *cobra.Command, args []string) error {
	page, err := app.PostService.ListFeed(cmd.Context(), feedPage, feedPageSize)
	if err != nil {
		return fmt.Errorf("list feed: %w", err)
	}

	output, err := json.MarshalIndent(page, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal feed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return nil
}
