package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"postboard/internal/model"
)

var purgeKeepAccount bool

var purgeUserCmd = &cobra.Command{
	Use:   "purge-user <user_id>",
	Short: "Delete a user's posts and account",
	Long: `Purge-user deletes every post by the user, with attachments, and then
the account itself. With --keep-account only the posts go.

Example:
  postctl purge-user 42
  postctl purge-user 42 --keep-account`,
	Args: cobra.ExactArgs(1),
	RunE: runPurgeUser,
}

func init() {
	purgeUserCmd.Flags().BoolVar(&purgeKeepAccount, "keep-account", false, "only delete posts")
}

func runPurgeUser(cmd *cobra.Command, args []string) error {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", args[0])
	}
	ctx := cmd.Context()

	removed, err := app.PostService.DeleteAllByAuthor(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete posts: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d posts\n", removed)

	if purgeKeepAccount {
		return nil
	}
	if err := app.AuthService.DeleteAccount(ctx, userID); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "user %d has no account\n", userID)
			return nil
		}
		return fmt.Errorf("delete account: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted user %d\n", userID)
	return nil
}
