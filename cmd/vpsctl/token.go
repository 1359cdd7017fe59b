package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"vpsbot/internal/auth"
)

func tokenCmd() *cobra.Command {
	var (
		userID   int64
		username string
		role     string
		ttl      time.Duration
		refresh  bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			if role != auth.RoleUser && role != auth.RoleAdmin {
				return fmt.Errorf("role must be %q or %q", auth.RoleUser, auth.RoleAdmin)
			}

			var (
				tok string
				err error
			)
			switch {
			case refresh:
				tok, err = auth.GenerateRefreshToken(userID, username, role, secret)
			case ttl > 0:
				tok, err = auth.GenerateAccessTokenTTL(userID, username, role, secret, ttl)
			default:
				tok, err = auth.GenerateAccessToken(userID, username, role, secret)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "Chat user id the token acts for")
	cmd.Flags().StringVar(&username, "username", "operator", "Username claim")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "Role claim (user or admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Access token lifetime (default 1h)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Mint a refresh token instead")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
