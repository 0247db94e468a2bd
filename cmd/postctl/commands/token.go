package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/blackmichael/postboard/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		secret string
		user   string
		name   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the server secret",
		Long: `Issue an HS256 bearer token the server accepts for authenticated actions.

The secret must match the server's JWT_SECRET.

Examples:
  postctl token --user alice
  POSTBOARD_TOKEN=$(postctl token --user alice) postctl posts delete 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret is required (or set JWT_SECRET)")
			}
			tokens, err := auth.NewTokens(secret)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(user, name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "Signing secret")
	cmd.Flags().StringVar(&user, "user", "", "User id to put in the token subject")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("user")
	return cmd
}
