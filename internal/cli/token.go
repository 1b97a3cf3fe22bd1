package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/echodoc-ai/echodoc/pkg/server/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		email  string
		key    string
		issuer string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token for the session API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(key) < 32 {
				return fmt.Errorf("signing key must be at least 32 bytes (--key or ECHODOC_AUTH_SIGNING_KEY)")
			}
			tok, err := auth.Issue([]byte(key), issuer, email, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email the token identifies")
	cmd.Flags().StringVar(&key, "key", envOrDefault("ECHODOC_AUTH_SIGNING_KEY", ""), "HS256 signing key")
	cmd.Flags().StringVar(&issuer, "issuer", envOrDefault("ECHODOC_AUTH_ISSUER", ""), "Token issuer")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
