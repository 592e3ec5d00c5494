package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"dailyalchemy/internal/security"
)

// NewTokenCommand creates the token command group.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint bearer tokens for testing and operators",
	}
	cmd.AddCommand(newTokenIssueCommand(opts))
	return cmd
}

func newTokenIssueCommand(opts *RootOptions) *cobra.Command {
	var (
		p   security.Principal
		ttl time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token with the configured JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			issuer, err := security.NewTokenIssuer(cfg.JWTSecret)
			if err != nil {
				return WrapExitError(ExitCommandError, "JWT_SECRET is not configured", err)
			}
			token, err := issuer.Issue(p, ttl)
			if err != nil {
				return WrapExitError(ExitFailure, "issue failed", err)
			}
			out := map[string]any{"token": token, "expiresAt": time.Now().Add(ttl).UTC()}
			return emit(cmd, opts, out, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}
	cmd.Flags().StringVar(&p.UserID, "user", "", "subject user ID (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().BoolVar(&p.Admin, "admin", false, "grant admin access")
	cmd.Flags().BoolVar(&p.Archive, "archive", false, "grant archive access")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
