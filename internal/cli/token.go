package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lpar_inventory/internal/auth"
	"lpar_inventory/internal/config"
)

// NewTokenCommand issues a bearer token whose uid is recorded as the actor
// of audit entries.
func NewTokenCommand() *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API token for a user id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load()
			if err != nil {
				return err
			}
			token, err := auth.Sign(cfg.JWTSecret, args[0], email, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
