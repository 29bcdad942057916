package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/datanex/staycohort/internal/shared/auth"
)

func tokenCmd() *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not set")
			}
			token, err := auth.NewToken(cfg.Auth.JWTSecret, subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().StringSliceVar(&roles, "roles", []string{auth.RoleAnalyst}, "granted roles")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.MarkFlagRequired("subject")
	return cmd
}
