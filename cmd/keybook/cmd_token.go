/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daisho-wakazashi/keybook/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a bearer token for an existing user",
	RunE:  runTokenIssue,
}

var (
	tokenEmail string
	tokenTTL   time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)

	tokenIssueCmd.Flags().StringVar(&tokenEmail, "email", "", "Email of the user (required)")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to KEYBOOK_TOKEN_TTL_MINUTES)")
	_ = tokenIssueCmd.MarkFlagRequired("email")
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	services, err := openServices()
	if err != nil {
		return err
	}
	defer services.Close()

	user, err := services.Users.ByEmail(cmd.Context(), tokenEmail)
	if err != nil {
		return err
	}

	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.TokenTTL
	}

	token, err := auth.Issue([]byte(cfg.JWTSigningKey), auth.ClaimsFor(user), ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
