/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daisho-wakazashi/keybook/internal/models"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user with a role",
	Long: `Create an owner or claimant account.

Examples:
  keybook user create --name "Olive" --email olive@example.com --role owner --password s3cret
  keybook user create --name "Cal" --email cal@example.com --role claimant --password s3cret
`,
	RunE: runUserCreate,
}

var (
	userName     string
	userEmail    string
	userRole     string
	userPassword string
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().StringVar(&userName, "name", "", "Display name (required)")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "Login email (required)")
	userCreateCmd.Flags().StringVar(&userRole, "role", "", "Role tag: owner or claimant (required)")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "Login password (required)")
	_ = userCreateCmd.MarkFlagRequired("name")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("role")
	_ = userCreateCmd.MarkFlagRequired("password")
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	role, err := models.ParseRole(userRole)
	if err != nil {
		return err
	}

	services, err := openServices()
	if err != nil {
		return err
	}
	defer services.Close()

	user, err := services.Users.Create(cmd.Context(), userName, userEmail, role, userPassword)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", user.ID, user.Email, user.Role)
	return nil
}
