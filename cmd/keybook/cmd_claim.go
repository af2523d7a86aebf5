/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var claimCmd = &cobra.Command{
	Use:   "claim <block-id>",
	Short: "Claim a time block on behalf of a claimant",
	Args:  cobra.ExactArgs(1),
	RunE:  runClaim,
}

var claimClaimantEmail string

func init() {
	rootCmd.AddCommand(claimCmd)
	claimCmd.Flags().StringVar(&claimClaimantEmail, "claimant-email", "", "Email of the claimant (required)")
	_ = claimCmd.MarkFlagRequired("claimant-email")
}

func runClaim(cmd *cobra.Command, args []string) error {
	services, err := openServices()
	if err != nil {
		return err
	}
	defer services.Close()

	claimant, err := services.Users.ByEmail(cmd.Context(), claimClaimantEmail)
	if err != nil {
		return err
	}

	result := services.Booking.Allocate(cmd.Context(), claimant.Actor(), args[0])
	if !result.Success() {
		return fmt.Errorf("%s: %s", result.Outcome, result.ErrorsSentence())
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", result.Claim.ID, result.Claim.TimeBlockID)
	return nil
}
