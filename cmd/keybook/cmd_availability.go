/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/daisho-wakazashi/keybook/internal/models"
)

var availabilityCmd = &cobra.Command{
	Use:     "availability",
	Aliases: []string{"avail"},
	Short:   "Publish and inspect owner availability",
}

var availabilityAddCmd = &cobra.Command{
	Use:   "add [json-array]",
	Short: "Ingest a batch of hourly instants for an owner",
	Long: `Ingest a JSON array of instant strings. Each instant starts a one-hour
quantum; consecutive quanta on the same local day merge into one block.

Examples:
  keybook availability add --owner-email olive@example.com '["2030-01-07T09:00:00Z","2030-01-07T10:00:00Z"]'
  keybook availability add --owner-email olive@example.com --file slots.json
  cat slots.json | keybook availability add --owner-email olive@example.com --file -
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAvailabilityAdd,
}

var availabilityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an owner's blocks for the week containing a date",
	RunE:  runAvailabilityList,
}

var (
	availabilityOwnerEmail string
	availabilityFile       string
	availabilityDate       string
	availabilityOutput     string
)

func init() {
	rootCmd.AddCommand(availabilityCmd)
	availabilityCmd.AddCommand(availabilityAddCmd)
	availabilityCmd.AddCommand(availabilityListCmd)

	availabilityCmd.PersistentFlags().StringVar(&availabilityOwnerEmail, "owner-email", "", "Email of the owner (required)")
	_ = availabilityCmd.MarkPersistentFlagRequired("owner-email")

	availabilityAddCmd.Flags().StringVarP(&availabilityFile, "file", "f", "", "Read the JSON array from a file, or - for stdin")
	availabilityListCmd.Flags().StringVar(&availabilityDate, "date", "", "Any date in the week, YYYY-MM-DD (defaults to today)")
	availabilityListCmd.Flags().StringVarP(&availabilityOutput, "output", "o", "yaml", "Output format: yaml or json")
}

func readBatch(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case availabilityFile == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	case availabilityFile != "":
		data, err := os.ReadFile(availabilityFile)
		return string(data), err
	case len(args) == 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("provide a JSON array argument or --file")
	}
}

func runAvailabilityAdd(cmd *cobra.Command, args []string) error {
	raw, err := readBatch(cmd, args)
	if err != nil {
		return fmt.Errorf("read batch: %w", err)
	}

	services, err := openServices()
	if err != nil {
		return err
	}
	defer services.Close()

	owner, err := services.Users.ByEmail(cmd.Context(), availabilityOwnerEmail)
	if err != nil {
		return err
	}

	result := services.Availability.Ingest(cmd.Context(), owner.Actor(), raw)
	out := cmd.OutOrStdout()
	for _, b := range result.Created {
		fmt.Fprintf(out, "%s\t%s\t%s\n", b.ID, b.StartTime.Format(time.RFC3339), b.EndTime.Format(time.RFC3339))
	}
	for _, s := range result.Skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %s\n", s)
	}
	if !result.Success() {
		return fmt.Errorf("%s", result.ErrorsSentence())
	}
	return nil
}

// blockView is the CLI rendering of one block.
type blockView struct {
	ID        string `json:"id" yaml:"id"`
	Start     string `json:"start" yaml:"start"`
	End       string `json:"end" yaml:"end"`
	Hours     int    `json:"hours" yaml:"hours"`
	Claimed   bool   `json:"claimed" yaml:"claimed"`
	ClaimedBy string `json:"claimed_by,omitempty" yaml:"claimed_by,omitempty"`
}

func runAvailabilityList(cmd *cobra.Command, args []string) error {
	services, err := openServices()
	if err != nil {
		return err
	}
	defer services.Close()

	loc := services.Availability.Location()
	date := time.Now().In(loc)
	if availabilityDate != "" {
		date, err = time.ParseInLocation(time.DateOnly, availabilityDate, loc)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
	}

	owner, err := services.Users.ByEmail(cmd.Context(), availabilityOwnerEmail)
	if err != nil {
		return err
	}

	blocks, err := services.Availability.ListWeek(cmd.Context(), owner.Actor(), date)
	if err != nil {
		return err
	}

	return renderBlocks(cmd.OutOrStdout(), availabilityOutput, blocks, loc)
}

func renderBlocks(w io.Writer, format string, blocks []models.TimeBlock, loc *time.Location) error {
	views := make([]blockView, 0, len(blocks))
	for _, b := range blocks {
		v := blockView{
			ID:    b.ID,
			Start: b.StartTime.In(loc).Format(time.RFC3339),
			End:   b.EndTime.In(loc).Format(time.RFC3339),
			Hours: int(b.Duration() / models.Quantum),
		}
		if b.Claimed() {
			v.Claimed = true
			v.ClaimedBy = b.Claim.ClaimantID
		}
		views = append(views, v)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(views)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
