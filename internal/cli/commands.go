package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"optiledger/internal/core/numerator"
	"optiledger/internal/infrastructure/http/v1/dto"
)

func newPreviewCommand(opts *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Show the number the next document would receive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, open, func(ctx context.Context, svc Service, tenantID string, docType numerator.DocumentType) error {
				p, err := svc.Preview(ctx, tenantID, docType)
				if err != nil {
					return err
				}
				resp := dto.FromPreview(p)
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				w := newTextWriter(cmd.OutOrStdout())
				w.row("Number", resp.Number)
				w.row("Counter", resp.Counter)
				w.row("Source", resp.Source)
				if resp.Degraded != "" {
					w.row("Degraded", resp.Degraded)
				}
				return w.flush()
			})
		},
	}
}

func newDiagnoseCommand(opts *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Compare the stored counter with the documents on file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, open, func(ctx context.Context, svc Service, tenantID string, docType numerator.DocumentType) error {
				report, err := svc.Diagnose(ctx, tenantID, docType)
				if err != nil {
					return err
				}
				resp := dto.FromReport(report)
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				w := newTextWriter(cmd.OutOrStdout())
				w.row("Counter", resp.Counter)
				if resp.Record != nil {
					w.row("Stored count", resp.Record.Count)
					w.row("Format", resp.Record.Format)
				} else {
					w.row("Stored count", "(none)")
				}
				w.row("Documents", resp.DocumentCount)
				w.row("Most recent", orNone(resp.MostRecentNumber))
				w.row("Drift", resp.Drift)
				if err := w.flush(); err != nil {
					return err
				}
				if resp.Drift > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "\ncounter is %d behind; run `numbering repair` to resynchronize\n", resp.Drift)
				}
				return nil
			})
		},
	}
}

func newRepairCommand(opts *RootOptions, open Opener) *cobra.Command {
	var fiscalYear string

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Recompute the counter from the documents on file",
		Long: `Scan every document of the type, parse each number against the counter's
template and overwrite the counter with the highest value found.

Without --fiscal-year the unscoped counter is repaired.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, open, func(ctx context.Context, svc Service, tenantID string, docType numerator.DocumentType) error {
				res, err := svc.Repair(ctx, tenantID, docType, fiscalYear)
				if err != nil {
					return err
				}
				resp := dto.FromRepair(res)
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				w := newTextWriter(cmd.OutOrStdout())
				w.row("Counter", resp.Counter)
				w.row("Highest", resp.HighestNumber)
				w.row("Next number", resp.NextNumber)
				w.row("Scanned", resp.TotalDocuments)
				w.row("Matched", resp.Matched)
				w.row("Skipped", resp.Skipped)
				return w.flush()
			})
		},
	}

	cmd.Flags().StringVar(&fiscalYear, "fiscal-year", "", "fiscal year scope, e.g. 2024-2025")
	return cmd
}

func newHistoryCommand(opts *RootOptions, open Opener) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent repairs of the type's counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > 200 {
				return usageErrorf("invalid --limit %d: must be between 1 and 200", limit)
			}
			return withService(cmd, opts, open, func(ctx context.Context, svc Service, tenantID string, docType numerator.DocumentType) error {
				entries, err := svc.RepairHistory(ctx, tenantID, docType, limit)
				if err != nil {
					return err
				}
				resp := dto.FromRepairHistory(entries)
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				if len(resp) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no repairs recorded")
					return nil
				}
				w := newTextWriter(cmd.OutOrStdout())
				w.cells("AT", "COUNTER", "BEFORE", "AFTER", "ACTOR")
				for _, e := range resp {
					before := "(none)"
					if e.Before != nil {
						before = fmt.Sprint(e.Before.Count)
					}
					after := "(none)"
					if e.After != nil {
						after = fmt.Sprint(e.After.Count)
					}
					w.cells(e.At.Format(time.RFC3339), e.Counter, before, after, orNone(e.ActorID))
				}
				return w.flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show (1-200)")
	return cmd
}
