// Package cli implements the numbering admin command line.
package cli

import (
	"context"
	"fmt"
	"os/user"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	appctx "optiledger/internal/core/context"
	"optiledger/internal/core/numerator"
	"optiledger/internal/domain/numbering"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Service is the part of numbering.Service the CLI drives.
type Service interface {
	Preview(ctx context.Context, tenantID string, docType numerator.DocumentType) (*numbering.Preview, error)
	Diagnose(ctx context.Context, tenantID string, docType numerator.DocumentType) (*numbering.Report, error)
	Repair(ctx context.Context, tenantID string, docType numerator.DocumentType, fiscalYear string) (*numbering.RepairResult, error)
	RepairHistory(ctx context.Context, tenantID string, docType numerator.DocumentType, limit int) ([]numerator.RepairEntry, error)
}

var _ Service = (*numbering.Service)(nil)

// Opener builds the service for one command run. The returned func releases it.
type Opener func(ctx context.Context, opts *RootOptions) (Service, func(), error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Config string
	Format string // "json" | "text"
	Tenant string
	Type   string
}

// target validates the tenant and type flags.
func (o *RootOptions) target() (string, numerator.DocumentType, error) {
	if _, err := uuid.Parse(o.Tenant); err != nil {
		return "", "", usageErrorf("invalid --tenant %q: must be a UUID", o.Tenant)
	}
	docType, err := numerator.ParseDocumentType(o.Type)
	if err != nil {
		return "", "", usageErrorf("invalid --type %q: must be one of %v", o.Type, numerator.DocumentTypes())
	}
	return o.Tenant, docType, nil
}

// NewRootCommand creates the root command.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "numbering",
		Short: "Inspect and repair document number counters",
		Long: `Administrative access to per-tenant document number counters.

Examples:
  numbering preview  --tenant <uuid> --type purchase
  numbering diagnose --tenant <uuid> --type sale --format json
  numbering repair   --tenant <uuid> --type sale --fiscal-year 2024-2025
  numbering history  --tenant <uuid> --type sale --limit 5`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !lo.Contains(ValidFormats, opts.Format) {
				return usageErrorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to config file (default: ./config.toml)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Tenant, "tenant", "", "tenant id (required)")
	cmd.PersistentFlags().StringVar(&opts.Type, "type", "", "document type: purchase|sale (required)")
	_ = cmd.MarkPersistentFlagRequired("tenant")
	_ = cmd.MarkPersistentFlagRequired("type")

	cmd.AddCommand(newPreviewCommand(opts, open))
	cmd.AddCommand(newDiagnoseCommand(opts, open))
	cmd.AddCommand(newRepairCommand(opts, open))
	cmd.AddCommand(newHistoryCommand(opts, open))

	return cmd
}

// withService validates flags, opens the service and runs fn.
func withService(cmd *cobra.Command, opts *RootOptions, open Opener,
	fn func(ctx context.Context, svc Service, tenantID string, docType numerator.DocumentType) error) error {
	tenantID, docType, err := opts.target()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	// Repairs made from the command line are audited under the operator's login.
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: operator(), TenantID: tenantID, IsAdmin: true})

	svc, closeFn, err := open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open numbering service: %w", err)
	}
	defer closeFn()

	return fn(ctx, svc, tenantID, docType)
}

// operator names the local account running the command.
func operator() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "cli:" + u.Username
	}
	return "cli"
}
