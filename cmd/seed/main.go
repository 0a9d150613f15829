// Package main seeds a development database with a demo tenant and document history.
//
// Usage:
//
//	seed --slug demo --fiscal-year 2024-2025 --purchases 40 --sales 25
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"optiledger/internal/app"
	"optiledger/internal/config"
	appctx "optiledger/internal/core/context"
	"optiledger/internal/core/numerator"
	"optiledger/internal/domain/auth"
	"optiledger/internal/infrastructure/storage/postgres"
	"optiledger/pkg/logger"
)

type seedOptions struct {
	Config     string
	Slug       string
	Name       string
	FiscalYear string
	Purchases  int
	Sales      int
}

func main() {
	if err := newSeedCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newSeedCommand() *cobra.Command {
	opts := &seedOptions{}
	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Create a demo tenant with purchase and sale history",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to config file")
	cmd.Flags().StringVar(&opts.Slug, "slug", "demo", "tenant slug")
	cmd.Flags().StringVar(&opts.Name, "name", "Demo Optics", "tenant display name")
	cmd.Flags().StringVar(&opts.FiscalYear, "fiscal-year", "2024-2025", "fiscal year setting (empty leaves it unset)")
	cmd.Flags().IntVar(&opts.Purchases, "purchases", 40, "purchase documents to create")
	cmd.Flags().IntVar(&opts.Sales, "sales", 25, "sale documents to create")
	return cmd
}

func runSeed(ctx context.Context, opts *seedOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadFrom(opts.Config)
	if err != nil {
		return err
	}
	if cfg.IsProduction() {
		return fmt.Errorf("refusing to seed a production environment")
	}

	log, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}
	ctx = logger.WithLogger(ctx, log)

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.DSN()))
	if err != nil {
		return err
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	inserter := postgres.NewBatchInserter(txm)
	tables := app.DocumentTables(cfg.Numbering)

	var tenantID string
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		settings := map[string]any{}
		if opts.FiscalYear != "" {
			settings["fiscal_year"] = opts.FiscalYear
		}

		err := txm.GetQuerier(ctx).QueryRow(ctx, `
			INSERT INTO tenants (slug, display_name, settings)
			VALUES ($1, $2, $3)
			ON CONFLICT (slug) DO UPDATE SET
				display_name = EXCLUDED.display_name,
				settings = EXCLUDED.settings,
				updated_at = now()
			RETURNING id::text
		`, opts.Slug, opts.Name, settings).Scan(&tenantID)
		if err != nil {
			return fmt.Errorf("upsert tenant: %w", err)
		}

		// Numbers are rendered with the same defaults a fresh counter would use.
		scope := numerator.FiscalYearScope(opts.FiscalYear)
		for docType, n := range map[numerator.DocumentType]int{
			numerator.DocumentPurchase: opts.Purchases,
			numerator.DocumentSale:     opts.Sales,
		} {
			rows, err := documentRows(tenantID, numerator.Bootstrap(docType, scope).NewRecord(0, time.Now()), n)
			if err != nil {
				return err
			}
			copied, err := inserter.CopyFromSlice(ctx, tables[docType], []string{"tenant_id", "number", "created_at"}, rows)
			if err != nil {
				return fmt.Errorf("seed %s: %w", tables[docType], err)
			}
			log.Infow("seeded documents", "table", tables[docType], "count", copied)
		}
		return nil
	})
	if err != nil {
		return err
	}

	jwtConfig := auth.DefaultJWTConfig(cfg.JWT.Secret)
	if cfg.JWT.Issuer != "" {
		jwtConfig.Issuer = cfg.JWT.Issuer
	}
	jwtConfig.AccessTokenTTL = 24 * time.Hour
	token, expires, err := auth.NewJWTService(jwtConfig).GenerateAccessToken(appctx.UserContext{
		UserID:   uuid.NewString(),
		TenantID: tenantID,
		IsAdmin:  true,
	})
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Printf("tenant:  %s (%s)\n", tenantID, opts.Slug)
	fmt.Printf("token:   %s\n", token)
	fmt.Printf("expires: %s\n", expires.Format(time.RFC3339))
	fmt.Println("counters are not seeded; run `numbering repair` to initialize them from the documents")
	return nil
}

// documentRows renders n consecutive numbers, oldest first, one minute apart.
func documentRows(tenantID string, rec *numerator.Record, n int) ([][]any, error) {
	start := time.Now().UTC().Add(-time.Duration(n) * time.Minute)
	rows := make([][]any, 0, n)
	for i := 1; i <= n; i++ {
		number, err := numerator.Render(rec, int64(i))
		if err != nil {
			return nil, err
		}
		rows = append(rows, []any{tenantID, number, start.Add(time.Duration(i) * time.Minute)})
	}
	return rows, nil
}
