package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/spf13/cobra"

	"marana/internal/broker"
	"marana/internal/data"
	"marana/internal/library"
	"marana/internal/store"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Refresh the asset catalog and daily datasets",
	Long: `Update pulls the active asset catalog from the broker, stores it, and
refreshes the daily price/indicator datasets for every symbol referenced by
an instruction. Automation runs trigger single-asset refreshes on their own;
this command is for seeding and scheduled bulk updates.

Example:
  marana update
  marana update --catalog-only`,
	RunE: runUpdate,
}

var updateCatalogOnly bool

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().BoolVar(&updateCatalogOnly, "catalog-only", false, "refresh the asset catalog but no datasets")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	st, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	bars := library.NewAlpacaBars(marketdata.ClientOpts{
		APIKey:    cfg.Paper.APIKey,
		APISecret: cfg.Paper.APISecret,
	})
	lib := library.New(st, bars, log)

	brokerClient := broker.NewAlpaca(alpacaOpts(cfg.Paper), alpacaOpts(cfg.Live), log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := brokerClient.AssetCatalog(ctx)
	if err != nil {
		return fmt.Errorf("fetch asset catalog: %w", err)
	}
	if err := lib.RefreshAssets(ctx, catalog); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Asset catalog refreshed: %d assets.\n", len(catalog))

	if updateCatalogOnly {
		return nil
	}

	assets, err := instructionAssets(ctx, st)
	if err != nil {
		return err
	}
	if len(assets) == 0 {
		fmt.Fprintln(os.Stdout, "No instruction symbols to refresh.")
		return nil
	}

	if err := lib.RefreshNow(ctx, assets); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Daily datasets refreshed for %d symbols.\n", len(assets))
	return nil
}

// instructionAssets resolves the distinct symbols referenced by stored
// instructions against the asset catalog.
func instructionAssets(ctx context.Context, st *store.SQLite) ([]data.Asset, error) {
	instructions, err := st.Instructions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load instructions: %w", err)
	}

	seen := map[string]bool{}
	var assets []data.Asset
	for _, ins := range instructions {
		if seen[ins.Symbol] {
			continue
		}
		seen[ins.Symbol] = true
		asset, err := st.AssetBySymbol(ctx, ins.Symbol)
		if err != nil {
			continue // symbols missing from the catalog are reported at run time
		}
		assets = append(assets, asset)
	}
	return assets, nil
}
