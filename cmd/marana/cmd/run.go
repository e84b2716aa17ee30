package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/spf13/cobra"

	"marana/internal/automation"
	"marana/internal/broker"
	"marana/internal/config"
	"marana/internal/data"
	"marana/internal/id"
	"marana/internal/library"
	"marana/internal/report"
	"marana/internal/store"
	"marana/internal/strategy"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one automation pass over the active instructions",
	Long: `Run walks all active instructions for a trading format and decides,
per symbol, whether to submit a market buy or sell order today.

Example:
  marana run --format paper --day 2026-08-31`,
	RunE: runRun,
}

var (
	runFormat string
	runDay    string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFormat, "format", string(data.Paper), "trading format: paper or live")
	runCmd.Flags().StringVar(&runDay, "day", "", "trading day as YYYY-MM-DD (default today)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	format, err := data.ParseFormat(runFormat)
	if err != nil {
		return err
	}

	day := time.Now().UTC().Truncate(24 * time.Hour)
	if runDay != "" {
		day, err = time.Parse("2006-01-02", runDay)
		if err != nil {
			return fmt.Errorf("invalid --day: %w", err)
		}
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

	runlog, err := report.NewRunLog(cfg.RunLogPath, id.New())
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer func() {
		if err := runlog.Close(); err != nil {
			log.Warnw("failed to close run log", "error", err)
		}
	}()
	log.Infow("run log opened", "run_id", runlog.RunID(), "path", cfg.RunLogPath)

	bars := library.NewAlpacaBars(marketdata.ClientOpts{
		APIKey:    cfg.Paper.APIKey,
		APISecret: cfg.Paper.APISecret,
	})
	lib := library.New(st, bars, log)

	brokerClient := broker.NewAlpaca(
		alpacaOpts(cfg.Paper),
		alpacaOpts(cfg.Live),
		log,
	)

	engine := strategy.NewEngine(lib)
	sink := report.NewConsole(os.Stdout)

	auto := automation.New(st, lib, brokerClient, engine, sink, log, automation.Options{
		Settle:    time.Duration(cfg.Settle),
		UseMargin: cfg.UseMargin,
		RunLog:    runlog,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return auto.Run(ctx, format, day)
}

func alpacaOpts(creds config.Credentials) alpaca.ClientOpts {
	return alpaca.ClientOpts{
		APIKey:    creds.APIKey,
		APISecret: creds.APISecret,
		BaseURL:   creds.BaseURL,
	}
}
