package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"marana/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "marana",
	Short: "Unattended daily trading automation against the Alpaca API",
	Long: `Marana runs per-symbol trading instructions once per trading day.

Each instruction pairs a symbol with a named strategy; when the strategy's
entry or exit predicates fire on fresh market data, marana submits a market
buy or sell order, subject to position, open-order, and cash checks.`,
}

var configPath string

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "marana.yaml", "path to config file (YAML)")
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}
