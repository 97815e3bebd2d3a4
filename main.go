package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"medagentx/analyzer"
	"medagentx/client"
	"medagentx/config"
	"medagentx/form"
)

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "medagentx",
	Short: "MedAgentX report analyzer",
	Long: `MedAgentX serves a form for pasting a medical report, checks that the text
looks like a medical report, and shows the cardiologist, psychologist,
pulmonologist and summary sections returned by the analysis service.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath, !cmd.Flags().Changed("config"))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger, err = buildLogger(cfg.Log, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.json", "path to config.json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")
	rootCmd.AddCommand(serveCmd, backendCmd, validateCmd, analyzeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildLogger(lc config.LogConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if lc.Level != "" {
		level, err := zapcore.ParseLevel(lc.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

// buildAnalyzer returns the HTTP client for the configured endpoint, or an
// in-process analyzer when the endpoint is empty and an llm block is set.
func buildAnalyzer(endpoint string) (form.Analyzer, error) {
	if endpoint != "" {
		return client.New(endpoint, nil, cfg.RequestTimeout.Duration(), logger.Named("client"))
	}
	return buildLocalAnalyzer()
}

func buildLocalAnalyzer() (*analyzer.Analyzer, error) {
	llm, err := analyzer.NewLLM(cfg.LLMSettings())
	if err != nil {
		return nil, err
	}
	return analyzer.New(llm, logger.Named("analyzer"))
}
