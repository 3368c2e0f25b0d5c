package main

import (
	"fmt"
	"log"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"orderstream/internal/metrics"
	"orderstream/internal/tracing"
)

// Version information (set via ldflags during build)
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "orderstream",
	Short: "Synthetic retail order stream generator and tracker",
	Long: `Orderstream produces a paced stream of synthetic retail order events
to a Kafka topic and consumes it back with manual offset commits,
measuring delivery acknowledgment and end-to-end latency along the way.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"orderstream version %s (commit %s)\n", Version, Commit,
	))

	rootCmd.AddCommand(produceCmd)
	rootCmd.AddCommand(produceInvalidCmd)
	rootCmd.AddCommand(consumeCmd)
	rootCmd.AddCommand(resetCmd)
}

// ambientConfig carries the settings that are not part of the CLI surface:
// logging, the metrics endpoint, tracing, and producer buffer sizing.
type ambientConfig struct {
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
	MaxBufferedRecords int    `env:"MAX_BUFFERED_RECORDS" envDefault:"10000"`
	GeneratorSeed      int64  `env:"GENERATOR_SEED" envDefault:"0"`
	TracingEnabled     bool   `env:"TRACING_ENABLED" envDefault:"false"`

	Metrics metrics.ServerConfig
	Tracing tracing.Config
}

func loadAmbientConfig() (ambientConfig, error) {
	var cfg ambientConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		log.Printf("invalid log level %q, defaulting to info: %v", level, err)
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
