package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drksbr/browserrelay/internal/automation"
	"github.com/drksbr/browserrelay/internal/config"
	"github.com/drksbr/browserrelay/internal/relay"
	"github.com/drksbr/browserrelay/internal/runtime"
	"github.com/drksbr/browserrelay/internal/version"
)

func Execute() error {
	// Subcommands read env defaults while their flags are declared, so the
	// default .env has to be in place before the tree is built.
	if err := config.LoadEnvFile(config.GetStringEnv("ENV_FILE", ".env")); err != nil {
		return err
	}
	opts := &runtime.Options{
		LogLevel: "info",
		EnvFile:  ".env",
	}
	cmd := newRootCommand(opts)
	return cmd.Execute()
}

func newRootCommand(opts *runtime.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "browserrelay",
		Short:        "Local proxy relays and CDP automation for browser profiles",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.SetupLogger()
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&opts.JSONLogs, "json-logs", false, "emit logs in JSON format")
	flags.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&opts.EnvFile, "env-file", opts.EnvFile, "dotenv file loaded before configuration is read")
	flags.StringVar(&opts.Environment, "env", "", "deployment environment attached to logs and traces")
	flags.BoolVar(&opts.TracingEnabled, "tracing", false, "export OpenTelemetry traces")
	flags.StringVar(&opts.TracingExporter, "tracing-exporter", "", "trace exporter (stdout, otlp-grpc, otlp-http); default stdout")
	flags.StringVar(&opts.TracingEndpoint, "tracing-endpoint", "", "OTLP collector endpoint")
	flags.BoolVar(&opts.TracingInsecure, "tracing-insecure", false, "disable TLS for the OTLP exporter")
	flags.Float64Var(&opts.TracingSample, "tracing-sample-ratio", 1, "fraction of tasks traced")

	cmd.AddCommand(relay.NewCommand(opts))
	cmd.AddCommand(automation.NewCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	})

	return cmd
}
