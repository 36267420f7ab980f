package runtime

import (
	"context"
	"log/slog"

	"github.com/drksbr/browserrelay/internal/config"
	"github.com/drksbr/browserrelay/internal/logger"
	"github.com/drksbr/browserrelay/internal/observability"
	"github.com/drksbr/browserrelay/internal/version"
)

// Options carries the flags shared by every subcommand.
type Options struct {
	JSONLogs bool
	LogLevel string
	EnvFile  string

	Environment     string
	TracingEnabled  bool
	TracingExporter string
	TracingEndpoint string
	TracingInsecure bool
	TracingSample   float64

	logger *logger.Logger
}

// ApplyEnv fills unset options from BROWSERRELAY_* variables.
func (o *Options) ApplyEnv() {
	o.JSONLogs = o.JSONLogs || config.GetBoolEnv("JSON_LOGS", false)
	if o.LogLevel == "" || o.LogLevel == "info" {
		o.LogLevel = config.GetStringEnv("LOG_LEVEL", o.LogLevel)
	}
	if o.Environment == "" {
		o.Environment = config.GetStringEnv("ENV", "")
	}
	o.TracingEnabled = o.TracingEnabled || config.GetBoolEnv("TRACING", false)
	if o.TracingExporter == "" {
		o.TracingExporter = config.GetStringEnv("TRACING_EXPORTER", "")
	}
	if o.TracingEndpoint == "" {
		o.TracingEndpoint = config.GetStringEnv("TRACING_ENDPOINT", "")
	}
	o.TracingInsecure = o.TracingInsecure || config.GetBoolEnv("TRACING_INSECURE", false)
	if o.TracingSample == 1 {
		o.TracingSample = config.GetFloatEnv("TRACING_SAMPLE_RATIO", 1)
	}
}

func (o *Options) SetupLogger() error {
	if err := config.LoadEnvFile(o.EnvFile); err != nil {
		return err
	}
	o.ApplyEnv()

	format := logger.FormatText
	if o.JSONLogs {
		format = logger.FormatJSON
	}
	l, err := logger.New(logger.Config{
		Format:      format,
		Level:       o.LogLevel,
		Environment: o.Environment,
		Version:     version.Version,
	})
	if err != nil {
		return err
	}
	o.logger = l
	return nil
}

func (o *Options) Logger() *slog.Logger {
	if o.logger == nil {
		return logger.Discard()
	}
	return o.logger.Logger
}

// ComponentLogger returns the shared logger tagged with component.
func (o *Options) ComponentLogger(component string) *slog.Logger {
	if o.logger == nil {
		return logger.Discard()
	}
	return o.logger.WithComponent(component)
}

// SetupTracing installs the global tracer provider. The returned func flushes exporters.
func (o *Options) SetupTracing(ctx context.Context) (func(context.Context) error, error) {
	return observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     o.TracingEnabled,
		Exporter:    o.TracingExporter,
		ServiceName: "browserrelay",
		Version:     version.Version,
		Environment: o.Environment,
		Endpoint:    o.TracingEndpoint,
		Insecure:    o.TracingInsecure,
		SampleRatio: o.TracingSample,
	})
}
