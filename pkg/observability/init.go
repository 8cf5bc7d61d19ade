package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "embedtree"

// Standard OTel sampler environment variables.
const (
	envTracesSampler    = "OTEL_TRACES_SAMPLER"
	envTracesSamplerArg = "OTEL_TRACES_SAMPLER_ARG"
)

// envSamplers maps OTEL_TRACES_SAMPLER values to samplers built from the
// parsed OTEL_TRACES_SAMPLER_ARG ratio.
var envSamplers = map[string]func(ratio float64) sdktrace.Sampler{
	"always_on":  func(float64) sdktrace.Sampler { return sdktrace.AlwaysSample() },
	"always_off": func(float64) sdktrace.Sampler { return sdktrace.NeverSample() },
	"traceidratio": func(ratio float64) sdktrace.Sampler {
		return sdktrace.TraceIDRatioBased(ratio)
	},
	"parentbased_always_on": func(float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	},
	"parentbased_always_off": func(float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.NeverSample())
	},
	"parentbased_traceidratio": func(ratio float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	},
}

// Providers holds the initialized observability providers.
type Providers struct {
	// Tracer is the named tracer for creating spans.
	Tracer trace.Tracer

	// Meter is the named meter for creating instruments.
	Meter metric.Meter

	// Logger is the context-aware structured logger.
	Logger *slog.Logger

	// Shutdown flushes all pending telemetry and releases resources.
	// Must be called before process exit.
	Shutdown func(ctx context.Context) error
}

// Option customizes Init.
type Option func(*initOptions)

type initOptions struct {
	readers []sdkmetric.Reader
}

// WithMetricReader attaches an additional metric reader, such as a Prometheus
// exporter, to the meter provider. A reader forces an SDK meter provider even
// when no OTLP endpoint is configured.
func WithMetricReader(reader sdkmetric.Reader) Option {
	return func(opts *initOptions) {
		opts.readers = append(opts.readers, reader)
	}
}

type shutdownFunc func(ctx context.Context) error

// shutdownStack releases providers in the reverse order of their creation.
type shutdownStack []shutdownFunc

func (stack shutdownStack) run(ctx context.Context) error {
	var errs []error

	for _, shutdown := range slices.Backward(stack) {
		errs = append(errs, shutdown(ctx))
	}

	return errors.Join(errs...)
}

// Init initializes OpenTelemetry tracing, metrics, and structured logging.
// With no OTLPEndpoint and no attached reader the providers are no-ops.
func Init(cfg Config, options ...Option) (Providers, error) {
	ctx := context.Background()

	var opts initOptions
	for _, option := range options {
		option(&opts)
	}

	res, err := resource.New(ctx, resource.WithAttributes(resourceAttrs(cfg)...))
	if err != nil {
		return Providers{}, fmt.Errorf("build otel resource: %w", err)
	}

	target := exportTarget{endpoint: cfg.OTLPEndpoint, headers: cfg.OTLPHeaders, insecure: cfg.OTLPInsecure}

	var stack shutdownStack

	tp, err := buildTracerProvider(ctx, target, res, selectSampler(cfg), &stack)
	if err != nil {
		return Providers{}, errors.Join(fmt.Errorf("build tracer provider: %w", err), stack.run(ctx))
	}

	mp, err := buildMeterProvider(ctx, target, res, opts.readers, &stack)
	if err != nil {
		return Providers{}, errors.Join(fmt.Errorf("build meter provider: %w", err), stack.run(ctx))
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	timeout := time.Duration(cfg.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(defaultShutdownTimeoutSec) * time.Second
	}

	return Providers{
		Tracer: tp.Tracer(instrumentationName),
		Meter:  mp.Meter(instrumentationName),
		Logger: buildLogger(cfg),
		Shutdown: func(shutdownCtx context.Context) error {
			deadlineCtx, cancel := context.WithTimeout(shutdownCtx, timeout)
			defer cancel()

			return stack.run(deadlineCtx)
		},
	}, nil
}

func resourceAttrs(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}

	if cfg.Mode != "" {
		attrs = append(attrs, attribute.String("app.mode", string(cfg.Mode)))
	}

	return attrs
}

// exportTarget is the OTLP collector shared by the trace and metric exporters.
type exportTarget struct {
	headers  map[string]string
	endpoint string
	insecure bool
}

func (target exportTarget) enabled() bool {
	return target.endpoint != ""
}

func (target exportTarget) traceOptions() []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target.endpoint)}

	if target.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if len(target.headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(target.headers))
	}

	return opts
}

func (target exportTarget) metricOptions() []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target.endpoint)}

	if target.insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	if len(target.headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(target.headers))
	}

	return opts
}

func buildTracerProvider(
	ctx context.Context, target exportTarget, res *resource.Resource, sampler sdktrace.Sampler, stack *shutdownStack,
) (trace.TracerProvider, error) {
	if !target.enabled() {
		return nooptrace.NewTracerProvider(), nil
	}

	exporter, err := otlptracegrpc.New(ctx, target.traceOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	*stack = append(*stack, tp.Shutdown)

	return tp, nil
}

func buildMeterProvider(
	ctx context.Context, target exportTarget, res *resource.Resource, readers []sdkmetric.Reader, stack *shutdownStack,
) (metric.MeterProvider, error) {
	if !target.enabled() && len(readers) == 0 {
		return noopmetric.NewMeterProvider(), nil
	}

	providerOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, reader := range readers {
		providerOpts = append(providerOpts, sdkmetric.WithReader(reader))
	}

	if target.enabled() {
		exporter, err := otlpmetricgrpc.New(ctx, target.metricOptions()...)
		if err != nil {
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}

		providerOpts = append(providerOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}

	mp := sdkmetric.NewMeterProvider(providerOpts...)
	*stack = append(*stack, mp.Shutdown)

	return mp, nil
}

// selectSampler prefers DebugTrace, then the OTel environment, then
// SampleRatio. Unknown environment samplers fall back to parent-based
// always-on.
func selectSampler(cfg Config) sdktrace.Sampler {
	fallback := sdktrace.ParentBased(sdktrace.AlwaysSample())

	switch {
	case cfg.DebugTrace:
		return sdktrace.AlwaysSample()
	case os.Getenv(envTracesSampler) != "":
		build, ok := envSamplers[os.Getenv(envTracesSampler)]
		if !ok {
			return fallback
		}

		return build(parseRatio(os.Getenv(envTracesSamplerArg)))
	case cfg.SampleRatio > 0:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	default:
		return fallback
	}
}

func buildLogger(cfg Config) *slog.Logger {
	var out io.Writer = os.Stderr
	if cfg.LogOutput != nil {
		out = cfg.LogOutput
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}

	inner := slog.Handler(slog.NewTextHandler(out, handlerOpts))
	if cfg.LogJSON {
		inner = slog.NewJSONHandler(out, handlerOpts)
	}

	return slog.New(NewTracingHandler(inner, cfg.ServiceName, cfg.Environment, cfg.Mode))
}

// ParseOTLPHeaders parses an OTLP headers string in "key=value,key=value"
// format. Returns nil for empty or invalid input.
func ParseOTLPHeaders(raw string) map[string]string {
	result := make(map[string]string)

	for pair := range strings.SplitSeq(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok {
			result[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// parseRatio reads a sampler ratio, defaulting to 1 when absent or invalid.
func parseRatio(raw string) float64 {
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 1
	}

	return ratio
}
