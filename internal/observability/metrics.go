package observability

import (
	"context"
	"sync"
	"time"

	"collegefeedback/internal/config"
	contextutils "collegefeedback/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes an OpenTelemetry MeterProvider with an OTLP exporter
func InitMetrics(cfg *config.OpenTelemetryConfig) (result0 *metric.MeterProvider, err error) {
	ctx := context.Background()

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var exporter metric.Exporter
	switch cfg.Protocol {
	case "grpc", "":
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otlp grpc metric exporter: %w", err)
		}
	case "http":
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otlp http metric exporter: %w", err)
		}
	default:
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unsupported otel protocol: %s", cfg.Protocol)
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter)),
		metric.WithResource(res),
	)
	return mp, nil
}

// feedbackInstruments are created lazily against whatever meter provider is
// global at first use; with no provider installed they are no-ops.
type feedbackInstruments struct {
	transitions   otelmetric.Int64Counter
	denials       otelmetric.Int64Counter
	notifications otelmetric.Int64Counter
	requests      otelmetric.Float64Histogram
}

var (
	instrumentsOnce sync.Once
	instruments     feedbackInstruments
)

func getInstruments() feedbackInstruments {
	instrumentsOnce.Do(func() {
		meter := otel.Meter("collegefeedback")
		instruments.transitions, _ = meter.Int64Counter("feedback.transitions",
			otelmetric.WithDescription("Ticket lifecycle transitions by action and status pair"))
		instruments.denials, _ = meter.Int64Counter("feedback.permission_denied",
			otelmetric.WithDescription("Actions rejected by the authorization resolver"))
		instruments.notifications, _ = meter.Int64Counter("feedback.notifications",
			otelmetric.WithDescription("Notification observer deliveries by observer and outcome"))
		instruments.requests, _ = meter.Float64Histogram("http.server.request.duration",
			otelmetric.WithDescription("API request latency by route and status"),
			otelmetric.WithUnit("ms"))
	})
	return instruments
}

// RecordTransition counts a committed status or assignment change
func RecordTransition(ctx context.Context, action, from, to string) {
	if c := getInstruments().transitions; c != nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("action", action),
			attribute.String("from", from),
			attribute.String("to", to),
		))
	}
}

// RecordPermissionDenied counts a capability check failure
func RecordPermissionDenied(ctx context.Context, action, role string) {
	if c := getInstruments().denials; c != nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("action", action),
			attribute.String("role", role),
		))
	}
}

// RecordNotification counts an observer delivery attempt
func RecordNotification(ctx context.Context, observer, eventType string, ok bool) {
	if c := getInstruments().notifications; c != nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("observer", observer),
			attribute.String("event", eventType),
			attribute.Bool("ok", ok),
		))
	}
}

// RecordRequestDuration observes one served request. route is the matched
// pattern so ticket ids do not explode the attribute set.
func RecordRequestDuration(ctx context.Context, method, route string, status int, d time.Duration) {
	if h := getInstruments().requests; h != nil {
		h.Record(ctx, float64(d.Microseconds())/1000, otelmetric.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		))
	}
}
