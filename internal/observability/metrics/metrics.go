package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes points economy instruments.
type Metrics struct {
	earnOutcomes  metric.Int64Counter
	pointsCredit  metric.Int64Counter
	spendOutcomes metric.Int64Counter
	pointsDebit   metric.Int64Counter
	fraudActions  metric.Int64Counter
	riskScores    metric.Int64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the points instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "edupoints"
	}
	meter := provider.Meter(name)

	earnOutcomes, err := meter.Int64Counter("edupoints_earn_requests_total")
	if err != nil {
		return nil, err
	}
	pointsCredit, err := meter.Int64Counter("edupoints_points_credited_total")
	if err != nil {
		return nil, err
	}
	spendOutcomes, err := meter.Int64Counter("edupoints_spend_requests_total")
	if err != nil {
		return nil, err
	}
	pointsDebit, err := meter.Int64Counter("edupoints_points_debited_total")
	if err != nil {
		return nil, err
	}
	fraudActions, err := meter.Int64Counter("edupoints_fraud_assessments_total")
	if err != nil {
		return nil, err
	}
	riskScores, err := meter.Int64Histogram("edupoints_fraud_risk_score")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		earnOutcomes:  earnOutcomes,
		pointsCredit:  pointsCredit,
		spendOutcomes: spendOutcomes,
		pointsDebit:   pointsDebit,
		fraudActions:  fraudActions,
		riskScores:    riskScores,
	}, nil
}

// RecordEarn counts an earn outcome. An empty reason means the earn was credited.
func (m *Metrics) RecordEarn(ctx context.Context, category, reason string, credited int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("category", strings.TrimSpace(category)),
		attribute.String("outcome", outcome(reason)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.earnOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
	if credited > 0 {
		m.pointsCredit.Add(ctx, credited, metric.WithAttributes(FilterAttributes(
			attribute.String("category", strings.TrimSpace(category)),
		)...))
	}
}

func (m *Metrics) RecordSpend(ctx context.Context, category, reason string, debited int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("category", strings.TrimSpace(category)),
		attribute.String("outcome", outcome(reason)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.spendOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
	if debited > 0 {
		m.pointsDebit.Add(ctx, debited, metric.WithAttributes(FilterAttributes(
			attribute.String("category", strings.TrimSpace(category)),
		)...))
	}
}

// RecordFraudAssessment counts the action and records the score distribution.
func (m *Metrics) RecordFraudAssessment(ctx context.Context, action string, score int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.fraudActions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.riskScores.Record(ctx, int64(score))
}

func outcome(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return "accepted"
	}
	return "rejected"
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// user_id is never a label.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"category":    {},
	"outcome":     {},
	"reason":      {},
	"action":      {},
	"operation":   {},
	"route":       {},
	"method":      {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
