package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/sanosuguru/go-event-price-tracker"

// Config はトレースの設定
type Config struct {
	Enabled     bool
	ServiceName string
	Environment string
	Endpoint    string // OTLP/HTTP の host:port
	SampleRatio float64
}

// Telemetry はトレーサープロバイダーとトレーサーを保持する
type Telemetry struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

var global = &Telemetry{tracer: noop.NewTracerProvider().Tracer(instrumentationName)}

// Init はトレースを初期化する
// 無効な場合は no-op のトレーサーを設定し、エクスポーターは作らない
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		global = &Telemetry{tracer: noop.NewTracerProvider().Tracer(instrumentationName)}
		return global, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("OTLPエクスポーター作成に失敗: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("リソース作成に失敗: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	global = &Telemetry{provider: provider, tracer: provider.Tracer(instrumentationName)}
	return global, nil
}

// Shutdown は未送信のスパンを送信してプロバイダーを停止する
func Shutdown(ctx context.Context) error {
	if global.provider == nil {
		return nil
	}
	return global.provider.Shutdown(ctx)
}

// SetTracerProvider はテスト用にトレーサープロバイダーを差し替える
func SetTracerProvider(tp trace.TracerProvider) {
	global = &Telemetry{tracer: tp.Tracer(instrumentationName)}
}

// StartSpan は新しいスパンを開始する
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return global.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError はスパンにエラーを記録しステータスを Error にする
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID はコンテキストのトレースIDを返す。無い場合は空文字
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
