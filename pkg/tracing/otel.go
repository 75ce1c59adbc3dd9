// Copyright 2026 ACT-1-The-Prophecy
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartTaskSpan 开始单次任务处理 span
func StartTaskSpan(ctx context.Context, taskID string, source string) (context.Context, trace.Span) {
	tracer := otel.Tracer("act-marketplace")
	ctx, span := tracer.Start(ctx, "task.process",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.source", source),
		),
	)
	return ctx, span
}

// StartSubmitSpan 开始结果提交 span（含重试全过程）
func StartSubmitSpan(ctx context.Context, taskID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("act-marketplace")
	ctx, span := tracer.Start(ctx, "task.submit",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
		),
	)
	return ctx, span
}

// StartScanSpan 开始追赶扫描 span
func StartScanSpan(ctx context.Context, fromBlock, toBlock uint64) (context.Context, trace.Span) {
	tracer := otel.Tracer("act-marketplace")
	ctx, span := tracer.Start(ctx, "reconcile.scan",
		trace.WithAttributes(
			attribute.Int64("scan.from_block", int64(fromBlock)),
			attribute.Int64("scan.to_block", int64(toBlock)),
		),
	)
	return ctx, span
}
