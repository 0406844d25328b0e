// Package telemetry настраивает распределённую трассировку для
// recorder/replayer компонентов и их HTTP-поверхности.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/replaycore/internal/replaylog"
)

// Init настраивает OTLP HTTP экспортер (по умолчанию localhost:4318) и
// устанавливает глобальный TracerProvider. Возвращённая функция должна быть
// вызвана при завершении работы процесса.
func Init(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	replaylog.GetLogger("telemetry").Info("трассировка инициализирована (OTLP -> 4318, service=%s)", serviceName)

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
	return shutdown, nil
}

// Tracer возвращает именованный tracer для ручной инструментации внутри
// recorder/replayer операций (span-ы recorder.flushSegment,
// segment.loadSegment и replayer.processTickAndScheduleNext).
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
