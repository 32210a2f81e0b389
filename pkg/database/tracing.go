package database

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/catalogue-search/pkg/tracing"
)

const tracerName = "catalogue-search/database"

type slowQueryLog struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueries atomic.Pointer[slowQueryLog]

// SetSlowQueryLogging makes every traced query that runs for at least
// threshold emit a warning on logger. A zero threshold or nil logger turns
// it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueries.Store(nil)
		return
	}
	slowQueries.Store(&slowQueryLog{threshold: threshold, logger: logger})
}

// TraceQuery opens a client span named "db.<operation>" and returns a
// finisher to be called with the query's error once it completes:
//
//	ctx, end := database.TraceQuery(ctx, "GetReindexRun", query)
//	defer func() { end(err) }()
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		tracing.RecordError(span, err)
		span.End()
		reportSlow(ctx, operation, statement, time.Since(started), err)
	}
}

func reportSlow(ctx context.Context, operation, statement string, took time.Duration, err error) {
	cfg := slowQueries.Load()
	if cfg == nil || took < cfg.threshold {
		return
	}
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("statement", statement),
		slog.Duration("duration", took),
		slog.Duration("threshold", cfg.threshold),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	cfg.logger.LogAttrs(ctx, slog.LevelWarn, "slow query detected", attrs...)
}
