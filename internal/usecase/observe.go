package usecase

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/arklim/authflow/internal/usecase")

// OperationObserver records the outcome of each flow operation.
type OperationObserver interface {
	ObserveOperation(operation, outcome string)
}

type noopObserver struct{}

func (noopObserver) ObserveOperation(string, string) {}

const outcomeSuccess = "success"

// traceOperation starts a span and returns a completion func that records
// the outcome on the span and the observer.
func traceOperation(ctx context.Context, observer OperationObserver, operation string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, operation, trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, func(err error) {
		outcome := outcomeSuccess
		if err != nil {
			outcome = CodeOf(err)
			if KindOf(err) == KindInternal {
				span.RecordError(err)
			}
			span.SetStatus(codes.Error, outcome)
		}
		observer.ObserveOperation(operation, outcome)
		span.End()
	}
}
