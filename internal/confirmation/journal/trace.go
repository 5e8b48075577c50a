package journal

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// TraceInfo holds the OTel identifiers extracted from a context.
type TraceInfo struct {
	TraceID string
	SpanID  string
}

// ExtractTraceInfo reads the active span from ctx. Both fields are empty when
// ctx carries no valid span.
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// NewEntry builds an entry stamped with the trace info from ctx and the
// current UTC time.
//
//	entry := journal.NewEntry(ctx, orderID, "completed", journal.DecisionReplayed)
//	entry.Status, entry.Version = string(order.Status), order.Version
func NewEntry(ctx context.Context, orderID, desired string, decision Decision) *Entry {
	ti := ExtractTraceInfo(ctx)
	return &Entry{
		OrderID:    orderID,
		Desired:    desired,
		Decision:   decision,
		TraceID:    ti.TraceID,
		SpanID:     ti.SpanID,
		RecordedAt: time.Now().UTC(),
	}
}
