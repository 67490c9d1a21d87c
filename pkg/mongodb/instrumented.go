package mongodb

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/metrics"
)

// ignoredCommands are driver housekeeping commands not worth a span
var ignoredCommands = map[string]bool{
	"hello":        true,
	"isMaster":     true,
	"ping":         true,
	"saslStart":    true,
	"saslContinue": true,
	"endSessions":  true,
}

type commandInstrumentation struct {
	metrics *metrics.Metrics
	logger  *logging.Logger
	tracer  trace.Tracer
	spans   sync.Map // requestID -> inflightCommand
}

type inflightCommand struct {
	span       trace.Span
	collection string
}

// NewCommandMonitor returns a driver CommandMonitor that records metrics,
// debug logs and client spans for every command the service issues.
func NewCommandMonitor(m *metrics.Metrics, logger *logging.Logger) *event.CommandMonitor {
	ci := &commandInstrumentation{
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("mongodb"),
	}
	return &event.CommandMonitor{
		Started:   ci.started,
		Succeeded: ci.succeeded,
		Failed:    ci.failed,
	}
}

func collectionFromCommand(name string, cmd bson.Raw) string {
	if cmd == nil {
		return ""
	}
	if v, err := cmd.LookupErr(name); err == nil {
		if s, ok := v.StringValueOK(); ok {
			return s
		}
	}
	return ""
}

func (ci *commandInstrumentation) started(ctx context.Context, evt *event.CommandStartedEvent) {
	if ignoredCommands[evt.CommandName] {
		return
	}
	collection := collectionFromCommand(evt.CommandName, evt.Command)
	_, span := ci.tracer.Start(ctx, "mongodb."+evt.CommandName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMongoDB,
			semconv.DBNameKey.String(evt.DatabaseName),
			semconv.DBOperationKey.String(evt.CommandName),
			attribute.String("db.collection", collection),
		),
	)
	ci.spans.Store(evt.RequestID, inflightCommand{span: span, collection: collection})
}

func (ci *commandInstrumentation) finish(ctx context.Context, evt event.CommandFinishedEvent, err error) {
	if ignoredCommands[evt.CommandName] {
		return
	}
	value, ok := ci.spans.LoadAndDelete(evt.RequestID)
	if !ok {
		return
	}
	inflight := value.(inflightCommand)

	success := err == nil
	if success {
		inflight.span.SetStatus(codes.Ok, "")
	} else {
		inflight.span.RecordError(err)
		inflight.span.SetStatus(codes.Error, err.Error())
	}
	inflight.span.End()

	ci.metrics.RecordMongoDBOperation(inflight.collection, evt.CommandName, success, evt.Duration)
	if ci.logger != nil {
		ci.logger.DatabaseQuery(ctx, inflight.collection, evt.CommandName, evt.Duration, success, 0)
	}
}

func (ci *commandInstrumentation) succeeded(ctx context.Context, evt *event.CommandSucceededEvent) {
	ci.finish(ctx, evt.CommandFinishedEvent, nil)
}

func (ci *commandInstrumentation) failed(ctx context.Context, evt *event.CommandFailedEvent) {
	ci.finish(ctx, evt.CommandFinishedEvent, commandFailure(evt.Failure))
}

type commandFailure string

func (f commandFailure) Error() string { return string(f) }
