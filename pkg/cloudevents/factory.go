package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// EventFactory builds CloudEvents stamped with a fixed source
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new event and copies the active trace context onto it
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *WMSCloudEvent {
	event := &WMSCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	event.TraceParent = carrier.Get("traceparent")
	event.TraceState = carrier.Get("tracestate")

	return event
}

// CreateBatchEvent creates an event whose subject is the batch
func (f *EventFactory) CreateBatchEvent(ctx context.Context, eventType, batchID, orderID string, data interface{}) *WMSCloudEvent {
	event := f.CreateEvent(ctx, eventType, "batch/"+batchID, data)
	event.BatchID = batchID
	event.OrderID = orderID
	return event
}

// WithCorrelation sets the correlation and workflow extensions
func (e *WMSCloudEvent) WithCorrelation(correlationID, workflowID string) *WMSCloudEvent {
	e.CorrelationID = correlationID
	e.WorkflowID = workflowID
	return e
}
