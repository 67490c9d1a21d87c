package cloudevents

import (
	"time"
)

// Event types emitted by the QR batch service
const (
	BatchQueued           = "wms.qrbatch.queued"
	BatchGenerated        = "wms.qrbatch.generated"
	BatchGenerationFailed = "wms.qrbatch.generation-failed"
	BatchPrinted          = "wms.qrbatch.printed"
	BatchCompleted        = "wms.qrbatch.completed"

	PackingQueued    = "wms.qrbatch.packing-queued"
	PackingCompleted = "wms.qrbatch.packing-completed"
	PackingFailed    = "wms.qrbatch.packing-failed"

	ReverseJobCompleted = "wms.qrbatch.reverse-job-completed"
	ReverseJobFailed    = "wms.qrbatch.reverse-job-failed"
)

// SourceQRBatch is the CloudEvents source of every event this service emits
const SourceQRBatch = "/wms/qrbatch-service"

// WMSCloudEvent is a CloudEvents v1.0 envelope with the platform extensions
type WMSCloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	CorrelationID string `json:"wmscorrelationid,omitempty"`
	WorkflowID    string `json:"wmsworkflowid,omitempty"`
	OrderID       string `json:"wmsorderid,omitempty"`
	BatchID       string `json:"wmsbatchid,omitempty"`

	// W3C trace context
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

// ExtensionHeaders returns the ce-* headers for the set extensions
func (e *WMSCloudEvent) ExtensionHeaders() map[string]string {
	headers := make(map[string]string)
	if e.CorrelationID != "" {
		headers["ce-wmscorrelationid"] = e.CorrelationID
	}
	if e.WorkflowID != "" {
		headers["ce-wmsworkflowid"] = e.WorkflowID
	}
	if e.OrderID != "" {
		headers["ce-wmsorderid"] = e.OrderID
	}
	if e.BatchID != "" {
		headers["ce-wmsbatchid"] = e.BatchID
	}
	if e.TraceParent != "" {
		headers["ce-traceparent"] = e.TraceParent
	}
	if e.TraceState != "" {
		headers["ce-tracestate"] = e.TraceState
	}
	return headers
}
