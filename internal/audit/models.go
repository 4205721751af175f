package audit

import "time"

// EventType names what happened. Values are stable: they end up in Kafka and
// downstream compliance tooling keys on them.
type EventType string

const (
	EventNegotiationStarted    EventType = "negotiation_started"
	EventNegotiationApproved   EventType = "negotiation_approved"
	EventContinuationRejected  EventType = "continuation_rejected"
	EventVerificationSucceeded EventType = "verification_succeeded"
	EventVerificationFailed    EventType = "verification_failed"
	EventCredentialIssued      EventType = "credential_issued"
	EventPresentationIssued    EventType = "presentation_issued"
)

// Event is one append-only audit record.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Subject   string            `json:"subject"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
