package handler

import (
	"time"

	audit "baseid/pkg/platform/audit"
)

type auditEvent struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	ActorDID  string    `json:"actorDid,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type auditResponse struct {
	Events []auditEvent `json:"events"`
}

// toAuditResponse drops request metadata (client IP, user agent) from the
// events before they leave the registry.
func toAuditResponse(events []audit.Event) auditResponse {
	out := auditResponse{Events: make([]auditEvent, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, auditEvent{
			ID:        e.ID.String(),
			Category:  string(e.Category),
			Action:    e.Action,
			Subject:   e.Subject,
			Reason:    e.Reason,
			ActorDID:  e.ActorDID,
			Timestamp: e.Timestamp,
		})
	}
	return out
}
