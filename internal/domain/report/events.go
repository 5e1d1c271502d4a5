package report

import (
	"time"

	"bazaar/internal/domain/conversation"
)

type Filed struct {
	ReportID       ID              `json:"report_id"`
	ConversationID conversation.ID `json:"conversation_id"`
	ReporterID     string          `json:"reporter_id"`
	ReportedUserID string          `json:"reported_user_id"`
	Category       Category        `json:"category"`
	At             time.Time       `json:"at"`
}

func (e Filed) EventName() string     { return "report.filed" }
func (e Filed) AggregateID() string   { return string(e.ReportID) }
func (e Filed) OccurredAt() time.Time { return e.At }
func (e Filed) ThreadID() string      { return string(e.ConversationID) }

// Closed is recorded when a report is resolved or dismissed.
type Closed struct {
	ReportID       ID              `json:"report_id"`
	ConversationID conversation.ID `json:"conversation_id"`
	ReportedUserID string          `json:"reported_user_id"`
	Status         Status          `json:"status"`
	Action         Action          `json:"action"`
	ResolvedBy     string          `json:"resolved_by"`
	At             time.Time       `json:"at"`
}

func (e Closed) EventName() string     { return "report.closed" }
func (e Closed) AggregateID() string   { return string(e.ReportID) }
func (e Closed) OccurredAt() time.Time { return e.At }
func (e Closed) ThreadID() string      { return string(e.ConversationID) }
