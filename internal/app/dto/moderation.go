package dto

import (
	"time"

	"bazaar/internal/domain/block"
	"bazaar/internal/domain/report"
)

type BlockEntry struct {
	ActorID   string    `json:"actor_id"`
	TargetID  string    `json:"target_id"`
	Blocked   bool      `json:"blocked"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BlockList struct {
	Items []BlockEntry `json:"items"`
}

func MapBlock(e *block.Entry) BlockEntry {
	return BlockEntry{ActorID: e.ActorID, TargetID: e.TargetID, Blocked: e.Blocked, UpdatedAt: e.UpdatedAt}
}

type Report struct {
	ID             string    `json:"id"`
	ReporterID     string    `json:"reporter_id"`
	ConversationID string    `json:"conversation_id"`
	ReportedUserID string    `json:"reported_user_id"`
	ItemID         string    `json:"item_id,omitempty"`
	Category       string    `json:"category"`
	Description    string    `json:"description,omitempty"`
	Status         string    `json:"status"`
	Action         string    `json:"action"`
	ResolvedBy     string    `json:"resolved_by,omitempty"`
	AdminNotes     string    `json:"admin_notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ReportList struct {
	Items []Report `json:"items"`
}

func MapReport(r *report.Report) Report {
	return Report{
		ID:             string(r.ID),
		ReporterID:     r.ReporterID,
		ConversationID: string(r.ConversationID),
		ReportedUserID: r.ReportedUserID,
		ItemID:         r.ItemID,
		Category:       string(r.Category),
		Description:    r.Description,
		Status:         string(r.Status),
		Action:         string(r.Action),
		ResolvedBy:     r.ResolvedBy,
		AdminNotes:     r.AdminNotes,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
