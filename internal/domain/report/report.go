package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/shared/errs"
	"bazaar/internal/domain/shared/events"
)

var (
	ErrInvalidReport = errs.New(errs.Validation, "report: invalid report")
	ErrNotFound      = errs.New(errs.NotFound, "report: not found")
)

const MaxDescriptionLength = 2000

type ID string

type Category string

const (
	CategorySpam           Category = "SPAM"
	CategoryScam           Category = "SCAM"
	CategoryHarassment     Category = "HARASSMENT"
	CategoryInappropriate  Category = "INAPPROPRIATE"
	CategoryProhibitedItem Category = "PROHIBITED_ITEM"
	CategoryOther          Category = "OTHER"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusResolved  Status = "RESOLVED"
	StatusDismissed Status = "DISMISSED"
)

type Action string

const (
	ActionNone       Action = "NONE"
	ActionWarning    Action = "WARNING"
	ActionSuspension Action = "SUSPENSION"
	ActionDeletion   Action = "DELETION"
)

func ParseCategory(raw string) (Category, error) {
	switch c := Category(strings.ToUpper(strings.TrimSpace(raw))); c {
	case CategorySpam, CategoryScam, CategoryHarassment, CategoryInappropriate, CategoryProhibitedItem, CategoryOther:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidReport, raw)
	}
}

func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(raw))); a {
	case "":
		return ActionNone, nil
	case ActionNone, ActionWarning, ActionSuspension, ActionDeletion:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidReport, raw)
	}
}

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case "", StatusPending, StatusResolved, StatusDismissed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidReport, raw)
	}
}

type Report struct {
	ID             ID
	ReporterID     string
	ConversationID conversation.ID
	ReportedUserID string
	ItemID         string
	Category       Category
	Description    string
	Status         Status
	ResolvedBy     string
	Action         Action
	AdminNotes     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Report, error)
	// List returns reports with the given status, every report when status is empty, oldest first.
	List(ctx context.Context, status Status) ([]*Report, error)
	Save(ctx context.Context, r *Report) error
}

type FileParams struct {
	ID             ID
	ReporterID     string
	ConversationID conversation.ID
	ReportedUserID string
	ItemID         string
	Category       Category
	Description    string
	CreatedAt      time.Time
}

func File(params FileParams) (*Report, error) {
	if params.ReporterID == "" || params.ReportedUserID == "" {
		return nil, fmt.Errorf("%w: reporter and reported user required", ErrInvalidReport)
	}
	if params.ReporterID == params.ReportedUserID {
		return nil, fmt.Errorf("%w: users cannot report themselves", ErrInvalidReport)
	}
	if params.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation required", ErrInvalidReport)
	}
	if _, err := ParseCategory(string(params.Category)); err != nil {
		return nil, err
	}
	desc := strings.TrimSpace(params.Description)
	if params.Category == CategoryOther && desc == "" {
		return nil, fmt.Errorf("%w: description required for OTHER", ErrInvalidReport)
	}
	if len([]rune(desc)) > MaxDescriptionLength {
		return nil, fmt.Errorf("%w: description too long", ErrInvalidReport)
	}
	now := params.CreatedAt.UTC()
	r := &Report{
		ID:             params.ID,
		ReporterID:     params.ReporterID,
		ConversationID: params.ConversationID,
		ReportedUserID: params.ReportedUserID,
		ItemID:         strings.TrimSpace(params.ItemID),
		Category:       params.Category,
		Description:    desc,
		Status:         StatusPending,
		Action:         ActionNone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.Record(Filed{ReportID: r.ID, ConversationID: r.ConversationID, ReporterID: r.ReporterID, ReportedUserID: r.ReportedUserID, Category: r.Category, At: now})
	return r, nil
}

func (r *Report) Terminal() bool {
	return r.Status != StatusPending
}

// Resolve closes a pending report with an action. It reports false without changes when the
// report is already closed.
func (r *Report) Resolve(adminID string, action Action, notes string, now time.Time) (bool, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return false, err
	}
	if action == "" {
		action = ActionNone
	}
	return r.close(StatusResolved, adminID, action, notes, now)
}

func (r *Report) Dismiss(adminID, notes string, now time.Time) (bool, error) {
	return r.close(StatusDismissed, adminID, ActionNone, notes, now)
}

func (r *Report) close(status Status, adminID string, action Action, notes string, now time.Time) (bool, error) {
	if strings.TrimSpace(adminID) == "" {
		return false, fmt.Errorf("%w: moderator required", ErrInvalidReport)
	}
	if r.Terminal() {
		return false, nil
	}
	r.Status = status
	r.ResolvedBy = adminID
	r.Action = action
	r.AdminNotes = strings.TrimSpace(notes)
	r.UpdatedAt = now.UTC()
	r.Record(Closed{
		ReportID:       r.ID,
		ConversationID: r.ConversationID,
		ReportedUserID: r.ReportedUserID,
		Status:         r.Status,
		Action:         r.Action,
		ResolvedBy:     adminID,
		At:             r.UpdatedAt,
	})
	return true, nil
}
