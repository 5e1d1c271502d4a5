package reports

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/dto"
	"bazaar/internal/app/handlers/support"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/middleware"
	"bazaar/internal/app/outbox"
	"bazaar/internal/app/queries"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/offer"
	"bazaar/internal/domain/report"
)

const (
	FileReportKey    = "reports.file"
	ResolveReportKey = "reports.resolve"
	DismissReportKey = "reports.dismiss"
	ListReportsKey   = "reports.list"
)

// FileReportCommand reports the counterpart of a conversation.
type FileReportCommand struct {
	Actor           identity.Principal
	ConversationID  string
	ItemID          string
	Category        string
	Description     string
	IdempotencyKeyV string
}

func (c FileReportCommand) Key() string                         { return FileReportKey }
func (c FileReportCommand) ActingPrincipal() identity.Principal { return c.Actor }
func (c FileReportCommand) ResultPrototype() any                { return &dto.Report{} }
func (c FileReportCommand) IdempotencyKey() string {
	if c.IdempotencyKeyV == "" {
		return ""
	}
	return c.Actor.UserID + ":" + c.IdempotencyKeyV
}

type ResolveReportCommand struct {
	Actor    identity.Principal
	ReportID string
	Action   string
	Notes    string
}

func (c ResolveReportCommand) Key() string                         { return ResolveReportKey }
func (c ResolveReportCommand) ActingPrincipal() identity.Principal { return c.Actor }
func (c ResolveReportCommand) RequiresModerator() bool             { return true }

type DismissReportCommand struct {
	Actor    identity.Principal
	ReportID string
	Notes    string
}

func (c DismissReportCommand) Key() string                         { return DismissReportKey }
func (c DismissReportCommand) ActingPrincipal() identity.Principal { return c.Actor }
func (c DismissReportCommand) RequiresModerator() bool             { return true }

type Handler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h *Handler) File(ctx context.Context, cmd FileReportCommand) (*dto.Report, error) {
	category, err := report.ParseCategory(cmd.Category)
	if err != nil {
		return nil, err
	}
	unit, err := support.OpenUnit(ctx, h.UoWFactory, uow.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer unit.Close()

	conv, err := unit.Conversations().ByID(unit.Ctx, conversation.ID(strings.TrimSpace(cmd.ConversationID)))
	if err != nil {
		return nil, err
	}
	reported, err := conv.Counterpart(cmd.Actor.UserID)
	if err != nil {
		return nil, err
	}
	now := h.now()
	r, err := report.File(report.FileParams{
		ID:             report.ID(uuid.NewString()),
		ReporterID:     cmd.Actor.UserID,
		ConversationID: conv.ID,
		ReportedUserID: reported,
		ItemID:         cmd.ItemID,
		Category:       category,
		Description:    cmd.Description,
		CreatedAt:      now,
	})
	if err != nil {
		return nil, err
	}
	conv.RecordReport(now)
	if err := unit.Reports().Save(unit.Ctx, r); err != nil {
		return nil, err
	}
	if err := unit.Conversations().Save(unit.Ctx, conv); err != nil {
		return nil, err
	}
	if err := outbox.RecordDomainEvents(unit.Ctx, h.Outbox, h.Encoder, r.PullEvents()); err != nil {
		return nil, err
	}
	if err := unit.Commit(); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("report filed", "report_id", r.ID, "conversation_id", conv.ID, "reporter_id", r.ReporterID, "reported_user_id", reported, "category", category)
	}
	out := dto.MapReport(r)
	return &out, nil
}

func (h *Handler) Resolve(ctx context.Context, cmd ResolveReportCommand) (dto.Report, error) {
	action, err := report.ParseAction(cmd.Action)
	if err != nil {
		return dto.Report{}, err
	}
	return h.close(ctx, cmd.Actor, cmd.ReportID, func(r *report.Report, now time.Time) (bool, error) {
		return r.Resolve(cmd.Actor.UserID, action, cmd.Notes, now)
	})
}

func (h *Handler) Dismiss(ctx context.Context, cmd DismissReportCommand) (dto.Report, error) {
	return h.close(ctx, cmd.Actor, cmd.ReportID, func(r *report.Report, now time.Time) (bool, error) {
		return r.Dismiss(cmd.Actor.UserID, cmd.Notes, now)
	})
}

func (h *Handler) close(ctx context.Context, actor identity.Principal, reportID string, apply func(*report.Report, time.Time) (bool, error)) (dto.Report, error) {
	if !actor.CanModerate() {
		return dto.Report{}, identity.ErrForbidden
	}
	unit, err := support.OpenUnit(ctx, h.UoWFactory, uow.TxOptions{})
	if err != nil {
		return dto.Report{}, err
	}
	defer unit.Close()

	r, err := unit.Reports().ByID(unit.Ctx, report.ID(strings.TrimSpace(reportID)))
	if err != nil {
		return dto.Report{}, err
	}
	now := h.now()
	changed, err := apply(r, now)
	if err != nil {
		return dto.Report{}, err
	}
	if !changed {
		if h.Logger != nil {
			h.Logger.Info("report already closed", "report_id", r.ID, "status", r.Status, "moderator_id", actor.UserID, "closed_by", r.ResolvedBy)
		}
		return dto.MapReport(r), nil
	}
	if err := unit.Reports().Save(unit.Ctx, r); err != nil {
		return dto.Report{}, err
	}
	if err := outbox.RecordDomainEvents(unit.Ctx, h.Outbox, h.Encoder, r.PullEvents()); err != nil {
		return dto.Report{}, err
	}
	if r.Action == report.ActionDeletion {
		if err := h.deactivate(unit, r, now); err != nil {
			return dto.Report{}, err
		}
	}
	if err := unit.Commit(); err != nil {
		return dto.Report{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("report closed", "report_id", r.ID, "status", r.Status, "action", r.Action, "moderator_id", actor.UserID)
	}
	return dto.MapReport(r), nil
}

// deactivate soft-deletes the reported conversation and releases the listings reserved through
// accepted offers in it.
func (h *Handler) deactivate(unit *support.Unit, r *report.Report, now time.Time) error {
	conv, err := unit.Conversations().ByID(unit.Ctx, r.ConversationID)
	if err != nil {
		return err
	}
	offers, err := unit.Offers().ListByConversation(unit.Ctx, conv.ID)
	if err != nil {
		return err
	}
	var released []string
	for _, o := range offers {
		if o.Status == offer.StatusAccepted {
			released = append(released, o.ListingID)
		}
	}
	if !conv.Deactivate("report:"+string(r.ID), released, now) {
		return nil
	}
	if err := unit.Conversations().Save(unit.Ctx, conv); err != nil {
		return err
	}
	return outbox.RecordDomainEvents(unit.Ctx, h.Outbox, h.Encoder, conv.PullEvents())
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

type ListReportsQuery struct {
	Actor  identity.Principal
	Status string
}

func (q ListReportsQuery) Key() string                         { return ListReportsKey }
func (q ListReportsQuery) ActingPrincipal() identity.Principal { return q.Actor }
func (q ListReportsQuery) RequiresModerator() bool             { return true }

type ListReportsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListReportsHandler) Handle(ctx context.Context, q ListReportsQuery) (dto.ReportList, error) {
	if !q.Actor.CanModerate() {
		return dto.ReportList{}, identity.ErrForbidden
	}
	status, err := report.ParseStatus(q.Status)
	if err != nil {
		return dto.ReportList{}, err
	}
	unit, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.ReportList{}, err
	}
	defer unit.Close()
	items, err := unit.Reports().List(unit.Ctx, status)
	if err != nil {
		return dto.ReportList{}, err
	}
	out := dto.ReportList{Items: make([]dto.Report, 0, len(items))}
	for _, r := range items {
		out.Items = append(out.Items, dto.MapReport(r))
	}
	return out, nil
}

var (
	_ middleware.IdempotentCommand                      = FileReportCommand{}
	_ queries.Handler[ListReportsQuery, dto.ReportList] = (*ListReportsHandler)(nil)
	_ commands.Command                                  = ResolveReportCommand{}
)
