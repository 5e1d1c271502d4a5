package report_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/domain/report"
	"bazaar/internal/domain/shared/errs"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func filed(t *testing.T) *report.Report {
	t.Helper()
	r, err := report.File(report.FileParams{ID: "r1", ReporterID: "buyer", ConversationID: "c1", ReportedUserID: "seller", Category: report.CategoryScam, CreatedAt: t0})
	require.NoError(t, err)
	r.PullEvents()
	return r
}

func TestFileValidatesCategory(t *testing.T) {
	_, err := report.File(report.FileParams{ReporterID: "a", ConversationID: "c1", ReportedUserID: "b", Category: "RUDE"})
	require.ErrorIs(t, err, report.ErrInvalidReport)
	assert.Equal(t, errs.Validation, errs.KindOf(err))

	_, err = report.File(report.FileParams{ReporterID: "a", ConversationID: "c1", ReportedUserID: "b", Category: report.CategoryOther})
	require.ErrorIs(t, err, report.ErrInvalidReport)
}

func TestResolveIsTerminal(t *testing.T) {
	r := filed(t)
	changed, err := r.Resolve("admin", report.ActionWarning, "first strike", t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, report.StatusResolved, r.Status)
	assert.Len(t, r.PullEvents(), 1)

	changed, err = r.Dismiss("admin", "again", t0)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, report.StatusResolved, r.Status)
	assert.Equal(t, report.ActionWarning, r.Action)
	assert.Empty(t, r.PendingEvents())
}

func TestDismissSetsNoAction(t *testing.T) {
	r := filed(t)
	changed, err := r.Dismiss("admin", "", t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, report.ActionNone, r.Action)
	assert.Equal(t, "admin", r.ResolvedBy)
}

func TestResolveRejectsUnknownAction(t *testing.T) {
	r := filed(t)
	_, err := r.Resolve("admin", "BAN", "", t0)
	require.ErrorIs(t, err, report.ErrInvalidReport)
	assert.Equal(t, report.StatusPending, r.Status)
}
