package models

import (
	"testing"
	"time"

	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{"reported", StatusReported, false},
		{"under_investigation", StatusUnderInvestigation, false},
		{"Under Investigation", StatusUnderInvestigation, false},
		{" resolved ", StatusResolved, false},
		{"rejected", StatusRejected, false},
		{"closed", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseStatus(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.KindValidation))
				assert.Contains(t, err.Error(), "reported, under_investigation, resolved, rejected")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_TransitionTable(t *testing.T) {
	allowed := map[Status]map[Status]bool{
		StatusReported:           {StatusUnderInvestigation: true, StatusResolved: true, StatusRejected: true},
		StatusUnderInvestigation: {StatusResolved: true, StatusRejected: true},
		StatusResolved:           {},
		StatusRejected:           {},
	}
	for _, from := range Statuses() {
		for _, to := range Statuses() {
			assert.Equal(t, allowed[from][to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StatusResolved.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.False(t, StatusReported.IsTerminal())
	assert.False(t, StatusUnderInvestigation.IsTerminal())
}

func TestIncident_TransitionTo_SetsResolvedAt(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	inc := &Incident{Status: StatusReported}

	require.NoError(t, inc.TransitionTo(StatusUnderInvestigation, now))
	assert.Nil(t, inc.ResolvedAt)

	require.NoError(t, inc.TransitionTo(StatusResolved, now))
	assert.Equal(t, StatusResolved, inc.Status)
	require.NotNil(t, inc.ResolvedAt)
	assert.Equal(t, now, *inc.ResolvedAt)
}

func TestIncident_TransitionTo_TerminalRejected(t *testing.T) {
	now := time.Now()
	resolvedAt := now.Add(-time.Hour)
	inc := &Incident{Status: StatusResolved, ResolvedAt: &resolvedAt}

	err := inc.TransitionTo(StatusReported, now)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "terminal")
	assert.Equal(t, StatusResolved, inc.Status)
	assert.Equal(t, resolvedAt, *inc.ResolvedAt)
}

func TestIncident_TransitionTo_RejectedKeepsResolvedAtNil(t *testing.T) {
	inc := &Incident{Status: StatusUnderInvestigation}

	require.NoError(t, inc.TransitionTo(StatusRejected, time.Now()))
	assert.Equal(t, StatusRejected, inc.Status)
	assert.Nil(t, inc.ResolvedAt)
}

func TestIncident_TransitionTo_SameStatus(t *testing.T) {
	inc := &Incident{Status: StatusUnderInvestigation}

	err := inc.TransitionTo(StatusUnderInvestigation, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowed: resolved, rejected")
}

func TestIncident_TransitionTo_InvalidTarget(t *testing.T) {
	inc := &Incident{Status: StatusReported}

	err := inc.TransitionTo(Status("closed"), time.Now())
	require.Error(t, err)
	assert.Equal(t, StatusReported, inc.Status)
	assert.Equal(t, []string{"status"}, apperr.FieldsOf(err))
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("HIGH")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)

	_, err = ParsePriority("urgent")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestNewPage(t *testing.T) {
	page := NewPage([]int{1, 2}, 21, 2, 10)
	assert.Equal(t, 3, page.Pages)

	empty := NewPage[int](nil, 0, 1, 10)
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.Pages)

	p, pp := NormalizePage(0, 1000)
	assert.Equal(t, 1, p)
	assert.Equal(t, MaxPerPage, pp)
}
