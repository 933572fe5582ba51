package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/eckrentgo/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestEndDate(t *testing.T) {
	cases := []struct {
		name   string
		start  string
		months int
		days   int
		want   string
	}{
		{"ten days", "2025-01-10", 0, 10, "2025-01-19"},
		{"one day", "2025-01-10", 0, 1, "2025-01-10"},
		{"no period", "2025-01-10", 0, 0, "2025-01-10"},
		{"twelve months", "2025-03-01", 12, 0, "2026-02-28"},
		{"one month", "2025-01-15", 1, 0, "2025-02-14"},
		{"months win over days", "2025-01-01", 1, 3, "2025-01-31"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, day(tc.want), EndDate(day(tc.start), tc.months, tc.days))
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, day("2025-03-01"), got)

	got, err = ParseDate("2025-03-01T17:45:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, day("2025-03-01"), got)

	for _, bad := range []string{"", "01/03/2025", "tomorrow"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestNormalizeDropsTimeOfDay(t *testing.T) {
	in := time.Date(2025, 1, 20, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, day("2025-01-20"), Normalize(in))
}

// The shared checkout/check-in day counts as a conflict. This is the
// established behaviour; no same-day turnover.
func TestBoundaryDayIsAConflict(t *testing.T) {
	existing := []models.Reservation{
		{ID: "first", PropertyID: "P1", StartDate: day("2025-01-10"), Days: 11}, // 10th..20th
	}

	sameDay := FindConflicts(Query{PropertyID: "P1", Start: day("2025-01-20"), Days: 6}, existing)
	require.Len(t, sameDay, 1)
	assert.Equal(t, "first", sameDay[0].ID)

	nextDay := FindConflicts(Query{PropertyID: "P1", Start: day("2025-01-21"), Days: 5}, existing)
	assert.Empty(t, nextDay)
}

func TestFindConflictsScoping(t *testing.T) {
	existing := []models.Reservation{
		{ID: "unit-a", PropertyID: "P1", UnitID: "A", StartDate: day("2025-02-01"), Months: 1},
		{ID: "unit-b", PropertyID: "P1", UnitID: "B", StartDate: day("2025-02-01"), Months: 1},
		{ID: "whole", PropertyID: "P1", StartDate: day("2025-02-10"), Days: 2},
		{ID: "cancelled", PropertyID: "P1", UnitID: "A", StartDate: day("2025-02-05"), Days: 3, Status: models.ReservationStatusCancelled},
		{ID: "other", PropertyID: "P2", UnitID: "A", StartDate: day("2025-02-01"), Months: 1},
	}

	got := FindConflicts(Query{PropertyID: "P1", UnitID: "A", Start: day("2025-02-05"), Days: 10}, existing)
	assert.ElementsMatch(t, []string{"unit-a", "whole"}, ids(got))

	got = FindConflicts(Query{PropertyID: "P1", Start: day("2025-02-28"), Days: 1}, existing)
	assert.ElementsMatch(t, []string{"unit-a", "unit-b"}, ids(got))

	got = FindConflicts(Query{PropertyID: "P1", UnitID: "C", Start: day("2025-03-01"), Months: 1}, existing)
	assert.Empty(t, got)
}

func TestOverlapsIsSymmetric(t *testing.T) {
	a1, a2 := day("2025-01-01"), day("2025-01-05")
	b1, b2 := day("2025-01-05"), day("2025-01-09")
	assert.True(t, Overlaps(a1, a2, b1, b2))
	assert.True(t, Overlaps(b1, b2, a1, a2))
	assert.False(t, Overlaps(a1, a2, day("2025-01-06"), b2))
	assert.True(t, Overlaps(a1, b2, day("2025-01-03"), day("2025-01-03")))
}

type stubLookup struct {
	res []models.Reservation
	err error
}

func (s stubLookup) ListReservations(_ context.Context, propertyID string) ([]models.Reservation, error) {
	return s.res, s.err
}

func TestResolverHasConflict(t *testing.T) {
	lookup := stubLookup{res: []models.Reservation{
		{ID: "first", PropertyID: "P1", StartDate: day("2025-01-10"), Days: 11},
	}}
	r := NewResolver(lookup)

	hit, conflicts, err := r.HasConflict(context.Background(), Query{PropertyID: "P1", Start: day("2025-01-15"), Days: 2})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, conflicts, 1)

	hit, conflicts, err = r.HasConflict(context.Background(), Query{PropertyID: "P1", Start: day("2025-02-15"), Months: 1})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, conflicts)

	boom := errors.New("db down")
	_, _, err = NewResolver(stubLookup{err: boom}).HasConflict(context.Background(), Query{PropertyID: "P1"})
	assert.ErrorIs(t, err, boom)
}

func ids(res []models.Reservation) []string {
	out := make([]string, len(res))
	for i, r := range res {
		out[i] = r.ID
	}
	return out
}
