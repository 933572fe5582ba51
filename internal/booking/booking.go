// Package booking decides whether reservation periods collide. All
// comparisons use whole calendar days in UTC.
package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xelth-com/eckrentgo/internal/models"
)

// Normalize truncates t to midnight UTC of its calendar day
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts 2006-01-02 or RFC 3339 and returns midnight UTC.
// An RFC 3339 value keeps the calendar day of its own offset.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return Normalize(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q", s)
	}
	return Normalize(t), nil
}

// EndDate returns the inclusive last day of a booking. Months win over days;
// with neither the booking is the start day only.
func EndDate(start time.Time, months, days int) time.Time {
	start = Normalize(start)
	switch {
	case months > 0:
		return start.AddDate(0, months, 0).AddDate(0, 0, -1)
	case days > 0:
		return start.AddDate(0, 0, days-1)
	default:
		return start
	}
}

// Overlaps is the closed-interval test. Ranges sharing a single boundary
// day overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}

// Query describes a candidate booking
type Query struct {
	PropertyID string
	UnitID     string
	Start      time.Time
	Months     int
	Days       int
}

// End returns the inclusive last day of the query
func (q Query) End() time.Time {
	return EndDate(q.Start, q.Months, q.Days)
}

// FindConflicts returns every existing reservation colliding with q
func FindConflicts(q Query, existing []models.Reservation) []models.Reservation {
	start := Normalize(q.Start)
	end := q.End()

	conflicts := make([]models.Reservation, 0)
	for _, r := range existing {
		if r.PropertyID != q.PropertyID {
			continue
		}
		if r.Status == models.ReservationStatusCancelled {
			continue
		}
		if q.UnitID != "" && r.UnitID != "" && q.UnitID != r.UnitID {
			continue
		}
		rStart := Normalize(r.StartDate)
		if Overlaps(start, end, rStart, EndDate(rStart, r.Months, r.Days)) {
			conflicts = append(conflicts, r)
		}
	}
	return conflicts
}

// Lookup lists the reservations of a property
type Lookup interface {
	ListReservations(ctx context.Context, propertyID string) ([]models.Reservation, error)
}

// Resolver checks a candidate against stored reservations
type Resolver struct {
	lookup Lookup
}

// NewResolver creates a resolver reading through lookup
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// HasConflict reports whether q collides and with which reservations
func (r *Resolver) HasConflict(ctx context.Context, q Query) (bool, []models.Reservation, error) {
	existing, err := r.lookup.ListReservations(ctx, q.PropertyID)
	if err != nil {
		return false, nil, err
	}
	conflicts := FindConflicts(q, existing)
	return len(conflicts) > 0, conflicts, nil
}
