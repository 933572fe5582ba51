package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/xelth-com/eckrentgo/internal/booking"
	"github.com/xelth-com/eckrentgo/internal/middleware"
	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/reservation"
)

// createReservation registers a booking request and opens its rental
func (r *Router) createReservation(w http.ResponseWriter, req *http.Request) {
	var body reservation.Request
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	body.ActorID = middleware.ActorFromContext(req.Context())

	result, err := r.deps.Intake.Reserve(req.Context(), body)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (r *Router) getReservation(w http.ResponseWriter, req *http.Request) {
	res, err := r.deps.Store.LoadReservation(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// checkConflicts answers ?propertyId=&unitId=&startDate=&months=&days=
func (r *Router) checkConflicts(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	propertyID := q.Get("propertyId")
	if propertyID == "" {
		respondError(w, http.StatusBadRequest, "propertyId is required")
		return
	}
	start, err := booking.ParseDate(q.Get("startDate"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "startDate must be YYYY-MM-DD")
		return
	}
	months, err := intParam(q.Get("months"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "months must be a non-negative integer")
		return
	}
	days, err := intParam(q.Get("days"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "days must be a non-negative integer")
		return
	}

	query := booking.Query{
		PropertyID: propertyID,
		UnitID:     q.Get("unitId"),
		Start:      start,
		Months:     months,
		Days:       days,
	}
	conflict, conflicts, err := r.deps.Resolver.HasConflict(req.Context(), query)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"conflict":  conflict,
		"start":     query.Start,
		"end":       query.End(),
		"conflicts": nonNil[models.Reservation](conflicts),
	})
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
