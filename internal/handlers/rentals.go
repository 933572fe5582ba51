package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xelth-com/eckrentgo/internal/middleware"
	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/rental"
)

// rentalView is a record plus the events its current state accepts
type rentalView struct {
	models.RentalRecord
	AllowedEvents []rental.Event `json:"allowedEvents"`
}

func viewOf(rec models.RentalRecord) rentalView {
	return rentalView{RentalRecord: rec, AllowedEvents: rental.Allowed(rec.State)}
}

func (r *Router) listRentals(w http.ResponseWriter, req *http.Request) {
	recs, err := r.deps.Store.ListAll(req.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(recs))
}

func (r *Router) listMyRentals(w http.ResponseWriter, req *http.Request) {
	recs, err := r.deps.Store.ListMine(req.Context(), middleware.ActorFromContext(req.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(recs))
}

func (r *Router) listPropertyRentals(w http.ResponseWriter, req *http.Request) {
	recs, err := r.deps.Store.ListByProperty(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(recs))
}

func (r *Router) getRental(w http.ResponseWriter, req *http.Request) {
	rec, err := r.deps.Store.Load(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(rec))
}

// rentalEvents returns the audit trail of one record
func (r *Router) rentalEvents(w http.ResponseWriter, req *http.Request) {
	rec, err := r.deps.Store.Load(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	history := []models.HistoryEntry(rec.History)
	if history == nil {
		history = []models.HistoryEntry{}
	}
	respondJSON(w, http.StatusOK, history)
}

type transitionRequest struct {
	Event string `json:"event"`
	Note  string `json:"note,omitempty"`
}

// transitionRental applies one lifecycle event
func (r *Router) transitionRental(w http.ResponseWriter, req *http.Request) {
	var body transitionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := r.deps.Machine.Transition(req.Context(), mux.Vars(req)["id"], rental.Event(body.Event),
		middleware.ActorFromContext(req.Context()), body.Note)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(rec))
}

func (r *Router) attachDocument(w http.ResponseWriter, req *http.Request) {
	var doc models.RentalDocument
	if err := json.NewDecoder(req.Body).Decode(&doc); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if doc.Path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}

	rec, err := r.deps.Machine.AttachDocument(req.Context(), mux.Vars(req)["id"], doc, middleware.ActorFromContext(req.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(rec))
}

func (r *Router) recordHandover(w http.ResponseWriter, req *http.Request) {
	var h models.Handover
	if err := json.NewDecoder(req.Body).Decode(&h); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := r.deps.Machine.RecordHandover(req.Context(), mux.Vars(req)["id"], h, middleware.ActorFromContext(req.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(rec))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
