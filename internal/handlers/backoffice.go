package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/xelth-com/eckrentgo/internal/middleware"
	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/services/invoice"
)

// putProperty creates or replaces the pricing data of a listing
func (r *Router) putProperty(w http.ResponseWriter, req *http.Request) {
	var p models.Property
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p.ID = mux.Vars(req)["id"]
	if p.MonthlyRent.IsNegative() || p.DailyRent.IsNegative() || p.Deposit.IsNegative() {
		respondError(w, http.StatusBadRequest, "prices must not be negative")
		return
	}
	if err := r.deps.Catalog.Upsert(req.Context(), &p); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p.Snapshot())
}

func (r *Router) getProperty(w http.ResponseWriter, req *http.Request) {
	snap, err := r.deps.Catalog.Snapshot(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// listNotifications returns the caller's notifications, ?unread=true for unread only
func (r *Router) listNotifications(w http.ResponseWriter, req *http.Request) {
	target := middleware.ActorFromContext(req.Context())
	if t := req.URL.Query().Get("target"); t != "" {
		target = t
	}
	list, err := r.deps.Inbox.ListForTarget(req.Context(), target, req.URL.Query().Get("unread") == "true")
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(list))
}

func (r *Router) markNotificationRead(w http.ResponseWriter, req *http.Request) {
	target := middleware.ActorFromContext(req.Context())
	if t := req.URL.Query().Get("target"); t != "" {
		target = t
	}
	if err := r.deps.Inbox.MarkRead(req.Context(), target, mux.Vars(req)["id"]); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (r *Router) listTasks(w http.ResponseWriter, req *http.Request) {
	list, err := r.deps.Tasks.ListOpen(req.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(list))
}

func (r *Router) completeTask(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Tasks.Complete(req.Context(), mux.Vars(req)["number"]); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "done"})
}

func (r *Router) getInvoice(w http.ResponseWriter, req *http.Request) {
	inv, err := r.deps.Invoices.Get(req.Context(), mux.Vars(req)["number"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

// getInvoicePDF serves the stored PDF, rendering it when none was written
func (r *Router) getInvoicePDF(w http.ResponseWriter, req *http.Request) {
	inv, err := r.deps.Invoices.Get(req.Context(), mux.Vars(req)["number"])
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var data []byte
	if inv.PDFPath != "" {
		data, err = os.ReadFile(inv.PDFPath)
	}
	if inv.PDFPath == "" || err != nil {
		res, lerr := r.deps.Store.LoadReservation(req.Context(), inv.ReservationID)
		if lerr != nil {
			respondDomainError(w, lerr)
			return
		}
		data, err = invoice.RenderPDF(inv, res)
		if err != nil {
			respondDomainError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=\""+inv.Number+".pdf\"")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
