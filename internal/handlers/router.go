package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xelth-com/eckrentgo/internal/booking"
	"github.com/xelth-com/eckrentgo/internal/buildinfo"
	"github.com/xelth-com/eckrentgo/internal/middleware"
	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/rental"
	"github.com/xelth-com/eckrentgo/internal/repository"
	"github.com/xelth-com/eckrentgo/internal/reservation"
	"github.com/xelth-com/eckrentgo/internal/serial"
	"github.com/xelth-com/eckrentgo/internal/websocket"
)

// NotificationInbox is the read side of stored notifications
type NotificationInbox interface {
	ListForTarget(ctx context.Context, target string, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, target, id string) error
}

// TaskBoard lists and closes follow-up tasks
type TaskBoard interface {
	ListOpen(ctx context.Context) ([]models.FollowUpTask, error)
	Complete(ctx context.Context, number string) error
}

// InvoiceReader loads issued invoices
type InvoiceReader interface {
	Get(ctx context.Context, number string) (models.Invoice, error)
}

// PropertyCatalog stores the pricing view of listings
type PropertyCatalog interface {
	Snapshot(ctx context.Context, propertyID string) (models.PropertySnapshot, error)
	Upsert(ctx context.Context, p *models.Property) error
}

// Deps are the services the HTTP layer exposes. Catalog, Inbox, Tasks,
// Invoices and Hub are optional; their routes are only mounted when set.
type Deps struct {
	Store         repository.Store
	Machine       *rental.Machine
	Intake        *reservation.Intake
	Resolver      *booking.Resolver
	Serials       *serial.Issuer
	Hub           *websocket.Hub
	Catalog       PropertyCatalog
	Inbox         NotificationInbox
	Tasks         TaskBoard
	Invoices      InvoiceReader
	JWTSecret     string
	StorageDriver string
}

// Router wraps the mux router and the services behind it
type Router struct {
	*mux.Router
	deps Deps
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(deps Deps) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		deps:   deps,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// API routes, all authenticated
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(deps.JWTSecret))
	api.HandleFunc("/status", r.getStatus).Methods("GET")

	// Reservations
	api.HandleFunc("/reservations", r.createReservation).Methods("POST")
	api.HandleFunc("/reservations/conflicts", r.checkConflicts).Methods("GET")
	api.HandleFunc("/reservations/{id}", r.getReservation).Methods("GET")

	// Rentals
	api.HandleFunc("/rentals", r.listRentals).Methods("GET")
	api.HandleFunc("/rentals/mine", r.listMyRentals).Methods("GET")
	api.HandleFunc("/properties/{id}/rentals", r.listPropertyRentals).Methods("GET")
	api.HandleFunc("/rentals/{id}", r.getRental).Methods("GET")
	api.HandleFunc("/rentals/{id}/transitions", r.transitionRental).Methods("POST")
	api.HandleFunc("/rentals/{id}/events", r.rentalEvents).Methods("GET")
	api.HandleFunc("/rentals/{id}/documents", r.attachDocument).Methods("POST")
	api.HandleFunc("/rentals/{id}/handover", r.recordHandover).Methods("POST")

	// Serials
	api.HandleFunc("/serials/{entity}", r.issueSerial).Methods("POST")
	api.HandleFunc("/serials/{entity}", r.peekSerial).Methods("GET")

	if deps.Catalog != nil {
		api.HandleFunc("/properties/{id}", r.putProperty).Methods("PUT")
		api.HandleFunc("/properties/{id}", r.getProperty).Methods("GET")
	}
	if deps.Inbox != nil {
		api.HandleFunc("/notifications", r.listNotifications).Methods("GET")
		api.HandleFunc("/notifications/{id}/read", r.markNotificationRead).Methods("POST")
	}
	if deps.Tasks != nil {
		api.HandleFunc("/tasks", r.listTasks).Methods("GET")
		api.HandleFunc("/tasks/{number}/complete", r.completeTask).Methods("POST")
	}
	if deps.Invoices != nil {
		api.HandleFunc("/invoices/{number}", r.getInvoice).Methods("GET")
		api.HandleFunc("/invoices/{number}/pdf", r.getInvoicePDF).Methods("GET")
	}

	// Notification push
	if deps.Hub != nil {
		r.Handle("/ws", middleware.Auth(deps.JWTSecret)(http.HandlerFunc(r.serveWs))).Methods("GET")
	}

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, buildinfo.Current())
}

// getStatus returns the current status
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	role, _ := middleware.ClaimsFromContext(req.Context())["role"].(string)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "running",
		"storage": r.deps.StorageDriver,
		"actor":   middleware.ActorFromContext(req.Context()),
		"role":    role,
		"states":  rental.States(),
		"events":  rental.Events(),
	})
}

func (r *Router) serveWs(w http.ResponseWriter, req *http.Request) {
	websocket.ServeWs(r.deps.Hub, w, req, middleware.ActorFromContext(req.Context()))
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondDomainError maps core errors to status codes
func respondDomainError(w http.ResponseWriter, err error) {
	var (
		invalid    *rental.InvalidTransitionError
		notAllowed *rental.NotAllowedError
		conflict   *reservation.ConflictError
		validation *reservation.ValidationError
		storage    *repository.StorageError
	)

	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &invalid):
		respondJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
			"from":  string(invalid.From),
			"event": string(invalid.Event),
		})
	case errors.As(err, &notAllowed):
		respondJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
			"state": string(notAllowed.State),
		})
	case errors.As(err, &conflict):
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     err.Error(),
			"conflicts": conflict.Conflicts,
		})
	case errors.Is(err, repository.ErrVersionConflict):
		respondError(w, http.StatusConflict, "record was modified concurrently, retry")
	case errors.As(err, &validation):
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
			"field": validation.Field,
		})
	case errors.Is(err, rental.ErrUnknownEvent), errors.Is(err, serial.ErrUnknownEntity),
		errors.Is(err, serial.ErrInvalidOptions):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &storage):
		log.Printf("❌ %v", err)
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		log.Printf("❌ %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
